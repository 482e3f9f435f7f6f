// Package strings provides small formatting helpers for command output.
package strings

import "fmt"

// Pluralize returns singular or plural form based on count.
// Example: Pluralize("file", 1) returns "file", Pluralize("file", 2) returns "files"
func Pluralize(word string, count int64) string {
	if count == 1 {
		return word
	}
	return word + "s"
}

// FormatBytes returns a human-readable byte count using binary units.
// It takes a float so that counters beyond int64 still format.
func FormatBytes(bytes float64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%.0f B", bytes)
	}
	exp := 0
	for bytes >= unit && exp < len(units) {
		bytes /= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", bytes, units[exp-1])
}

const units = "KMGTPEZY"
