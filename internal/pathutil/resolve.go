// Package pathutil turns the download directory given on the command line
// into the absolute path transfers are saved under.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveDownloadDir expands a leading ~ and returns dir as an absolute
// path with symlinks resolved as far as the path exists. The directory
// itself may not exist yet; the missing tail is kept as given and created
// by the first download. An existing path that is not a directory is an
// error. An empty dir is the working directory.
func ResolveDownloadDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	expanded, err := expandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}

	existing, missing := splitExisting(abs)
	if missing == "" {
		info, err := os.Stat(existing)
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", dir)
		}
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		resolved = existing
	}
	return filepath.Join(resolved, missing), nil
}

// expandHome replaces "~" or a leading "~/" with the home directory.
// "~user" forms are left alone.
func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// splitExisting splits abs into its deepest existing ancestor and the
// relative remainder below it.
func splitExisting(abs string) (existing, missing string) {
	existing = abs
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, ""
		}
		existing = parent
	}
	missing, _ = filepath.Rel(existing, abs)
	if missing == "." {
		missing = ""
	}
	return existing, missing
}
