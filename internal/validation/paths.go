// Package validation checks names and paths that come from the server
// before they touch the local filesystem.
package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxUniqueAttempts bounds the "name (n).ext" search.
const maxUniqueAttempts = 1000

// ValidateFilename rejects a bare file name that is empty, contains a path
// separator or a NUL byte, or is "." or "..". Names such as "data..v2.csv"
// are allowed.
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("filename contains null byte: %q", filename)
	}
	if strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("filename cannot be %q", filename)
	}
	return nil
}

// ValidatePathInDirectory checks that path, once cleaned and resolved
// against baseDir, stays inside baseDir.
func ValidatePathInDirectory(path string, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	base, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}
	return nil
}

// UniquePath returns dir/name, or dir/"stem (n)ext" with the smallest n
// that does not exist yet. name must already be validated. The result is
// only a hint when other writers share dir; use ClaimUniquePath to reserve
// the name.
func UniquePath(dir, name string) (string, error) {
	for n := 0; n <= maxUniqueAttempts; n++ {
		candidate := numbered(dir, name, n)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

// ClaimUniquePath is UniquePath with the chosen name reserved: an empty
// file is created exclusively, so concurrent callers never get the same
// path. The caller replaces the placeholder or removes it on failure.
func ClaimUniquePath(dir, name string) (string, error) {
	for n := 0; n <= maxUniqueAttempts; n++ {
		candidate := numbered(dir, name, n)
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(candidate)
			return "", err
		}
		return candidate, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

// numbered is dir/name for n == 0 and dir/"stem (n)ext" otherwise.
func numbered(dir, name string, n int) string {
	if n == 0 {
		return filepath.Join(dir, name)
	}
	ext := filepath.Ext(name)
	return filepath.Join(dir, fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext))
}
