// Package localfs expands the local paths given to an upload into the list
// of regular files to send.
package localfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Options configures Collect.
type Options struct {
	// Recursive descends into directory arguments. Without it a directory
	// argument is an error.
	Recursive bool

	// IncludeHidden keeps dot files and dot directories found while walking.
	// Hidden files named explicitly are always kept.
	IncludeHidden bool
}

// Collect resolves paths to absolute regular-file paths in argument order,
// dropping duplicates. Entries that cannot be read while walking are skipped.
func Collect(paths []string, opts Options) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, arg := range paths {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		switch {
		case info.Mode().IsRegular():
			add(abs)
		case info.IsDir():
			if !opts.Recursive {
				return nil, fmt.Errorf("%s is a directory (use --recursive)", arg)
			}
			if err := walkFiles(abs, opts.IncludeHidden, add); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%s is not a regular file", arg)
		}
	}
	return files, nil
}

func walkFiles(root string, includeHidden bool, fn func(string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != root && skip(d, includeHidden) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			fn(path)
		}
		return nil
	})
}
