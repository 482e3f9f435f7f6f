package localfs

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/vaultlink/vaultlink/internal/constants"
)

// Hidden reports whether a directory entry name is a dot file or dot
// directory. "." and ".." are not hidden.
func Hidden(name string) bool {
	return name != "." && name != ".." && strings.HasPrefix(name, ".")
}

// Partial reports whether name is an unfinished download left in a
// download directory.
func Partial(name string) bool {
	ok, _ := filepath.Match(constants.PartialFilePattern, name)
	return ok
}

// skip decides which entries a recursive walk leaves out. Unfinished
// downloads are never uploaded, even with includeHidden.
func skip(d fs.DirEntry, includeHidden bool) bool {
	name := d.Name()
	if !d.IsDir() && Partial(name) {
		return true
	}
	return !includeHidden && Hidden(name)
}
