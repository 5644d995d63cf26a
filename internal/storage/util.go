package storage

import (
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory holding path if it does not exist.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
