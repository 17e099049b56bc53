package app

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates dir and any missing parents. An existing directory is
// not an error, so calling it again is harmless.
func EnsureDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(filepath.Clean(dir), 0o755)
}
