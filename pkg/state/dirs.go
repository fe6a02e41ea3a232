// Package state owns the runtime folder layout and crash dumps.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Init resolves the layout for dbPath and makes sure it exists.
func Init(dbPath string) (Paths, error) {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = "./database"
	}
	p := PathsFor(filepath.Clean(path))
	return p, EnsureStateDirs(p)
}

// EnsureStateDirs creates every directory in p with owner-only permissions.
// Existing entries must be real, writable directories, not symlinks.
func EnsureStateDirs(p Paths) error {
	for _, dir := range []string{p.Store, p.Audit, p.Retention, p.Tmp, p.Crash} {
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}
		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	return nil
}
