// Package filex contains small filesystem helpers for locating and creating
// the application's private data directory.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// appDirName is the subdirectory created under the user's config directory.
const appDirName = "floatnote"

// userConfigDir is a seam for os.UserConfigDir, replaceable in tests.
var userConfigDir = os.UserConfigDir

// AppDataDir returns the application-private data directory, creating it if
// needed. On Linux this resolves to ~/.config/floatnote.
func AppDataDir() (string, error) {
	base, err := userConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}

	dir := filepath.Join(base, appDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// EnsureDir creates (if missing) and returns the directory name under parent.
func EnsureDir(parent, name string) (string, error) {
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}
