package kv

import (
	"errors"
	"os"
	"path/filepath"
)

const defaultPermDir = 0777

// canonicalPath resolves path to an absolute path without symlinks, creating
// the directory first unless the environment is read-only.
func canonicalPath(path string, readOnly bool) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}

	if !readOnly {
		if err := os.MkdirAll(path, defaultPermDir); err != nil {
			return "", err
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
