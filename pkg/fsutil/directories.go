package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory and all necessary parents with DirModeDefault.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of a file path if it doesn't exist.
func EnsureFileDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// Exists reports whether path exists. Errors other than "not exist" are returned.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsDirEmpty reports whether dir contains no entries.
func IsDirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// RemoveEmptyDirsUpward removes dir if it is empty, then keeps walking up and removing
// parents while they are empty. It never removes root or anything outside of it, and
// stops at the first directory that is not empty or cannot be removed.
// It returns the directories that were removed.
func RemoveEmptyDirsUpward(root, dir string) []string {
	root = filepath.Clean(root)
	dir = filepath.Clean(dir)

	var removed []string
	for IsWithin(root, dir) && dir != root {
		empty, err := IsDirEmpty(dir)
		if err != nil || !empty {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
		removed = append(removed, dir)
		dir = filepath.Dir(dir)
	}
	return removed
}

// IsWithin reports whether path is root itself or located below it.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// DirSize returns the total size of all regular files below dir.
func DirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// UserConfigDir returns the per-user configuration directory of the application.
func UserConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}
