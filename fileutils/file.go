package fileutils

import (
	"errors"
	"io/fs"
	"os"
)

// Exists reports whether a file or directory exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// NonEmptyFile returns the size of the regular file at path.
// It fails when the path is missing, is not a regular file or has no content.
func NonEmptyFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, errors.New("not a regular file")
	}
	if info.Size() == 0 {
		return 0, errors.New("file is empty")
	}
	return info.Size(), nil
}
