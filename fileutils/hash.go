package fileutils

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash"
)

// ComputeHash returns the xxhash64 of everything read from r. r is not closed.
func ComputeHash(r io.Reader) (uint64, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// ComputeFileHash returns the xxhash64 of the file contents at path.
func ComputeFileHash(path string) (sum uint64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	return ComputeHash(file)
}

// FormatHash renders a hash as fixed-width hex.
func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
