package zipwriter

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
)

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// ZipFile is a zip writer that creates its target on the first entry, so
// an archive with no entries never touches the disk.
type ZipFile struct {
	path   string
	state  state
	file   *os.File
	writer *zip.Writer
	open   func() (*os.File, error)
	remove func() error
}

// NewLazyZipFile writes to path. Creating the first entry fails if path
// already exists.
func NewLazyZipFile(path string) *ZipFile {
	return &ZipFile{
		path: path,
		open: func() (*os.File, error) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
			if errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("file or directory already exists with this name: %s", path)
			}
			return f, err
		},
		remove: func() error {
			return os.Remove(path)
		},
	}
}

// NewNullZipFile discards everything. path is only reported.
func NewNullZipFile(path string) *ZipFile {
	return &ZipFile{
		path: path,
		open: func() (*os.File, error) {
			return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		},
		remove: func() error { return nil },
	}
}

func (z *ZipFile) Path() string {
	return z.path
}

// Opened reports whether the target was created.
func (z *ZipFile) Opened() bool {
	return z.state != stateNew
}

// CreateHeader adds an entry, creating the target on first use.
func (z *ZipFile) CreateHeader(fh *zip.FileHeader) (io.Writer, error) {
	switch z.state {
	case stateClosed:
		return nil, fmt.Errorf("zip file already closed: %s", z.path)
	case stateNew:
		f, err := z.open()
		if err != nil {
			return nil, err
		}
		z.file = f
		z.writer = zip.NewWriter(f)
		z.state = stateOpen
	}
	return z.writer.CreateHeader(fh)
}

// Close flushes the central directory. It is a no-op unless the target
// is open.
func (z *ZipFile) Close() error {
	if z.state != stateOpen {
		return nil
	}
	z.state = stateClosed
	return errors.Join(z.writer.Close(), z.file.Close())
}

// Delete closes and removes the target if it was created.
func (z *ZipFile) Delete() error {
	if z.state == stateNew {
		return nil
	}
	closeErr := z.Close()
	z.state = stateNew
	return errors.Join(closeErr, z.remove())
}
