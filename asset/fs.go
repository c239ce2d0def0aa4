package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/adboost/adboostctl/fileutils"
	"github.com/rs/zerolog"
)

const fourGiB = 4 << 30

var ErrMaxSizeExceeded = errors.New("maximum file size exceeded")

// NewFromFS returns an asset for the regular file at path.
// rootPath is the scanned directory the asset is relative to.
func NewFromFS(rootPath string, path string, info fs.FileInfo) (Asset, error) {
	mode := info.Mode()
	if !mode.IsRegular() {
		return nil, errors.New("not a regular file")
	}

	if info.Size() > fourGiB {
		return nil, fmt.Errorf("%w: current size %d, maximum %d", ErrMaxSizeExceeded, info.Size(), int64(fourGiB))
	}

	rel, err := filepath.Rel(rootPath, path)
	if err != nil {
		return nil, err
	}

	return &fsAsset{
		path:    path,
		relPath: filepath.ToSlash(rel),
		info:    info,
	}, nil
}

type fsAsset struct {
	path    string
	relPath string
	info    fs.FileInfo
}

// Name implements Asset.
func (a *fsAsset) Name() string {
	return a.info.Name()
}

// Size implements Asset.
func (a *fsAsset) Size() int64 {
	return a.info.Size()
}

// ModTime implements Asset.
func (a *fsAsset) ModTime() time.Time {
	return a.info.ModTime()
}

// ComputeHash implements Asset.
func (a *fsAsset) ComputeHash() (uint64, error) {
	return fileutils.ComputeFileHash(a.path)
}

// MarshalZerologObject implements Asset.
func (a *fsAsset) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", a.path)
	e.Str("name", a.info.Name())
	e.Int64("size", a.info.Size())
}

// Path implements Asset.
func (a *fsAsset) Path() string {
	return a.path
}

// RelPath implements Asset.
func (a *fsAsset) RelPath() string {
	return a.relPath
}
