package asset

import (
	"time"

	"github.com/rs/zerolog"
)

type Asset interface {
	zerolog.LogObjectMarshaler
	Path() string
	RelPath() string // slash-separated path relative to the scanned root
	Name() string    // base name of the file
	Size() int64     // length in bytes for regular files
	ModTime() time.Time
	ComputeHash() (uint64, error)
}
