package ziparchiver

import "time"

type PackOption func(o *packOptions)

type packOptions struct {
	dryRun          bool
	maxArchiveBytes int64
	clock           func() time.Time
}

func WithDryRun(dryRun bool) PackOption {
	return func(o *packOptions) {
		o.dryRun = dryRun
	}
}

// The maximum number of bytes (uncompressed) to store in the archive.
// Packing fails once the limit is reached.
func WithMaxArchiveBytes(maxBytes int64) PackOption {
	return func(o *packOptions) {
		o.maxArchiveBytes = maxBytes
	}
}

// Time source used to name the archive.
func WithClock(clock func() time.Time) PackOption {
	return func(o *packOptions) {
		o.clock = clock
	}
}
