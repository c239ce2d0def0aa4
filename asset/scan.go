package asset

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ScanOption func(o *scanOptions)

type scanOptions struct {
	exclude []string
}

// WithExclude skips files and directories matching any of the glob patterns.
// A pattern matches either the slash-separated path relative to the scanned
// directory or any single segment of it. Matching directories are not walked.
func WithExclude(patterns ...string) ScanOption {
	return func(o *scanOptions) {
		o.exclude = append(o.exclude, patterns...)
	}
}

// ValidatePatterns reports the first malformed glob pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
	}
	return nil
}

func ScanDirectory(ctx context.Context, dirPath string, logger zerolog.Logger, opts ...ScanOption) (iter.Seq[Asset], error) {
	o := scanOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ValidatePatterns(o.exclude); err != nil {
		return nil, err
	}

	return func(yield func(Asset) bool) {
		var scannedCount int
		var statFiles int
		var excluded int

		logger := logger.With().Str("dir", dirPath).Logger()
		logger.Info().Msg("start scanning for assets")
		defer func() {
			logger.Info().
				Int("scanned", statFiles).
				Int("scanned_success", scannedCount).
				Int("excluded", excluded).
				Msg("done scanning assets")
		}()

		throttledLogger := logger.Sample(&zerolog.BurstSampler{
			Burst:  1,
			Period: 1 * time.Second,
		})
		err := filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}

			if err != nil {
				logger.Warn().Err(err).Str("path", p).Msg("could not scan path")
				return nil
			}

			if p != dirPath && isExcluded(dirPath, p, o.exclude) {
				excluded++
				logger.Debug().Str("path", p).Msg("excluded path")
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				logger.Warn().Err(err).Str("path", p).Msg("could not stat path")
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			statFiles++

			newAsset, err := NewFromFS(dirPath, p, info)
			if err != nil {
				logger.Warn().Err(err).Str("path", p).Msg("could not create asset")
				return nil
			}

			if !yield(newAsset) {
				return filepath.SkipAll
			}
			scannedCount++
			logger.Debug().Object("asset", newAsset).Msg("scanned asset")
			throttledLogger.Info().
				Int("scanned", statFiles).
				Int("scanned_success", scannedCount).
				Msg("scanning assets")

			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("could not scan path")
		}
	}, nil
}

func isExcluded(root string, p string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	segments := strings.Split(rel, "/")
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		for _, seg := range segments {
			if ok, _ := path.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}
