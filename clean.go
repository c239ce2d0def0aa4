package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adboost/adboostctl/database"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
)

func cleanCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Clean.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}
	if args.Clean.Keep < 0 {
		return fmt.Errorf("keep must not be negative")
	}

	startTime := time.Now()
	logger.Info().Int("keep", args.Clean.Keep).Msg("starting cleaning old packages")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("cleaning cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("cleaning done")
		}
	}()

	db, err := openDatabase(args.Clean.Database, logger, args.Clean.DryRun)
	if err != nil {
		return err
	}

	_, err = cleanOldPackages(ctx, cleanParams{
		sourcePath: args.Clean.Source,
		keep:       args.Clean.Keep,
		dryRun:     args.Clean.DryRun,
		db:         db,
		logger:     logger,
	})
	return err
}

type cleanParams struct {
	sourcePath string
	keep       int
	dryRun     bool
	db         *database.Database
	logger     zerolog.Logger
}

type cleanResult struct {
	deleted []string
	freed   int64
}

// cleanOldPackages deletes every package but the newest p.keep of each
// source, from both the registry and the disk.
func cleanOldPackages(ctx context.Context, p cleanParams) (*cleanResult, error) {
	var sources []string
	if p.sourcePath == "" {
		var err error
		sources, err = p.db.Sources(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		src, err := filepath.Abs(p.sourcePath)
		if err != nil {
			return nil, err
		}
		sources = []string{src}
	}

	result := &cleanResult{}
	for _, src := range sources {
		logger := p.logger.With().Str("source", src).Logger()
		if ctx.Err() != nil {
			break
		}

		archivePaths := []string{}
		for pkg, err := range p.db.FindPackages(ctx, database.WithFindSource(src), database.WithFindOffset(p.keep)) {
			if err != nil {
				return result, fmt.Errorf("failed to find packages: %w", err)
			}
			logger.Info().
				Str("path", pkg.Path).
				Int64("files_size", pkg.Size).
				Int("files_count", pkg.EntryCount).
				Time("created_at", pkg.CreatedAt).
				Msg("found old package")
			archivePaths = append(archivePaths, pkg.Path)
		}
		if len(archivePaths) == 0 {
			logger.Info().Msg("no old packages found")
			continue
		}

		err := p.db.DeletePackages(ctx, archivePaths)
		if err != nil {
			return result, fmt.Errorf("error deleting old packages from registry: %w", err)
		}

		for _, path := range archivePaths {
			stat, err := os.Stat(path)
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn().Str("path", path).Msg("old package file already gone")
				continue
			}
			if err != nil {
				logger.Error().Err(err).Str("path", path).Msg("failed to stat old package file")
				continue
			}

			if p.dryRun {
				logger.Info().Str("path", path).Int64("size", stat.Size()).Msg("would delete old package file (dry run)")
				continue
			}

			if err := os.Remove(path); err != nil {
				logger.Error().Err(err).Str("path", path).
					Int64("size", stat.Size()).
					Msg("failed to delete old package file")
			} else {
				logger.Info().Str("path", path).Int64("size", stat.Size()).Msg("deleted old package file")
				result.freed += stat.Size()
				result.deleted = append(result.deleted, path)
			}
		}
	}

	if result.freed > 0 {
		p.logger.Info().
			Int("files_deleted", len(result.deleted)).
			Str("total_freed", units.HumanSize(float64(result.freed))).
			Msg("deleted old package files")
	}

	return result, nil
}
