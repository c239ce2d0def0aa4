package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/adboost/adboostctl/asset"
	"github.com/adboost/adboostctl/database"
	"github.com/adboost/adboostctl/ziparchiver"
	"github.com/rs/zerolog"
)

func packageCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Package.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	if args.Package.MaxSize.Size > 0 && args.Package.MaxSize.Size < 1024 {
		return fmt.Errorf("max size must be at least 1024 bytes")
	}
	if err := asset.ValidatePatterns(args.Package.Exclude); err != nil {
		return err
	}

	var db *database.Database
	if args.Package.Database != "" {
		var err error
		db, err = openDatabase(args.Package.Database, logger, args.Package.DryRun)
		if err != nil {
			return err
		}
	}

	_, err := packageProject(ctx, packageParams{
		projectPath: args.Package.Project,
		destPath:    args.Package.Dest,
		prefix:      args.Package.Prefix,
		exclude:     args.Package.Exclude,
		maxBytes:    args.Package.MaxSize.Size,
		db:          db,
		dryRun:      args.Package.DryRun,
		logger:      logger,
	})
	return err
}

type packageParams struct {
	projectPath string
	destPath    string
	prefix      string
	exclude     []string
	maxBytes    int64
	db          *database.Database
	dryRun      bool
	logger      zerolog.Logger
}

func packageProject(ctx context.Context, p packageParams) (*ziparchiver.PackResult, error) {
	projectPath, err := filepath.Abs(p.projectPath)
	if err != nil {
		return nil, err
	}
	destPath := p.destPath
	if destPath != "" {
		if destPath, err = filepath.Abs(destPath); err != nil {
			return nil, err
		}
	}

	startTime := time.Now()
	p.logger.Info().Str("source", projectPath).Msg("starting packaging")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			p.logger.Info().Str("source", projectPath).Float64("seconds", tookSeconds).Msg("packaging cancelled")
		} else {
			p.logger.Info().Str("source", projectPath).Float64("seconds", tookSeconds).Msg("packaging done")
		}
	}()

	result, err := ziparchiver.PackProject(
		ctx,
		projectPath,
		ziparchiver.ArchiveDescriptor{
			Dir:    destPath,
			Prefix: p.prefix,
		},
		p.exclude,
		p.logger,
		ziparchiver.WithDryRun(p.dryRun),
		ziparchiver.WithMaxArchiveBytes(p.maxBytes),
	)
	if err != nil {
		return nil, err
	}

	if p.db != nil {
		if err := p.db.RecordPackage(ctx, result); err != nil {
			return result, fmt.Errorf("package created but not recorded: %w", err)
		}
	}
	return result, nil
}
