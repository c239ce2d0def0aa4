package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/adboost/adboostctl/config"
	"github.com/adboost/adboostctl/database"
	"github.com/adboost/adboostctl/pipeline"
	"github.com/adboost/adboostctl/ziparchiver"
	"github.com/rs/zerolog"
)

func deployCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Deploy.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg := config.DefaultPipelineConfig()
	if args.Deploy.Config != "" {
		var err error
		cfg, err = config.LoadPipelineFromFile(args.Deploy.Config)
		if err != nil {
			return fmt.Errorf("could not load pipeline config: %w", err)
		}
	}

	var db *database.Database
	if args.Deploy.Database != "" {
		var err error
		db, err = openDatabase(args.Deploy.Database, logger, args.Deploy.DryRun)
		if err != nil {
			return err
		}
	}

	_, err := runPipeline(ctx, deployParams{
		cfg:         cfg,
		projectPath: args.Deploy.Project,
		db:          db,
		dryRun:      args.Deploy.DryRun,
		logger:      logger,
	})
	return err
}

type deployParams struct {
	cfg         *config.PipelineConfig
	projectPath string
	lookup      pipeline.LookupFunc
	db          *database.Database
	dryRun      bool
	logger      zerolog.Logger
}

// runPipeline builds and runs the pipeline. When a database is given the
// packages and the run are recorded, also when the run failed.
func runPipeline(ctx context.Context, p deployParams) (*pipeline.Report, error) {
	projectPath, err := filepath.Abs(p.projectPath)
	if err != nil {
		return nil, err
	}

	pl, err := pipeline.FromConfig(p.cfg, p.lookup)
	if err != nil {
		return nil, fmt.Errorf("could not build pipeline: %w", err)
	}

	runner := &pipeline.Runner{
		ProjectDir: projectPath,
		DryRun:     p.dryRun,
		Logger:     p.logger,
	}
	if p.db != nil {
		runner.OnPackage = func(ctx context.Context, r *ziparchiver.PackResult) {
			if err := p.db.RecordPackage(ctx, r); err != nil {
				p.logger.Error().Err(err).Str("archive", r.Path).Msg("could not record package")
			}
		}
	}

	report, runErr := runner.Run(ctx, pl)
	if p.db != nil && report != nil {
		// Cancelled runs are recorded too.
		if err := p.db.RecordPipelineRun(context.WithoutCancel(ctx), report); err != nil {
			return report, errors.Join(runErr, fmt.Errorf("could not record pipeline run: %w", err))
		}
	}
	return report, runErr
}
