package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/adboost/adboostctl/backup"
	"github.com/adboost/adboostctl/config"
	"github.com/adboost/adboostctl/database"
	"github.com/rs/zerolog"
)

func backupCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	cfg := config.DefaultBackupConfig()
	if args.Backup.Config != "" {
		var err error
		cfg, err = config.LoadBackupFromFile(args.Backup.Config)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
	}

	jc, err := selectJob(cfg, args.Backup.Job)
	if err != nil {
		return err
	}
	job, err := backup.FromConfig(jc)
	if err != nil {
		return err
	}

	var db *database.Database
	if args.Backup.Database != "" {
		db, err = openDatabase(args.Backup.Database, logger, false)
		if err != nil {
			return err
		}
	}

	return runBackupJob(ctx, job, db, logger)
}

// selectJob returns the job called name, or the first job when name is
// empty. Disabled jobs can still be run by hand.
func selectJob(cfg *config.BackupConfig, name string) (config.JobConfig, error) {
	if len(cfg.Jobs) == 0 {
		return config.JobConfig{}, errors.New("config has no backup jobs")
	}
	if name == "" {
		return cfg.Jobs[0], nil
	}
	for _, jc := range cfg.Jobs {
		if jc.Name == name {
			return jc, nil
		}
	}
	return config.JobConfig{}, fmt.Errorf("no backup job named %q", name)
}

func runBackupJob(ctx context.Context, job *backup.Job, db *database.Database, logger zerolog.Logger) error {
	result := job.Run(ctx, logger)
	if db != nil {
		if err := db.RecordBackupRun(context.WithoutCancel(ctx), result); err != nil {
			return errors.Join(result.Err, fmt.Errorf("could not record backup run: %w", err))
		}
	}
	return result.Err
}
