package main

import (
	"context"
	"fmt"
	"time"

	"github.com/adboost/adboostctl/backup"
	"github.com/adboost/adboostctl/config"
	"github.com/adboost/adboostctl/database"
	"github.com/adboost/adboostctl/fileutils"
	"github.com/adboost/adboostctl/scheduler"
	"github.com/rs/zerolog"
)

const configCheckInterval = 30 * time.Second

func daemonCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Daemon.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadBackupFromFile(args.Daemon.Config)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	var db *database.Database
	if args.Daemon.Database != "" {
		db, err = openDatabase(args.Daemon.Database, logger, args.Daemon.DryRun)
		if err != nil {
			return err
		}
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	added := addBackupJobsFromConfig(ctx, sched, cfg, db, args.Daemon.DryRun, logger)
	if added == 0 {
		logger.Warn().Msg("no backup jobs scheduled")
	}

	ticker := time.NewTicker(configCheckInterval)
	defer ticker.Stop()
	startConfigFileWatcher(ctx, args.Daemon.Config, logger, ticker, func(cfg *config.BackupConfig) {
		sched.RemoveJobs()
		addBackupJobsFromConfig(ctx, sched, cfg, db, args.Daemon.DryRun, logger)
	})

	sched.Start()
	defer sched.Stop()

	for _, e := range sched.Entries() {
		logger.Info().Str("job", e.Name).Time("next", e.Next).Msg("next backup run")
	}

	<-ctx.Done()

	return nil
}

// addBackupJobsFromConfig schedules every enabled job and returns how
// many were added. Dry-run jobs only log when they would have run.
func addBackupJobsFromConfig(
	ctx context.Context,
	sched *scheduler.Scheduler,
	cfg *config.BackupConfig,
	db *database.Database,
	dryRun bool,
	logger zerolog.Logger,
) int {
	names := make(map[string]struct{})
	added := 0

	for _, jc := range cfg.Jobs {
		if _, ok := names[jc.Name]; ok {
			logger.Warn().Str("job", jc.Name).Msg("skipping duplicate backup job")
			continue
		}
		names[jc.Name] = struct{}{}

		job, err := backup.FromConfig(jc)
		if err != nil {
			logger.Warn().AnErr("cause", err).Msg("skipping backup job")
			continue
		}

		if !jc.Enable {
			logger.Info().Str("job", jc.Name).Msg("skipping disabled backup job")
			continue
		}

		scheduled := &scheduledBackupJob{
			ctx:    ctx,
			job:    job,
			db:     db,
			dryRun: dryRun,
			logger: logger,
		}
		if err := sched.AddJob(job.Name, job.Schedule, scheduled); err != nil {
			logger.Error().Err(err).Str("job", jc.Name).Msg("could not add backup job")
			continue
		}

		added++
		logger.Info().
			Object("job", jc).
			Msg("added backup job")
	}
	return added
}

func startConfigFileWatcher(ctx context.Context, cfgPath string, logger zerolog.Logger, ticker *time.Ticker, onChanged func(cfg *config.BackupConfig)) {
	logger.Info().Str("path", cfgPath).Msg("watching config file for changes")
	watcher, err := fileutils.WatchFile(ctx, cfgPath, when(ctx, ticker.C), func(err error) {
		logger.Error().Err(err).Msg("could not watch config file")
	})
	if err != nil {
		logger.Error().Err(err).Msg("could not watch config file")
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher:
				if !ok {
					return
				}
				logger.Info().Str("path", cfgPath).Msg("config file changed, reloading")

				cfg, err := config.LoadBackupFromFile(cfgPath)
				if err != nil {
					logger.Error().Err(err).Msg("could not load config, keeping current jobs")
					break
				}

				onChanged(cfg)
			}
		}
	}()
}

// when forwards every value of ch as an empty struct. time.Ticker never
// closes its channel, so the forwarder also stops with the context.
func when[T any](ctx context.Context, ch <-chan T) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type scheduledBackupJob struct {
	ctx    context.Context
	job    *backup.Job
	db     *database.Database
	dryRun bool
	logger zerolog.Logger
}

func (s *scheduledBackupJob) Run() {
	if s.ctx.Err() != nil {
		return
	}
	if s.dryRun {
		s.logger.Info().Str("job", s.job.Name).Str("command", s.job.Command).Msg("would run backup job (dry run)")
		return
	}
	if err := runBackupJob(s.ctx, s.job, s.db, s.logger); err != nil {
		s.logger.Error().Err(err).Str("job", s.job.Name).Msg("scheduled backup failed")
	}
}
