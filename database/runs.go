package database

import (
	"context"
	"fmt"

	"github.com/adboost/adboostctl/backup"
	"github.com/adboost/adboostctl/pipeline"
	"gorm.io/gorm"
)

func (d *Database) RecordPipelineRun(ctx context.Context, r *pipeline.Report) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Str("run_id", r.ID).Msg("would record pipeline run (dry run)")
		return nil
	}

	run := PipelineRun{
		ID:         r.ID,
		Name:       r.Name,
		Status:     string(r.Status),
		DryRun:     r.DryRun,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
	}
	if err := r.Err(); err != nil {
		run.Error = err.Error()
	}

	steps := make([]StepRun, 0, len(r.Steps))
	for i, s := range r.Steps {
		step := StepRun{
			RunID:     r.ID,
			Position:  i,
			Name:      s.Name,
			Kind:      string(s.Kind),
			Status:    string(s.Status),
			StartedAt: s.StartedAt.UTC(),
			Duration:  s.Duration,
		}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		steps = append(steps, step)
	}

	return d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Steps").Create(&run).Error; err != nil {
			return fmt.Errorf("failed to record pipeline run: %w", err)
		}
		if len(steps) > 0 {
			if err := tx.Create(&steps).Error; err != nil {
				return fmt.Errorf("failed to record pipeline steps: %w", err)
			}
		}
		return nil
	})
}

// FindPipelineRuns returns runs with their steps, newest first.
func (d *Database) FindPipelineRuns(ctx context.Context, opts ...FindOption) ([]PipelineRun, error) {
	o := findOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	d.Lock.Lock()
	defer d.Lock.Unlock()

	query := d.Cli.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).
		Order("started_at DESC")
	if o.name != "" {
		query = query.Where("name = ?", o.name)
	}
	if o.limit > 0 {
		query = query.Limit(o.limit)
	}
	if o.offset > 0 {
		query = query.Offset(o.offset)
	}

	var runs []PipelineRun
	err := query.Find(&runs).Error
	return runs, err
}

func (d *Database) RecordBackupRun(ctx context.Context, r backup.Result) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Str("run_id", r.ID).Msg("would record backup run (dry run)")
		return nil
	}

	run := BackupRun{
		ID:        r.ID,
		Job:       r.Job,
		Status:    string(r.Status),
		ExitCode:  r.ExitCode,
		StartedAt: r.StartedAt.UTC(),
		Duration:  r.Duration,
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}

	if err := d.Cli.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to record backup run: %w", err)
	}
	return nil
}

// FindBackupRuns returns backup runs, newest first.
func (d *Database) FindBackupRuns(ctx context.Context, opts ...FindOption) ([]BackupRun, error) {
	o := findOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	d.Lock.Lock()
	defer d.Lock.Unlock()

	query := d.Cli.WithContext(ctx).Order("started_at DESC")
	if o.name != "" {
		query = query.Where("job = ?", o.name)
	}
	if o.limit > 0 {
		query = query.Limit(o.limit)
	}
	if o.offset > 0 {
		query = query.Offset(o.offset)
	}

	var runs []BackupRun
	err := query.Find(&runs).Error
	return runs, err
}
