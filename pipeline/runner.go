package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/adboost/adboostctl/ziparchiver"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultWebhookTimeout = 30 * time.Second

type Runner struct {
	ProjectDir string
	DryRun     bool
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// Called after every package step that produced an archive.
	OnPackage func(ctx context.Context, r *ziparchiver.PackResult)
	// Defaults to time.Now.
	Clock func() time.Time
}

// Run executes the steps in order and stops at the first failure. Steps
// after a failure are reported as skipped. A step interrupted by ctx is
// reported as cancelled, and so is the run. The returned error is the
// failed step's error, or ctx's error for a cancelled run.
func (r *Runner) Run(ctx context.Context, p *Pipeline) (*Report, error) {
	clock := r.Clock
	if clock == nil {
		clock = time.Now
	}
	client := r.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}

	report := &Report{
		ID:        uuid.NewString(),
		Name:      p.Name,
		DryRun:    r.DryRun,
		StartedAt: clock(),
		Steps:     make([]StepResult, 0, len(p.Steps)),
	}

	logger := r.Logger.With().Str("pipeline", p.Name).Str("run_id", report.ID).Logger()
	logger.Info().Int("steps", len(p.Steps)).Msg("starting pipeline")

	redact := newRedactor(p.secrets)
	failed, cancelled := false, false
	for i, step := range p.Steps {
		result := StepResult{Name: step.Name, Kind: step.Action.Kind()}

		if failed || ctx.Err() != nil {
			result.Status = StatusSkipped
			if !failed {
				result.Err = ctx.Err()
				cancelled = true
			}
			report.Steps = append(report.Steps, result)
			continue
		}

		stepLogger := logger.With().Int("step", i+1).Str("step_name", step.Name).Logger()
		stepLogger.Info().Object("action", step.Action).Msg("starting step")

		result.StartedAt = clock()
		err := step.Action.Run(ctx, &StepEnv{
			ProjectDir: r.ProjectDir,
			DryRun:     r.DryRun,
			HTTPClient: client,
			Logger:     stepLogger,
			OnPackage:  r.OnPackage,
			redact:     redact,
		})
		result.Duration = clock().Sub(result.StartedAt)

		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			result.Status = StatusCancelled
			result.Err = redact.Error(err)
			cancelled = true
			stepLogger.Warn().Err(result.Err).Object("result", result).Msg("step cancelled")
		} else if err != nil {
			result.Status = StatusFailed
			result.Err = redact.Error(err)
			failed = true
			stepLogger.Error().Err(result.Err).Object("result", result).Msg("step failed")
		} else {
			result.Status = StatusSucceeded
			stepLogger.Info().Object("result", result).Msg("step done")
		}
		report.Steps = append(report.Steps, result)
	}

	report.FinishedAt = clock()
	report.Status = StatusSucceeded
	if failed {
		report.Status = StatusFailed
	} else if cancelled {
		report.Status = StatusCancelled
	}

	logger.Info().Object("report", report).Msg("pipeline finished")

	if err := report.Err(); err != nil {
		return report, err
	}
	if cancelled {
		return report, ctx.Err()
	}
	return report, nil
}
