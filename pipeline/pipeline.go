package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Kind string

const (
	KindRun     Kind = "run"
	KindPackage Kind = "package"
	KindWebhook Kind = "webhook"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

var (
	ErrStepFailed    = errors.New("pipeline step failed")
	ErrMissingSecret = errors.New("missing environment variable")
	ErrInvalidStep   = errors.New("invalid pipeline step")
)

// Action is the work done by one step.
type Action interface {
	zerolog.LogObjectMarshaler
	Kind() Kind
	Run(ctx context.Context, env *StepEnv) error
}

type Step struct {
	Name   string
	Action Action
}

type Pipeline struct {
	Name  string
	Steps []Step
	// Values substituted from the environment, hidden from logs and errors.
	secrets []string
}

type StepResult struct {
	Name      string
	Kind      Kind
	Status    Status
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

func (r StepResult) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", r.Name)
	e.Str("kind", string(r.Kind))
	e.Str("status", string(r.Status))
	if r.Status != StatusSkipped {
		e.Float64("seconds", r.Duration.Seconds())
	}
	if r.Err != nil {
		e.Str("error", r.Err.Error())
	}
}

type Report struct {
	ID         string
	Name       string
	Status     Status
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult
}

// Err returns the error of the failed step, if any.
func (r *Report) Err() error {
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			return fmt.Errorf("%w: %q: %w", ErrStepFailed, s.Name, s.Err)
		}
	}
	return nil
}

func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", r.ID)
	e.Str("name", r.Name)
	e.Str("status", string(r.Status))
	e.Float64("seconds", r.FinishedAt.Sub(r.StartedAt).Seconds())

	var succeeded, failed, skipped, cancelled int
	for _, s := range r.Steps {
		switch s.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		case StatusCancelled:
			cancelled++
		}
	}
	e.Int("succeeded", succeeded)
	e.Int("failed", failed)
	e.Int("skipped", skipped)
	if cancelled > 0 {
		e.Int("cancelled", cancelled)
	}
}
