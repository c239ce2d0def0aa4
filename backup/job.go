package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adboost/adboostctl/config"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var ErrInvalidJob = errors.New("invalid backup job")

// EnvVar is passed to the backup command as is. Value is used when
// FromEnv is empty, otherwise the variable is copied from the current
// process environment.
type EnvVar struct {
	Key     string
	Value   string
	FromEnv string
}

type Job struct {
	Name     string
	Schedule string
	Command  string
	Args     []string
	Dir      string
	Env      []EnvVar
	// Zero means no limit.
	Timeout time.Duration
	// Defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

func (j *Job) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", j.Name)
	e.Str("schedule", j.Schedule)
	e.Str("command", j.Command)
	e.Strs("args", j.Args)
	if j.Timeout > 0 {
		e.Dur("timeout", j.Timeout)
	}
}

type Result struct {
	ID         string
	Job        string
	Status     Status
	ExitCode   int
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
	StderrTail string
}

func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", r.ID)
	e.Str("job", r.Job)
	e.Str("status", string(r.Status))
	e.Int("exit_code", r.ExitCode)
	e.Float64("seconds", r.Duration.Seconds())
	if r.Err != nil {
		e.Str("error", r.Err.Error())
	}
}

// DefaultJob is the daily database backup.
func DefaultJob() *Job {
	job, err := FromConfig(config.DefaultBackupConfig().Jobs[0])
	if err != nil {
		panic(err)
	}
	return job
}

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether schedule is a standard five-field cron
// expression or a descriptor such as @daily. A CRON_TZ= prefix is allowed.
func ValidateSchedule(schedule string) error {
	_, err := scheduleParser.Parse(schedule)
	return err
}

func FromConfig(jc config.JobConfig) (*Job, error) {
	if jc.Name == "" {
		return nil, fmt.Errorf("%w: job must have a name", ErrInvalidJob)
	}
	if jc.Command == "" {
		return nil, fmt.Errorf("%w: job %q must have a command", ErrInvalidJob, jc.Name)
	}
	if jc.Schedule == "" {
		return nil, fmt.Errorf("%w: job %q must have a schedule", ErrInvalidJob, jc.Name)
	}
	if err := ValidateSchedule(jc.Schedule); err != nil {
		return nil, fmt.Errorf("%w: job %q: %w", ErrInvalidJob, jc.Name, err)
	}

	env := make([]EnvVar, 0, len(jc.Env))
	for _, v := range jc.Env {
		if v.Key == "" {
			return nil, fmt.Errorf("%w: job %q has an env var without key", ErrInvalidJob, jc.Name)
		}
		env = append(env, EnvVar{Key: v.Key, Value: v.Value, FromEnv: v.FromEnv})
	}

	return &Job{
		Name:     jc.Name,
		Schedule: jc.Schedule,
		Command:  jc.Command,
		Args:     jc.Args,
		Dir:      jc.Dir,
		Env:      env,
		Timeout:  jc.Timeout.Duration,
	}, nil
}

// Environ returns the child environment and the FromEnv names that were
// not set.
func (j *Job) Environ() ([]string, []string) {
	lookup := j.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	environ := os.Environ()
	var unset []string
	for _, v := range j.Env {
		value := v.Value
		if v.FromEnv != "" {
			var ok bool
			value, ok = lookup(v.FromEnv)
			if !ok {
				unset = append(unset, v.FromEnv)
			}
		}
		environ = append(environ, v.Key+"="+value)
	}
	return environ, unset
}

const (
	stderrTailBytes = 2048
	// Grace period for output pipes held open by grandchildren after the
	// command was killed.
	waitDelay = time.Second
)

// Run executes the job command once and waits for it to finish.
func (j *Job) Run(ctx context.Context, logger zerolog.Logger) (result Result) {
	result = Result{
		ID:        uuid.NewString(),
		Job:       j.Name,
		StartedAt: time.Now(),
	}
	logger = logger.With().Str("job", j.Name).Str("run_id", result.ID).Logger()
	logger.Info().Object("job", j).Msg("starting backup job")

	defer func() {
		result.Duration = time.Since(result.StartedAt)
		if result.Err != nil {
			logger.Error().Object("result", result).Msg("backup job failed")
		} else {
			logger.Info().Object("result", result).Msg("backup job done")
		}
	}()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	environ, unset := j.Environ()
	for _, name := range unset {
		logger.Warn().Str("env", name).Msg("environment variable not set, passing empty value")
	}

	cmd := exec.CommandContext(ctx, j.Command, j.Args...)
	cmd.Env = environ
	cmd.WaitDelay = waitDelay
	if j.Dir != "" {
		cmd.Dir = filepath.Clean(j.Dir)
	}
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stdout = logger.With().Str("stream", "stdout").Logger()
	cmd.Stderr = stderr

	err := cmd.Run()
	result.StderrTail = strings.TrimSpace(stderr.String())
	if err != nil {
		result.Status = StatusFailed
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		if result.StderrTail != "" {
			result.Err = fmt.Errorf("%s failed: %w: %s", j.Command, err, result.StderrTail)
		} else {
			result.Err = fmt.Errorf("%s failed: %w", j.Command, err)
		}
		return result
	}

	result.Status = StatusSucceeded
	return result
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
