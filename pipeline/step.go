package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adboost/adboostctl/ziparchiver"
	"github.com/rs/zerolog"
)

// StepEnv carries what a running step may use.
type StepEnv struct {
	ProjectDir string
	DryRun     bool
	HTTPClient *http.Client
	Logger     zerolog.Logger
	OnPackage  func(ctx context.Context, r *ziparchiver.PackResult)

	redact *redactor
}

func (e *StepEnv) resolve(dir string) string {
	if dir == "" {
		return e.ProjectDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(e.ProjectDir, dir)
}

type RunAction struct {
	Dir     string
	Command string
	Args    []string
	Env     map[string]string
}

func (a *RunAction) Kind() Kind { return KindRun }

func (a *RunAction) MarshalZerologObject(e *zerolog.Event) {
	e.Str("command", a.Command)
	if a.Dir != "" {
		e.Str("dir", a.Dir)
	}
}

const (
	stderrTailLines = 20
	waitDelay       = 5 * time.Second
)

func (a *RunAction) Run(ctx context.Context, env *StepEnv) error {
	dir := env.resolve(a.Dir)
	logger := env.Logger.With().Str("command", a.Command).Str("dir", dir).Logger()
	logger.Info().Strs("args", env.redact.Strings(a.Args)).Msg("running command")

	if env.DryRun {
		logger.Info().Msg("would run command (dry run)")
		return nil
	}

	cmd := exec.CommandContext(ctx, a.Command, a.Args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	cmd.Env = os.Environ()
	for k, v := range a.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout := newLogWriter(logger, zerolog.InfoLevel, "stdout", env.redact, 0)
	stderr := newLogWriter(logger, zerolog.WarnLevel, "stderr", env.redact, stderrTailLines)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", a.Command, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if tail := stderr.Tail(); tail != "" {
				return fmt.Errorf("%s exited with code %d: %s", a.Command, exitErr.ExitCode(), tail)
			}
			return fmt.Errorf("%s exited with code %d", a.Command, exitErr.ExitCode())
		}
		return fmt.Errorf("could not run %s: %w", a.Command, err)
	}
	return nil
}

type PackageAction struct {
	Source  string
	Dest    string
	Prefix  string
	Exclude []string
	MaxSize int64
}

func (a *PackageAction) Kind() Kind { return KindPackage }

func (a *PackageAction) MarshalZerologObject(e *zerolog.Event) {
	e.Str("source", a.Source)
	if a.Dest != "" {
		e.Str("dest", a.Dest)
	}
	e.Strs("exclude", a.Exclude)
}

func (a *PackageAction) Run(ctx context.Context, env *StepEnv) error {
	source := env.resolve(a.Source)
	dest := source
	if a.Dest != "" {
		dest = env.resolve(a.Dest)
	}

	opts := []ziparchiver.PackOption{ziparchiver.WithDryRun(env.DryRun)}
	if a.MaxSize > 0 {
		opts = append(opts, ziparchiver.WithMaxArchiveBytes(a.MaxSize))
	}

	result, err := ziparchiver.PackProject(
		ctx,
		source,
		ziparchiver.ArchiveDescriptor{Dir: dest, Prefix: a.Prefix},
		a.Exclude,
		env.Logger,
		opts...,
	)
	if err != nil {
		return err
	}

	if env.OnPackage != nil {
		env.OnPackage(ctx, result)
	}
	return nil
}

type WebhookAction struct {
	URL     string
	Method  string
	Body    string
	Headers map[string]string
}

func (a *WebhookAction) Kind() Kind { return KindWebhook }

func (a *WebhookAction) MarshalZerologObject(e *zerolog.Event) {
	e.Str("method", a.Method)
}

const maxErrorBodyBytes = 512

func (a *WebhookAction) Run(ctx context.Context, env *StepEnv) error {
	logger := env.Logger.With().
		Str("method", a.Method).
		Str("url", env.redact.String(a.URL)).
		Logger()
	logger.Info().Msg("calling webhook")

	if env.DryRun {
		logger.Info().Msg("would call webhook (dry run)")
		return nil
	}

	var body io.Reader
	if a.Body != "" {
		body = strings.NewReader(a.Body)
	}
	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, body)
	if err != nil {
		return env.redact.Error(fmt.Errorf("could not create webhook request: %w", err))
	}
	if a.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	client := env.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return env.redact.Error(fmt.Errorf("webhook request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(bytes.ToValidUTF8(respBody, nil)))
		if msg != "" {
			return fmt.Errorf("webhook returned %s: %s", resp.Status, env.redact.String(msg))
		}
		return fmt.Errorf("webhook returned %s", resp.Status)
	}

	logger.Info().Int("status", resp.StatusCode).Msg("webhook accepted")
	return nil
}
