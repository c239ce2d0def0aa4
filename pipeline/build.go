package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/adboost/adboostctl/asset"
	"github.com/adboost/adboostctl/config"
)

// FromConfig builds a pipeline, resolving every environment reference
// through lookup. Unresolved references fail the whole pipeline so that
// no step runs with an empty secret.
func FromConfig(cfg *config.PipelineConfig, lookup LookupFunc) (*Pipeline, error) {
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("%w: pipeline has no steps", ErrInvalidStep)
	}

	x := newExpander(lookup)
	p := &Pipeline{Name: cfg.Name, Steps: make([]Step, 0, len(cfg.Steps))}
	var errs []error

	for i, sc := range cfg.Steps {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}

		action, err := actionFromConfig(sc, x)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %w", ErrInvalidStep, name, err))
			continue
		}
		p.Steps = append(p.Steps, Step{Name: name, Action: action})
	}

	if err := x.err(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	p.secrets = x.secrets()
	return p, nil
}

// DefaultPipeline builds the standard AdBoost deploy pipeline.
func DefaultPipeline(lookup LookupFunc) (*Pipeline, error) {
	return FromConfig(config.DefaultPipelineConfig(), lookup)
}

func actionFromConfig(sc config.StepConfig, x *expander) (Action, error) {
	switch Kind(strings.ToLower(sc.Kind)) {
	case KindRun:
		if sc.Command == "" {
			return nil, errors.New("run step needs a command")
		}
		return &RunAction{
			Dir:     x.expand(sc.Dir),
			Command: x.expand(sc.Command),
			Args:    x.expandAll(sc.Args),
			Env:     x.expandMap(sc.Env),
		}, nil
	case KindPackage:
		if err := asset.ValidatePatterns(sc.Exclude); err != nil {
			return nil, err
		}
		return &PackageAction{
			Source:  x.expand(sc.Source),
			Dest:    x.expand(sc.Dest),
			Prefix:  sc.Prefix,
			Exclude: sc.Exclude,
			MaxSize: sc.MaxSize.Size,
		}, nil
	case KindWebhook:
		if sc.URL == "" {
			return nil, errors.New("webhook step needs a url")
		}
		method := strings.ToUpper(sc.Method)
		if method == "" {
			method = http.MethodPost
		}
		body := "{}"
		if sc.Body != nil {
			body = *sc.Body
		}
		return &WebhookAction{
			URL:     x.expand(sc.URL),
			Method:  method,
			Body:    x.expand(body),
			Headers: x.expandMap(sc.Headers),
		}, nil
	case "":
		return nil, errors.New("missing step kind")
	default:
		return nil, fmt.Errorf("unknown step kind %q", sc.Kind)
	}
}
