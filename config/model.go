package config

import "github.com/rs/zerolog"

type PipelineConfig struct {
	Name  string       `json:"name" yaml:"name"`
	Steps []StepConfig `json:"steps" yaml:"steps"`
}

// StepConfig describes one pipeline step. Which fields apply depends on Kind.
type StepConfig struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`

	// run
	Dir     string            `json:"dir,omitempty" yaml:"dir,omitempty"`
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// package
	Source  string       `json:"source,omitempty" yaml:"source,omitempty"`
	Dest    string       `json:"dest,omitempty" yaml:"dest,omitempty"`
	Prefix  string       `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Exclude []string     `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	MaxSize SizeArgument `json:"max_size,omitempty" yaml:"max_size,omitempty"`

	// webhook
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Body    *string           `json:"body,omitempty" yaml:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

type BackupConfig struct {
	Jobs []JobConfig `json:"jobs" yaml:"jobs"`
}

type JobConfig struct {
	Name     string      `json:"name" yaml:"name"`
	Schedule string      `json:"cron" yaml:"cron"`
	Command  string      `json:"command" yaml:"command"`
	Args     []string    `json:"args,omitempty" yaml:"args,omitempty"`
	Dir      string      `json:"dir,omitempty" yaml:"dir,omitempty"`
	Env      []EnvConfig `json:"env,omitempty" yaml:"env,omitempty"`
	Timeout  Duration    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Enable   bool        `json:"enable" yaml:"enable"`
}

// EnvConfig sets one variable for a job, either literally or copied
// from the environment of the running process.
type EnvConfig struct {
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value,omitempty" yaml:"value,omitempty"`
	FromEnv string `json:"from_env,omitempty" yaml:"from_env,omitempty"`
}

func (j JobConfig) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", j.Name)
	e.Str("schedule", j.Schedule)
	e.Str("command", j.Command)
	e.Bool("enable", j.Enable)

	if j.Dir != "" {
		e.Str("dir", j.Dir)
	}
	if j.Timeout.Duration > 0 {
		e.Dur("timeout", j.Timeout.Duration)
	}
	keys := make([]string, 0, len(j.Env))
	for _, v := range j.Env {
		keys = append(keys, v.Key)
	}
	e.Strs("env", keys)
}
