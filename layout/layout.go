package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adboost/adboostctl/config"
	"github.com/adboost/adboostctl/fileutils"
	"github.com/rs/zerolog"
)

const (
	PipelineFile = "pipeline.yaml"
	BackupFile   = "backup.yaml"
	WorkflowFile = ".github/workflows/deploy.yml"
)

// Directories created by Scaffold, relative to the project root.
var Directories = []string{
	"backend",
	"frontend",
	"worker",
	"scripts",
	".github/workflows",
}

var ErrNotDirectory = errors.New("path exists and is not a directory")

type Result struct {
	Root    string
	Created []string
	Kept    []string
	DryRun  bool
}

func (r *Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("root", r.Root)
	e.Strs("created", r.Created)
	e.Strs("kept", r.Kept)
}

type scaffoldOptions struct {
	dryRun bool
}

type ScaffoldOption func(*scaffoldOptions)

func WithDryRun(dryRun bool) ScaffoldOption {
	return func(o *scaffoldOptions) {
		o.dryRun = dryRun
	}
}

type file struct {
	path  string
	write func(path string) error
}

func files() []file {
	return []file{
		{path: ".env.example", write: writeText(envTemplate(
			"Deploy secrets",
			config.EnvRenderDeployHookURL,
			config.EnvVercelToken,
		))},
		{path: "backend/.env.example", write: writeText(envTemplate(
			"API",
			config.EnvDatabaseURL,
		))},
		{path: "worker/.env.example", write: writeText(envTemplate(
			"Database backup",
			config.EnvGoogleServiceAccountFile,
			config.EnvGDriveFolderID,
			config.EnvDatabaseURL,
		))},
		{path: PipelineFile, write: func(path string) error {
			return config.WriteFile(path, config.DefaultPipelineConfig())
		}},
		{path: BackupFile, write: func(path string) error {
			return config.WriteFile(path, config.DefaultBackupConfig())
		}},
		{path: WorkflowFile, write: writeText(workflowTemplate)},
	}
}

// Scaffold creates the project layout under root. Existing files and
// directories are left as they are.
func Scaffold(root string, logger zerolog.Logger, opts ...ScaffoldOption) (*Result, error) {
	o := scaffoldOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	result := &Result{Root: root, DryRun: o.dryRun}
	logger = logger.With().Str("root", root).Logger()

	for _, dir := range append([]string{"."}, Directories...) {
		p := filepath.Join(root, filepath.FromSlash(dir))
		info, err := os.Stat(p)
		switch {
		case err == nil && !info.IsDir():
			return result, fmt.Errorf("%w: %s", ErrNotDirectory, p)
		case err == nil:
			if dir != "." {
				result.Kept = append(result.Kept, dir+"/")
			}
			continue
		case !errors.Is(err, os.ErrNotExist):
			return result, err
		}

		if dir != "." {
			result.Created = append(result.Created, dir+"/")
		}
		if o.dryRun {
			logger.Info().Str("dir", dir).Msg("would create directory (dry run)")
			continue
		}
		if err := os.MkdirAll(p, 0755); err != nil {
			return result, fmt.Errorf("failed to create directory: %w", err)
		}
		logger.Debug().Str("dir", dir).Msg("created directory")
	}

	for _, f := range files() {
		p := filepath.Join(root, filepath.FromSlash(f.path))
		if fileutils.Exists(p) {
			logger.Debug().Str("file", f.path).Msg("file exists, keeping it")
			result.Kept = append(result.Kept, f.path)
			continue
		}

		result.Created = append(result.Created, f.path)
		if o.dryRun {
			logger.Info().Str("file", f.path).Msg("would create file (dry run)")
			continue
		}
		if err := f.write(p); err != nil {
			return result, fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		logger.Debug().Str("file", f.path).Msg("created file")
	}

	return result, nil
}

func writeText(content string) func(string) error {
	return func(path string) error {
		return os.WriteFile(path, []byte(content), 0644)
	}
}

func envTemplate(title string, keys ...string) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n")
	for _, k := range keys {
		b.WriteString(k + "=\n")
	}
	return b.String()
}

const workflowTemplate = `name: Deploy AdBoost

on:
  push:
    branches: [ main ]

jobs:
  build-deploy:
    runs-on: ubuntu-latest
    steps:
      - name: Checkout repository
        uses: actions/checkout@v4

      - name: Set up Node.js
        uses: actions/setup-node@v4
        with:
          node-version: '18'

      - name: Set up Go
        uses: actions/setup-go@v5
        with:
          go-version: '1.23'

      - name: Deploy
        env:
          RENDER_DEPLOY_HOOK_URL: ${{ secrets.RENDER_DEPLOY_HOOK_URL }}
          VERCEL_TOKEN: ${{ secrets.VERCEL_TOKEN }}
        run: |
          go run github.com/adboost/adboostctl@latest deploy -c pipeline.yaml
`
