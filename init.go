package main

import (
	"context"
	"path"
	"path/filepath"

	"github.com/adboost/adboostctl/fileutils"
	"github.com/adboost/adboostctl/layout"
	"github.com/adboost/adboostctl/pipeline"
	"github.com/rs/zerolog"
)

// Project folders that carry their own npm dependencies.
var npmProjects = []string{"backend", "frontend", "worker"}

func initCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Init.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	result, err := layout.Scaffold(args.Init.Project, logger, layout.WithDryRun(args.Init.DryRun))
	if err != nil {
		return err
	}
	logger.Info().Object("layout", result).Msg("project layout ready")

	_, err = setupProject(ctx, result.Root, setupSteps{
		install: args.Init.Install,
		seed:    args.Init.Seed,
		compose: args.Init.Compose,
	}, args.Init.DryRun, logger)
	return err
}

// Demo data script of the backend, relative to the project root.
const seedScript = "backend/src/db/seed-demo.js"

var composeFiles = []string{"docker-compose.yml", "docker-compose.yaml", "compose.yaml"}

type setupSteps struct {
	install bool
	seed    bool
	compose bool
}

// setupProject runs the local setup sequence in order: npm install in every
// npm project folder with a package.json, the demo data seed, then
// docker-compose. Steps whose files are missing are left out. It returns
// nil when there is nothing to run.
func setupProject(ctx context.Context, root string, steps setupSteps, dryRun bool, logger zerolog.Logger) (*pipeline.Report, error) {
	p := &pipeline.Pipeline{Name: "Local setup"}
	if steps.install {
		for _, dir := range npmProjects {
			if !fileutils.Exists(filepath.Join(root, dir, "package.json")) {
				logger.Info().Str("dir", dir).Msg("no package.json, skipping npm install")
				continue
			}
			p.Steps = append(p.Steps, pipeline.Step{
				Name: "Install " + dir + " dependencies",
				Action: &pipeline.RunAction{
					Dir:     dir,
					Command: "npm",
					Args:    []string{"install"},
				},
			})
		}
	}
	if steps.seed {
		if fileutils.Exists(filepath.Join(root, filepath.FromSlash(seedScript))) {
			p.Steps = append(p.Steps, pipeline.Step{
				Name: "Seed demo data",
				Action: &pipeline.RunAction{
					Dir:     path.Dir(seedScript),
					Command: "node",
					Args:    []string{path.Base(seedScript)},
				},
			})
		} else {
			logger.Warn().Str("script", seedScript).Msg("no seed script, skipping demo data")
		}
	}
	if steps.compose {
		if composeFileExists(root) {
			p.Steps = append(p.Steps, pipeline.Step{
				Name: "Run with Docker Compose",
				Action: &pipeline.RunAction{
					Command: "docker-compose",
					Args:    []string{"up", "--build"},
				},
			})
		} else {
			logger.Warn().Msg("no docker compose file, skipping docker-compose")
		}
	}
	if len(p.Steps) == 0 {
		return nil, nil
	}

	runner := &pipeline.Runner{
		ProjectDir: root,
		DryRun:     dryRun,
		Logger:     logger,
	}
	return runner.Run(ctx, p)
}

func composeFileExists(root string) bool {
	for _, name := range composeFiles {
		if fileutils.Exists(filepath.Join(root, name)) {
			return true
		}
	}
	return false
}
