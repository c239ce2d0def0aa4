package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adboost/adboostctl/database"
	"github.com/adboost/adboostctl/fileutils"
	"github.com/adboost/adboostctl/pipeline"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("196"))
)

const historyTimeLayout = "2006-01-02 15:04:05"

func historyCommand(ctx context.Context, args Command, out io.Writer) error {
	db, err := openDatabase(args.History.Database, zerolog.Nop(), true)
	if err != nil {
		return err
	}
	return printHistory(ctx, db, historyParams{
		kind:   args.History.Kind,
		name:   args.History.Name,
		source: args.History.Source,
		limit:  args.History.Limit,
	}, out)
}

type historyParams struct {
	kind   string
	name   string
	source string
	limit  int
}

func printHistory(ctx context.Context, db *database.Database, p historyParams, out io.Writer) error {
	opts := []database.FindOption{database.WithFindName(p.name)}
	if p.limit > 0 {
		opts = append(opts, database.WithFindLimit(p.limit))
	}

	var headers []string
	var rows [][]string
	switch p.kind {
	case "packages":
		if p.source != "" {
			src, err := filepath.Abs(p.source)
			if err != nil {
				return err
			}
			opts = append(opts, database.WithFindSource(src))
		}
		headers = []string{"CREATED", "ARCHIVE", "SOURCE", "FILES", "SIZE", "ARCHIVE SIZE", "HASH"}
		for pkg, err := range db.FindPackages(ctx, opts...) {
			if err != nil {
				return err
			}
			rows = append(rows, []string{
				formatTime(pkg.CreatedAt),
				pkg.Path,
				pkg.SourcePath,
				strconv.Itoa(pkg.EntryCount),
				units.HumanSize(float64(pkg.Size)),
				units.HumanSize(float64(pkg.ArchiveSize)),
				fileutils.FormatHash(uint64(pkg.Hash)),
			})
		}
	case "pipelines":
		runs, err := db.FindPipelineRuns(ctx, opts...)
		if err != nil {
			return err
		}
		headers = []string{"STARTED", "ID", "PIPELINE", "STATUS", "STEPS", "DURATION", "ERROR"}
		for _, r := range runs {
			succeeded := 0
			for _, s := range r.Steps {
				if s.Status == string(pipeline.StatusSucceeded) {
					succeeded++
				}
			}
			status := r.Status
			if r.DryRun {
				status += " (dry run)"
			}
			rows = append(rows, []string{
				formatTime(r.StartedAt),
				r.ID,
				r.Name,
				status,
				fmt.Sprintf("%d/%d", succeeded, len(r.Steps)),
				formatDuration(r.FinishedAt.Sub(r.StartedAt)),
				r.Error,
			})
		}
	case "backups":
		runs, err := db.FindBackupRuns(ctx, opts...)
		if err != nil {
			return err
		}
		headers = []string{"STARTED", "ID", "JOB", "STATUS", "EXIT CODE", "DURATION", "ERROR"}
		for _, r := range runs {
			rows = append(rows, []string{
				formatTime(r.StartedAt),
				r.ID,
				r.Job,
				r.Status,
				strconv.Itoa(r.ExitCode),
				formatDuration(r.Duration),
				r.Error,
			})
		}
	default:
		return fmt.Errorf("unknown history kind %q", p.kind)
	}

	_, err := fmt.Fprintln(out, renderTable(headers, rows))
	return err
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && headers[col] == "STATUS" && rows[row][col] == string(pipeline.StatusFailed) {
				return failedStyle
			}
			return cellStyle
		}).
		Render()
}

func formatTime(t time.Time) string {
	return t.Local().Format(historyTimeLayout)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
