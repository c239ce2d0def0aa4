package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adboost/adboostctl/backup"
	"github.com/adboost/adboostctl/config"
	"github.com/adboost/adboostctl/database"
	"github.com/adboost/adboostctl/pipeline"
	"github.com/adboost/adboostctl/scheduler"
	"github.com/adboost/adboostctl/ziparchiver"
	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := openDatabase(filepath.Join(t.TempDir(), "registry.db"), zerolog.Nop(), false)
	require.NoError(t, err)
	return db
}

func TestCleanOldPackages(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	dir := t.TempDir()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)

	var paths []string
	for i := range 4 {
		created := base.Add(time.Duration(i) * time.Hour)
		path := filepath.Join(dir, ziparchiver.ArchiveName(ziparchiver.DefaultPrefix, created))
		require.NoError(t, os.WriteFile(path, []byte("zip"), 0644))
		require.NoError(t, db.RecordPackage(ctx, &ziparchiver.PackResult{
			Path:       path,
			SourcePath: "/project",
			CreatedAt:  created,
			Entries:    []ziparchiver.Entry{{Name: "a.txt", Size: 3}},
		}))
		paths = append(paths, path)
	}
	// A package whose file is already gone
	require.NoError(t, db.RecordPackage(ctx, &ziparchiver.PackResult{
		Path:       filepath.Join(dir, "gone.zip"),
		SourcePath: "/project",
		CreatedAt:  base.Add(-time.Hour),
	}))

	result, err := cleanOldPackages(ctx, cleanParams{keep: 2, db: db, logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.ElementsMatch(t, paths[:2], result.deleted)
	assert.Equal(t, int64(6), result.freed)

	for _, p := range paths[:2] {
		assert.NoFileExists(t, p)
	}
	for _, p := range paths[2:] {
		assert.FileExists(t, p)
	}

	var left []string
	for pkg, err := range db.FindPackages(ctx) {
		require.NoError(t, err)
		left = append(left, pkg.Path)
	}
	assert.Equal(t, []string{paths[3], paths[2]}, left)
}

func TestCleanOldPackages_DryRun(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	for i := range 2 {
		created := time.Now().Add(time.Duration(i) * time.Hour)
		path := filepath.Join(dir, ziparchiver.ArchiveName(ziparchiver.DefaultPrefix, created))
		require.NoError(t, os.WriteFile(path, []byte("zip"), 0644))
		require.NoError(t, db.RecordPackage(ctx, &ziparchiver.PackResult{Path: path, SourcePath: "/project", CreatedAt: created}))
	}

	db.DryRun = true
	result, err := cleanOldPackages(ctx, cleanParams{keep: 0, dryRun: true, db: db, logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Empty(t, result.deleted)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunPipeline_RecordsRunAndPackage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "index.js"), []byte("console.log(1)"), 0644))

	db := testDB(t)
	cfg := &config.PipelineConfig{
		Name: "deploy",
		Steps: []config.StepConfig{
			{Name: "Package project", Kind: "package"},
			{Name: "Deploy to Render (API)", Kind: "webhook", URL: "${" + config.EnvRenderDeployHookURL + "}"},
		},
	}
	lookup := func(key string) (string, bool) {
		if key == config.EnvRenderDeployHookURL {
			return srv.URL, true
		}
		return "", false
	}

	report, err := runPipeline(context.Background(), deployParams{
		cfg:         cfg,
		projectPath: project,
		lookup:      lookup,
		db:          db,
		logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSucceeded, report.Status)
	assert.Equal(t, int32(1), hits.Load())

	runs, err := db.FindPipelineRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.ID, runs[0].ID)
	assert.Len(t, runs[0].Steps, 2)

	var pkgs []database.Package
	for pkg, err := range db.FindPackages(context.Background()) {
		require.NoError(t, err)
		pkgs = append(pkgs, pkg)
	}
	require.Len(t, pkgs, 1)
	assert.Equal(t, 1, pkgs[0].EntryCount)
	assert.FileExists(t, pkgs[0].Path)
}

func TestRunPipeline_MissingSecret(t *testing.T) {
	db := testDB(t)
	_, err := runPipeline(context.Background(), deployParams{
		cfg:         config.DefaultPipelineConfig(),
		projectPath: t.TempDir(),
		lookup:      func(string) (string, bool) { return "", false },
		db:          db,
		logger:      zerolog.Nop(),
	})
	require.ErrorIs(t, err, pipeline.ErrMissingSecret)

	runs, err := db.FindPipelineRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSelectJob(t *testing.T) {
	cfg := &config.BackupConfig{Jobs: []config.JobConfig{{Name: "first"}, {Name: "second"}}}

	jc, err := selectJob(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "first", jc.Name)

	jc, err = selectJob(cfg, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", jc.Name)

	_, err = selectJob(cfg, "third")
	assert.Error(t, err)

	_, err = selectJob(&config.BackupConfig{}, "")
	assert.Error(t, err)
}

func TestRunBackupJob_Records(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no shell available")
	}
	db := testDB(t)
	job := &backup.Job{Name: "db-backup", Command: "/bin/sh", Args: []string{"-c", "exit 3"}}

	err := runBackupJob(context.Background(), job, db, zerolog.Nop())
	require.Error(t, err)

	runs, err := db.FindBackupRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "db-backup", runs[0].Job)
	assert.Equal(t, 3, runs[0].ExitCode)
	assert.Equal(t, string(backup.StatusFailed), runs[0].Status)
}

func TestAddBackupJobsFromConfig(t *testing.T) {
	sched := scheduler.NewScheduler(scheduler.SchedulerParams{Logger: zerolog.Nop()})
	cfg := &config.BackupConfig{Jobs: []config.JobConfig{
		{Name: "daily", Schedule: "0 2 * * *", Command: "true", Enable: true},
		{Name: "daily", Schedule: "0 3 * * *", Command: "true", Enable: true},
		{Name: "disabled", Schedule: "0 4 * * *", Command: "true"},
		{Name: "invalid", Schedule: "every day", Command: "true", Enable: true},
		{Name: "weekly", Schedule: "CRON_TZ=UTC 0 5 * * 0", Command: "true", Enable: true},
	}}

	added := addBackupJobsFromConfig(context.Background(), sched, cfg, testDB(t), false, zerolog.Nop())
	assert.Equal(t, 2, added)

	entries := sched.Entries()
	require.Len(t, entries, 2)
	names := []string{entries[0].Name, entries[1].Name}
	assert.ElementsMatch(t, []string{"daily", "weekly"}, names)

	sched.RemoveJobs()
	assert.Empty(t, sched.Entries())
}

func TestCommand_DaemonDatabaseIsOptional(t *testing.T) {
	var args Command
	parser, err := kong.New(&args, cliVars())
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"daemon", "-c", "backup.yaml", "--dry-run"})
	require.NoError(t, err)
	assert.Equal(t, "daemon", kctx.Command())
	assert.Empty(t, args.Daemon.Database)
	assert.True(t, args.Daemon.DryRun)
}

func TestScheduledBackupJob_DryRunSkipsCommand(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no shell available")
	}
	marker := filepath.Join(t.TempDir(), "ran")
	job := &backup.Job{Name: "adboost-db-backup", Command: "/bin/sh", Args: []string{"-c", `touch "$0"`, marker}}

	db := testDB(t)
	scheduled := &scheduledBackupJob{ctx: context.Background(), job: job, db: db, dryRun: true, logger: zerolog.Nop()}
	scheduled.Run()

	assert.NoFileExists(t, marker)
	runs, err := db.FindBackupRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)

	scheduled.dryRun = false
	scheduled.Run()
	assert.FileExists(t, marker)
	runs, err = db.FindBackupRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestPrintHistory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	start := time.Now()

	require.NoError(t, db.RecordPipelineRun(ctx, &pipeline.Report{
		ID:         "run-ok",
		Name:       "deploy",
		Status:     pipeline.StatusSucceeded,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Steps:      []pipeline.StepResult{{Name: "build", Kind: pipeline.KindRun, Status: pipeline.StatusSucceeded}},
	}))
	require.NoError(t, db.RecordPipelineRun(ctx, &pipeline.Report{
		ID:         "run-bad",
		Name:       "deploy",
		Status:     pipeline.StatusFailed,
		StartedAt:  start.Add(time.Minute),
		FinishedAt: start.Add(time.Minute),
		Steps:      []pipeline.StepResult{{Name: "build", Kind: pipeline.KindRun, Status: pipeline.StatusFailed, Err: errors.New("boom")}},
	}))
	require.NoError(t, db.RecordBackupRun(ctx, backup.Result{ID: "backup-1", Job: "daily", Status: backup.StatusSucceeded, StartedAt: start}))

	var out bytes.Buffer
	require.NoError(t, printHistory(ctx, db, historyParams{kind: "pipelines", limit: 10}, &out))
	assert.Contains(t, out.String(), "run-ok")
	assert.Contains(t, out.String(), "run-bad")
	assert.Contains(t, out.String(), "1/1")
	assert.Contains(t, out.String(), "boom")

	out.Reset()
	require.NoError(t, printHistory(ctx, db, historyParams{kind: "backups"}, &out))
	assert.Contains(t, out.String(), "backup-1")
	assert.Contains(t, out.String(), "daily")

	out.Reset()
	require.NoError(t, printHistory(ctx, db, historyParams{kind: "packages"}, &out))
	assert.Contains(t, out.String(), "ARCHIVE")

	assert.Error(t, printHistory(ctx, db, historyParams{kind: "other"}, &out))
}

func TestPreviewHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "main.js"), []byte("run()"), 0644))

	srv := httptest.NewServer(previewHandler(dir, zerolog.Nop()))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	status, body := get("/assets/main.js")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "run()", body)

	status, body = get("/campaigns/42")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "<html>app</html>", body)

	status, _ = get("/assets/missing.js")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServePreview_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("ok"), 0644))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- servePreview(ctx, ln, dir, zerolog.Nop())
	}()

	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("preview server did not stop")
	}
}

func TestSetupProject_NothingToRun(t *testing.T) {
	report, err := setupProject(context.Background(), t.TempDir(), setupSteps{install: true, seed: true, compose: true}, false, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestSetupProject_DryRun(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "frontend"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "frontend", "package.json"), []byte("{}"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "backend", "src", "db"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "backend", "src", "db", "seed-demo.js"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docker-compose.yml"), []byte("services: {}"), 0644))

	report, err := setupProject(context.Background(), root, setupSteps{install: true, seed: true, compose: true}, true, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, "Install frontend dependencies", report.Steps[0].Name)
	assert.Equal(t, "Seed demo data", report.Steps[1].Name)
	assert.Equal(t, "Run with Docker Compose", report.Steps[2].Name)

	report, err = setupProject(context.Background(), root, setupSteps{seed: true}, true, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, "Seed demo data", report.Steps[0].Name)
}

func TestWhen_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticks := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	out := when(ctx, ticks)

	ticks <- time.Now()
	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("tick not forwarded")
	}

	cancel()
	_, ok := <-out
	assert.False(t, ok)
}
