package database_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adboost/adboostctl/backup"
	"github.com/adboost/adboostctl/database"
	"github.com/adboost/adboostctl/pipeline"
	"github.com/adboost/adboostctl/ziparchiver"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Helper to set up an in-memory SQLite database
func setupTestDB(t *testing.T) *database.Database {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)

	// Every connection to :memory: is a separate database
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = gormDB.AutoMigrate(database.Models()...)
	require.NoError(t, err)

	return &database.Database{
		Lock:   sync.Mutex{},
		Cli:    gormDB,
		Logger: zerolog.Nop(),
		DryRun: false,
	}
}

func newPackResult(path, source string, created time.Time, names ...string) *ziparchiver.PackResult {
	r := &ziparchiver.PackResult{
		Path:        path,
		SourcePath:  source,
		ArchiveSize: 42,
		Hash:        12345,
		CreatedAt:   created,
	}
	for i, n := range names {
		r.Entries = append(r.Entries, ziparchiver.Entry{
			Name:    n,
			Size:    int64(10 * (i + 1)),
			Hash:    uint64(i + 1),
			ModTime: created.Add(-time.Hour),
		})
		r.Size += int64(10 * (i + 1))
	}
	return r
}

func collectPackages(t *testing.T, db *database.Database, opts ...database.FindOption) []database.Package {
	t.Helper()
	var out []database.Package
	for p, err := range db.FindPackages(context.Background(), opts...) {
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestDatabase_RecordPackage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	err := db.RecordPackage(ctx, newPackResult("/out/adboost_20240501_1030.zip", "/src", now, "a.txt", "dir/b.txt"))
	require.NoError(t, err)

	pkgs := collectPackages(t, db)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "/out/adboost_20240501_1030.zip", pkgs[0].Path)
	assert.Equal(t, "/src", pkgs[0].SourcePath)
	assert.Equal(t, 2, pkgs[0].EntryCount)
	assert.Equal(t, int64(30), pkgs[0].Size)
	assert.Equal(t, int64(42), pkgs[0].ArchiveSize)
	assert.Equal(t, int64(12345), pkgs[0].Hash)
	assert.True(t, now.Equal(pkgs[0].CreatedAt))

	entries, err := db.PackageEntries(ctx, pkgs[0].Path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, "dir/b.txt", entries[1].Name)
	assert.Equal(t, int64(20), entries[1].Size)
}

func TestDatabase_RecordPackageReplacesPrevious(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()
	path := "/out/adboost_x.zip"

	require.NoError(t, db.RecordPackage(ctx, newPackResult(path, "/src", now, "old1", "old2", "old3")))
	require.NoError(t, db.RecordPackage(ctx, newPackResult(path, "/src", now.Add(time.Minute), "new")))

	pkgs := collectPackages(t, db)
	require.Len(t, pkgs, 1)
	assert.Equal(t, 1, pkgs[0].EntryCount)

	entries, err := db.PackageEntries(ctx, path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Name)
}

func TestDatabase_RecordPackageDryRun(t *testing.T) {
	ctx := context.Background()

	t.Run("database dry run", func(t *testing.T) {
		db := setupTestDB(t)
		db.DryRun = true
		require.NoError(t, db.RecordPackage(ctx, newPackResult("/a.zip", "/src", time.Now(), "f")))
		assert.Empty(t, collectPackages(t, db))
	})

	t.Run("dry run package", func(t *testing.T) {
		db := setupTestDB(t)
		r := newPackResult("/a.zip", "/src", time.Now(), "f")
		r.DryRun = true
		require.NoError(t, db.RecordPackage(ctx, r))
		assert.Empty(t, collectPackages(t, db))
	})
}

func TestDatabase_FindPackages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// 60 packages so paging crosses a batch boundary
	for i := 0; i < 60; i++ {
		source := "/src/a"
		if i%2 == 1 {
			source = "/src/b"
		}
		path := ziparchiver.ArchiveName("/out/adboost_", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, db.RecordPackage(ctx, newPackResult(path, source, base.Add(time.Duration(i)*time.Minute), "f")))
	}

	all := collectPackages(t, db)
	require.Len(t, all, 60)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].CreatedAt.After(all[i].CreatedAt), "packages not ordered newest first")
	}

	limited := collectPackages(t, db, database.WithFindLimit(5))
	require.Len(t, limited, 5)
	assert.Equal(t, all[0].Path, limited[0].Path)

	offset := collectPackages(t, db, database.WithFindOffset(55))
	require.Len(t, offset, 5)
	assert.Equal(t, all[55].Path, offset[0].Path)

	bySource := collectPackages(t, db, database.WithFindSource("/src/b"))
	require.Len(t, bySource, 30)
	for _, p := range bySource {
		assert.Equal(t, "/src/b", p.SourcePath)
	}

	sources, err := db.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/a", "/src/b"}, sources)
}

func TestDatabase_FindPackagesStopsEarly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		path := ziparchiver.ArchiveName("/out/p", time.Now().Add(time.Duration(i)*time.Hour))
		require.NoError(t, db.RecordPackage(ctx, newPackResult(path, "/src", time.Now(), "f")))
	}

	count := 0
	for _, err := range db.FindPackages(ctx) {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestDatabase_DeletePackages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.RecordPackage(ctx, newPackResult("/a.zip", "/src", now, "f1", "f2")))
	require.NoError(t, db.RecordPackage(ctx, newPackResult("/b.zip", "/src", now.Add(time.Minute), "f3")))

	require.NoError(t, db.DeletePackages(ctx, nil))
	require.NoError(t, db.DeletePackages(ctx, []string{"/a.zip"}))

	pkgs := collectPackages(t, db)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "/b.zip", pkgs[0].Path)

	entries, err := db.PackageEntries(ctx, "/a.zip")
	require.NoError(t, err)
	assert.Empty(t, entries)

	db.DryRun = true
	require.NoError(t, db.DeletePackages(ctx, []string{"/b.zip"}))
	assert.Len(t, collectPackages(t, db), 1)
}

func TestDatabase_PipelineRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	ok := &pipeline.Report{
		ID:         "run-1",
		Name:       "deploy",
		Status:     pipeline.StatusSucceeded,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Steps: []pipeline.StepResult{
			{Name: "install", Kind: pipeline.KindRun, Status: pipeline.StatusSucceeded, StartedAt: start, Duration: time.Second},
			{Name: "package", Kind: pipeline.KindPackage, Status: pipeline.StatusSucceeded, StartedAt: start.Add(time.Second), Duration: 2 * time.Second},
		},
	}
	failed := &pipeline.Report{
		ID:         "run-2",
		Name:       "deploy",
		Status:     pipeline.StatusFailed,
		StartedAt:  start.Add(time.Hour),
		FinishedAt: start.Add(time.Hour + time.Minute),
		Steps: []pipeline.StepResult{
			{Name: "install", Kind: pipeline.KindRun, Status: pipeline.StatusFailed, StartedAt: start.Add(time.Hour), Err: errors.New("exit status 1")},
			{Name: "notify", Kind: pipeline.KindWebhook, Status: pipeline.StatusSkipped},
		},
	}
	require.NoError(t, db.RecordPipelineRun(ctx, ok))
	require.NoError(t, db.RecordPipelineRun(ctx, failed))

	runs, err := db.FindPipelineRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Contains(t, runs[0].Error, "install")
	require.Len(t, runs[0].Steps, 2)
	assert.Equal(t, 0, runs[0].Steps[0].Position)
	assert.Equal(t, "exit status 1", runs[0].Steps[0].Error)
	assert.Equal(t, "skipped", runs[0].Steps[1].Status)
	assert.Equal(t, "webhook", runs[0].Steps[1].Kind)

	assert.Equal(t, "run-1", runs[1].ID)
	assert.Empty(t, runs[1].Error)
	require.Len(t, runs[1].Steps, 2)
	assert.Equal(t, "package", runs[1].Steps[1].Name)
	assert.Equal(t, 2*time.Second, runs[1].Steps[1].Duration)

	limited, err := db.FindPipelineRuns(ctx, database.WithFindLimit(1))
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].ID)

	none, err := db.FindPipelineRuns(ctx, database.WithFindName("other"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDatabase_BackupRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordBackupRun(ctx, backup.Result{
		ID:        "b1",
		Job:       "adboost-db-backup",
		Status:    backup.StatusSucceeded,
		StartedAt: start,
		Duration:  3 * time.Second,
	}))
	require.NoError(t, db.RecordBackupRun(ctx, backup.Result{
		ID:        "b2",
		Job:       "adboost-db-backup",
		Status:    backup.StatusFailed,
		ExitCode:  2,
		Err:       errors.New("exit status 2"),
		StartedAt: start.Add(24 * time.Hour),
	}))
	require.NoError(t, db.RecordBackupRun(ctx, backup.Result{
		ID:        "b3",
		Job:       "other",
		Status:    backup.StatusSucceeded,
		StartedAt: start.Add(time.Hour),
	}))

	runs, err := db.FindBackupRuns(ctx, database.WithFindName("adboost-db-backup"))
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b2", runs[0].ID)
	assert.Equal(t, 2, runs[0].ExitCode)
	assert.Equal(t, "exit status 2", runs[0].Error)
	assert.Equal(t, "b1", runs[1].ID)
	assert.Equal(t, 3*time.Second, runs[1].Duration)

	all, err := db.FindBackupRuns(ctx, database.WithFindOffset(1))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b3", all[0].ID)

	db.DryRun = true
	require.NoError(t, db.RecordBackupRun(ctx, backup.Result{ID: "b4", Job: "x", StartedAt: start}))
	all, err = db.FindBackupRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
