package database

import (
	"time"
)

type Package struct {
	Path        string `gorm:"primaryKey"`
	SourcePath  string `gorm:"index"`
	EntryCount  int
	Size        int64
	ArchiveSize int64
	Hash        int64
	CreatedAt   time.Time
	Entries     []PackageEntry `gorm:"foreignKey:PackagePath;references:Path"`
}

type PackageEntry struct {
	PackagePath string `gorm:"primaryKey"`
	Name        string `gorm:"primaryKey"`
	Size        int64
	Hash        int64
	ModTime     time.Time
}

type PipelineRun struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	Status     string
	Error      string
	DryRun     bool
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	Steps      []StepRun `gorm:"foreignKey:RunID;references:ID"`
}

type StepRun struct {
	RunID     string `gorm:"primaryKey"`
	Position  int    `gorm:"primaryKey"`
	Name      string
	Kind      string
	Status    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

type BackupRun struct {
	ID        string `gorm:"primaryKey"`
	Job       string `gorm:"index"`
	Status    string
	ExitCode  int
	Error     string
	StartedAt time.Time `gorm:"index"`
	Duration  time.Duration
}

// Models lists every table to migrate.
func Models() []any {
	return []any{&Package{}, &PackageEntry{}, &PipelineRun{}, &StepRun{}, &BackupRun{}}
}
