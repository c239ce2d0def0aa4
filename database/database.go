package database

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const iterateBatchSize = 50

type Database struct {
	Lock   sync.Mutex
	Cli    *gorm.DB
	Logger zerolog.Logger
	DryRun bool
}

// Sources returns every source directory that has recorded packages.
func (d *Database) Sources(ctx context.Context) ([]string, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	var sources []string
	err := d.Cli.WithContext(ctx).
		Model(&Package{}).
		Distinct().
		Order("source_path").
		Pluck("source_path", &sources).Error
	return sources, err
}
