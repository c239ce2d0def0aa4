package database

import (
	"context"
	"fmt"
	"iter"

	"github.com/adboost/adboostctl/ziparchiver"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordPackage stores a created package and its entries. A previous
// record for the same archive path is replaced.
func (d *Database) RecordPackage(ctx context.Context, r *ziparchiver.PackResult) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	logger := d.Logger.With().Str("archive", r.Path).Logger()
	if d.DryRun || r.DryRun {
		logger.Info().Int("files_count", len(r.Entries)).Msg("would record package (dry run)")
		return nil
	}

	record := Package{
		Path:        r.Path,
		SourcePath:  r.SourcePath,
		EntryCount:  len(r.Entries),
		Size:        r.Size,
		ArchiveSize: r.ArchiveSize,
		Hash:        int64(r.Hash),
		CreatedAt:   r.CreatedAt.UTC(),
	}

	entries := make([]PackageEntry, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, PackageEntry{
			PackagePath: r.Path,
			Name:        e.Name,
			Size:        e.Size,
			Hash:        int64(e.Hash),
			ModTime:     e.ModTime.UTC(),
		})
	}

	err := d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("package_path = ?", r.Path).Delete(&PackageEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete previous package entries: %w", err)
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Omit("Entries").Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record package: %w", err)
		}
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, iterateBatchSize).Error; err != nil {
				return fmt.Errorf("failed to record package entries: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Debug().Int("files_count", len(entries)).Msg("recorded package")
	return nil
}

// FindPackages iterates recorded packages, newest first.
func (d *Database) FindPackages(ctx context.Context, opts ...FindOption) iter.Seq2[Package, error] {
	o := findOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(Package, error) bool) {
		offset := o.offset
		remaining := o.limit
		for {
			thisBatchSize := iterateBatchSize
			if remaining > 0 {
				thisBatchSize = min(remaining, iterateBatchSize)
			}

			query := d.Cli.WithContext(ctx).Model(&Package{})
			if o.source != "" {
				query = query.Where("source_path = ?", o.source)
			}

			var batch []Package
			d.Lock.Lock()
			err := query.
				Order("created_at DESC").
				Order("path DESC").
				Limit(thisBatchSize).
				Offset(offset).
				Find(&batch).Error
			d.Lock.Unlock()
			if err != nil {
				d.Logger.Error().Err(err).Msg("error fetching packages from database")
				yield(Package{}, err)
				return
			}

			for _, p := range batch {
				if ctx.Err() != nil {
					return
				}
				if !yield(p, nil) {
					return
				}
			}

			if len(batch) < thisBatchSize {
				return
			}
			if remaining > 0 {
				remaining -= thisBatchSize
				if remaining <= 0 {
					return
				}
			}
			offset += thisBatchSize
		}
	}
}

// PackageEntries returns the files recorded for a package.
func (d *Database) PackageEntries(ctx context.Context, path string) ([]PackageEntry, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	var entries []PackageEntry
	err := d.Cli.WithContext(ctx).
		Where("package_path = ?", path).
		Order("name").
		Find(&entries).Error
	return entries, err
}

func (d *Database) DeletePackages(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	d.Logger.Info().Strs("archives", paths).Msg("deleting package records")

	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Strs("archives", paths).Msg("would delete package records (dry run)")
		return nil
	}

	return d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("package_path IN ?", paths).Delete(&PackageEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete package entries: %w", err)
		}

		if err := tx.Where("path IN ?", paths).Delete(&Package{}).Error; err != nil {
			return fmt.Errorf("failed to delete packages: %w", err)
		}

		d.Logger.Info().Int("count", len(paths)).Msg("package records deleted")
		return nil
	})
}
