package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adboost/adboostctl/database"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// openDatabase opens the registry at path and migrates its tables. Dry
// runs still read the registry, writes are skipped by database.Database.
func openDatabase(path string, logger zerolog.Logger, dryRun bool) (*database.Database, error) {
	cli, err := newSQLite(path, logger)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	return &database.Database{
		Cli:    cli,
		Logger: logger,
		DryRun: dryRun,
	}, nil
}

func newSQLite(path string, logger zerolog.Logger) (*gorm.DB, error) {
	cli, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: dbLogger(logger.With().Str("component", "database").Logger()),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := cli.AutoMigrate(database.Models()...); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return cli, nil
}

// Queries slower than this are logged as warnings.
const slowQueryThreshold = 500 * time.Millisecond

// dblog routes gorm logs into zerolog.
type dblog struct {
	parent zerolog.Logger
}

func dbLogger(logger zerolog.Logger) logger.Interface {
	return &dblog{parent: logger}
}

func (d *dblog) LogMode(lvl logger.LogLevel) logger.Interface {
	zl := zerolog.Disabled
	switch lvl {
	case logger.Info:
		zl = zerolog.InfoLevel
	case logger.Warn:
		zl = zerolog.WarnLevel
	case logger.Error:
		zl = zerolog.ErrorLevel
	}
	return &dblog{parent: d.parent.Level(zl)}
}

func (d *dblog) Info(_ context.Context, msg string, args ...any) {
	d.parent.Info().Msgf(msg, args...)
}

func (d *dblog) Warn(_ context.Context, msg string, args ...any) {
	d.parent.Warn().Msgf(msg, args...)
}

func (d *dblog) Error(_ context.Context, msg string, args ...any) {
	d.parent.Error().Msgf(msg, args...)
}

// Trace logs every statement at trace level. Failed and slow statements
// are raised to warnings. Missing records are not failures.
func (d *dblog) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)

	var e *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		e = d.parent.Warn().Err(err)
	case elapsed > slowQueryThreshold:
		e = d.parent.Warn().Bool("slow", true)
	default:
		e = d.parent.Trace()
	}

	e.Dur("elapsed", elapsed).Func(func(e *zerolog.Event) {
		sql, rows := fc()
		e.Str("sql", sql)
		e.Int64("rows_affected", rows)
	}).Msg("sql")
}
