package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/pkg/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// newMigrate builds a migrate instance over the embedded migrations for the
// connection's dialect.
func newMigrate(db *DB) (*migrate.Migrate, error) {
	var (
		driver migratedb.Driver
		err    error
	)

	dialect := db.DriverName()
	switch dialect {
	case DriverPostgres:
		driver, err = postgres.WithInstance(db.Conn(), &postgres.Config{})
	case DriverSQLite:
		driver, err = sqlite.WithInstance(db.Conn(), &sqlite.Config{})
	default:
		return nil, fmt.Errorf("no migrations for driver %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migrate driver: %w", dialect, err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations executes all pending database migrations
func RunMigrations(db *DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if dirty {
		logger.Warn("database is in dirty state, attempting to force version",
			zap.Uint("version", currentVersion),
		)
		if err := m.Force(int(currentVersion)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("no new migrations to apply", zap.Uint("version", currentVersion))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get new migration version: %w", err)
	}

	logger.Info("migrations completed successfully",
		zap.String("driver", db.DriverName()),
		zap.Uint("old_version", currentVersion),
		zap.Uint("new_version", newVersion),
	)

	return nil
}

// RollbackMigration rolls back the last applied migration
func RollbackMigration(db *DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	currentVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	logger.Info("migration rolled back successfully",
		zap.Uint("from_version", currentVersion),
	)

	return nil
}
