package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Schema files for the periods and entries tables, applied in version order.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every pending schema version to the database at
// dbPath. An up-to-date database is not an error.
func RunMigrations(dbPath string) error {
	// Closing the migrator closes this handle, so it is never the store's.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open %s for migration: %w", dbPath, err)
	}
	defer db.Close()

	target, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration target: %w", err)
	}
	versions, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration files: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", versions, "sqlite", target)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	defer m.Close()

	switch err := m.Up(); {
	case err == nil, errors.Is(err, migrate.ErrNoChange):
		return nil
	default:
		return fmt.Errorf("apply schema to %s: %w", dbPath, err)
	}
}
