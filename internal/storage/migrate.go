package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// runMigrations applies the embedded schema for the given backend. dsn is
// the SQLite file path or the PostgreSQL connection string.
func runMigrations(d dialect, dsn string) error {
	// Create a separate connection for migrations to avoid interfering with the main connection
	migrateDB, err := sql.Open(d.driver, dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	var driver database.Driver
	switch d.name {
	case sqliteDialect.name:
		driver, err = sqlite.WithInstance(migrateDB, &sqlite.Config{})
	case postgresDialect.name:
		driver, err = migratepgx.WithInstance(migrateDB, &migratepgx.Config{})
	default:
		return fmt.Errorf("unsupported migration backend: %s", d.name)
	}
	if err != nil {
		return fmt.Errorf("create %s driver: %w", d.name, err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+d.name)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.name, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Migrate applies migrations for a backend name ("sqlite" or "postgres").
func Migrate(backend, dsn string) error {
	switch backend {
	case sqliteDialect.name:
		return runMigrations(sqliteDialect, dsn)
	case postgresDialect.name:
		return runMigrations(postgresDialect, dsn)
	default:
		return fmt.Errorf("unsupported migration backend: %s", backend)
	}
}
