package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable keeps crmsync's version apart from other tools sharing
// the database.
const MigrationsTable = "crmsync_schema_migrations"

// Status is the schema version after a run.
type Status struct {
	Version uint
	Dirty   bool
	Changed bool
}

// RunMigrations brings the companies, company_wallets and usage_metrics
// tables up to date. Only postgres is supported.
func RunMigrations(db *sql.DB) (Status, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return Status{}, err
	}
	// migrator.Close would close the shared *sql.DB, so it is never called.

	before, _, err := version(migrator)
	if err != nil {
		return Status{}, err
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		after, dirty, _ := version(migrator)
		return Status{Version: after, Dirty: dirty}, fmt.Errorf("apply migrations: %w", err)
	}

	after, dirty, err := version(migrator)
	if err != nil {
		return Status{}, err
	}
	return Status{Version: after, Dirty: dirty, Changed: after != before}, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return migrator, nil
}

// version treats a fresh database as version 0.
func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return v, dirty, nil
}
