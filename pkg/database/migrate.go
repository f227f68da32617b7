package database

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/noah-isme/school-suite-api/pkg/config"
)

// Migrator applies the embedded schema to the configured database.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens a migrator reading SQL files from the root of files.
func NewMigrator(cfg config.DatabaseConfig, files fs.FS) (*Migrator, error) {
	source, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, URL(cfg))
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies every pending migration. Reports false when the schema was already current.
func (m *Migrator) Up() (bool, error) {
	return applied(m.m.Up())
}

// Down rolls back steps migrations.
func (m *Migrator) Down(steps int) (bool, error) {
	if steps <= 0 {
		steps = 1
	}
	return applied(m.m.Steps(-steps))
}

// Version reports the current schema version and whether the last migration failed halfway.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func applied(err error) (bool, error) {
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
