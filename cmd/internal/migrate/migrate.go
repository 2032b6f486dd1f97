// Package migrate applies the embedded Postgres schema (users, refresh_tokens) with golang-migrate.
package migrate

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNoChange is returned by Down when there is nothing to roll back.
var ErrNoChange = migrate.ErrNoChange

// Direction selects Up or Down.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Files lists the embedded migration file names in lexical order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Run applies migrations in the given direction against dsn.
// Up at the latest version returns nil.
func Run(dsn string, dir Direction) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("migrate: empty database url")
	}
	if dir != Up && dir != Down {
		return fmt.Errorf("migrate: direction must be up or down, got %q", dir)
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch dir {
	case Up:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case Down:
		if err := m.Down(); err != nil {
			return err
		}
	}
	return nil
}

// Version reports the current schema version and dirty flag.
func Version(dsn string) (uint, bool, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
