// Package database provides schema migration tooling for the studies and
// analytics databases.
package database

import (
	"embed"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5 driver
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/studies/*.sql migrations/analytics/*.sql
var fs embed.FS

// Migrator is the interface for the migration tooling.
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
}

// NewStudiesMigrator returns a migrator for the studies database schema.
func NewStudiesMigrator(connString string) (Migrator, error) {
	return newMigrator(connString, "migrations/studies")
}

// NewAnalyticsMigrator returns a migrator for the analytics database schema.
func NewAnalyticsMigrator(connString string) (Migrator, error) {
	return newMigrator(connString, "migrations/analytics")
}

func newMigrator(connString, path string) (Migrator, error) {
	d, err := migrationsFromSource(path)
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", d, toPgxScheme(connString))
}

// migrationsFromSource returns a migration source driver from the embedded
// migrations.
func migrationsFromSource(path string) (source.Driver, error) {
	d, err := iofs.New(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	return d, nil
}

// toPgxScheme rewrites a postgres:// connection string to the pgx5://
// scheme expected by the golang-migrate pgx driver.
func toPgxScheme(connString string) string {
	if rest, ok := strings.CutPrefix(connString, "postgres://"); ok {
		return "pgx5://" + rest
	}
	if rest, ok := strings.CutPrefix(connString, "postgresql://"); ok {
		return "pgx5://" + rest
	}
	return connString
}
