package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsPresent(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"migrations/studies", "migrations/analytics"} {
		entries, err := fs.ReadDir(path)
		require.NoError(t, err, path)
		require.NotEmpty(t, entries, path)

		var ups, downs int
		for _, entry := range entries {
			switch {
			case len(entry.Name()) > 7 && entry.Name()[len(entry.Name())-7:] == ".up.sql":
				ups++
			case len(entry.Name()) > 9 && entry.Name()[len(entry.Name())-9:] == ".down.sql":
				downs++
			}
		}
		assert.Equal(t, ups, downs, "every up migration in %s needs a down migration", path)
		assert.Positive(t, ups, path)
	}
}

func TestMigrationSourcesLoad(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"migrations/studies", "migrations/analytics"} {
		d, err := migrationsFromSource(path)
		require.NoError(t, err, path)

		version, err := d.First()
		require.NoError(t, err, path)
		assert.Equal(t, uint(1), version)
	}
}

func TestToPgxScheme(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@h:5432/db?sslmode=disable", "pgx5://u:p@h:5432/db?sslmode=disable"},
		{"postgresql://u:p@h:5432/db", "pgx5://u:p@h:5432/db"},
		{"pgx5://u:p@h:5432/db", "pgx5://u:p@h:5432/db"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, toPgxScheme(tt.in))
	}
}
