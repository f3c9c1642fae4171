package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareSQLite(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare path", filepath.Join(dir, "a", "x.db"), filepath.Join(dir, "a", "x.db") + "?" + sqlitePragmas},
		{"other params", filepath.Join(dir, "b", "x.db") + "?mode=rwc", filepath.Join(dir, "b", "x.db") + "?mode=rwc&" + sqlitePragmas},
		{"own pragmas", filepath.Join(dir, "c", "x.db") + "?_pragma=foreign_keys(0)", filepath.Join(dir, "c", "x.db") + "?_pragma=foreign_keys(0)"},
		{"memory", ":memory:", ":memory:?" + sqlitePragmas},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prepareSQLite(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.DirExists(t, filepath.Join(dir, "a"))
	assert.DirExists(t, filepath.Join(dir, "b"))
}

func TestInitForeignKeys(t *testing.T) {
	database, err := Init("sqlite", filepath.Join(t.TempDir(), "fk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(database) })

	var on int
	require.NoError(t, database.Get(&on, `PRAGMA foreign_keys`))
	assert.Equal(t, 1, on)
}
