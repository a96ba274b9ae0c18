package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsync/internal/record"
)

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
	assert.Equal(t, path, s.Path())
}

func TestOpenTwiceKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scene.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.SaveCheckpoint(ctx, "first", map[string]record.Object{
		"m1": materialRecord("m1", "brass", "phong"),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	rows, err := s.ListResources(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "brass", rows[0].Name)
}

func TestOpenInvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/scene.db")
	assert.ErrorContains(t, err, "open store /nonexistent/dir/scene.db")
}

func TestCloseWithoutDB(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestPragmas(t *testing.T) {
	file := createTestStore(t)
	mem, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	tests := []struct {
		label string
		store *Store
		name  string
		want  string
	}{
		{"file", file, "journal_mode", "wal"},
		{"file", file, "synchronous", "1"}, // NORMAL
		{"file", file, "busy_timeout", "5000"},
		{"file", file, "foreign_keys", "1"},
		{"memory", mem, "journal_mode", "memory"},
		{"memory", mem, "foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.label+"/"+tt.name, func(t *testing.T) {
			got, err := tt.store.pragma(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	a, err := Open(MemoryPath)
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(MemoryPath)
	require.NoError(t, err)
	defer b.Close()

	_, err = a.SaveCheckpoint(ctx, "only a", map[string]record.Object{
		"m1": materialRecord("m1", "brass", "phong"),
	})
	require.NoError(t, err)

	_, err = b.LastCheckpoint(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchemaColumns(t *testing.T) {
	s := createTestStore(t)

	tests := map[string][]string{
		"resources":   {"id", "type_name", "name", "record", "content_hash", "checkpoint_seq"},
		"checkpoints": {"seq", "label", "resource_count", "changed_count", "layout_hash"},
	}
	for table, want := range tests {
		t.Run(table, func(t *testing.T) {
			assert.Subset(t, tableColumns(t, s.db, table), want)
		})
	}
}

func TestResourceRowNeedsCheckpoint(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO resources (id, type_name, record, content_hash, checkpoint_seq)
		VALUES ('x', 'Material', '{}', 'h', 99)
	`)
	assert.Error(t, err, "foreign key to checkpoints must be enforced")
}

func TestMigrateFreshDatabase(t *testing.T) {
	s := createTestStore(t)

	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
	assert.Equal(t, 1, schemaVersion())
}

func TestMigrateFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
	assert.Contains(t, tableIndexes(t, s.db, "resources"), "idx_resources_type")
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}

func tableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	return indexes
}
