package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/graphsync/internal/record"
)

// createTestStore opens a fresh database under t.TempDir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// materialRecord builds a resource record the way the codec writes one.
func materialRecord(id, name, shader string) record.Object {
	return record.Typed("Material", record.Object{
		record.RefKey: record.String(id),
		"name":        record.String(name),
		"shader":      record.String(shader),
	})
}
