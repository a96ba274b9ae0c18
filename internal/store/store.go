package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// migration upgrades a database to version. Statements must be safe to
// run on a database created from the current schema.sql.
type migration struct {
	version int
	stmt    string
}

// migrations in ascending version order. user_version holds the last one
// applied; 0 is the initial schema.
var migrations = []migration{
	{1, `CREATE INDEX IF NOT EXISTS idx_resources_type ON resources(type_name, id)`},
}

// schemaVersion is the version a freshly opened database ends up at.
func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Store persists project layouts in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the SQLite database at path, or a private
// in-memory one for MemoryPath. Pragmas and pending migrations are
// applied on every open.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	// One connection: SQLite has a single writer, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}
	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// DB returns the underlying sql.DB. Tests use it to corrupt rows.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) inMemory() bool {
	return s.path == MemoryPath || strings.Contains(s.path, "mode=memory")
}

func (s *Store) configure() error {
	pragmas := []string{
		"synchronous = NORMAL",
		"busy_timeout = 5000",
		"foreign_keys = ON",
	}
	if !s.inMemory() {
		pragmas = append([]string{"journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec("PRAGMA " + p); err != nil {
			return fmt.Errorf("pragma %s: %w", p, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return s.migrate()
}

// migrate applies every migration newer than user_version in one
// transaction.
func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if current >= schemaVersion() {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
	}
	// PRAGMA takes no bound parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion())); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

// pragma reads one pragma value as text.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
