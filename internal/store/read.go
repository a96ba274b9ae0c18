package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/graphsync/internal/record"
)

// ResourceRow is the stored metadata of one resource.
type ResourceRow struct {
	ID            string
	TypeName      string
	Name          string
	ContentHash   string
	CheckpointSeq int64
}

// CorruptRecordError reports a stored row that no longer parses or no
// longer matches its content hash.
type CorruptRecordError struct {
	ID  string
	Err error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("resource %s: %v", e.ID, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// LoadLayout returns the stored layout. Every record is checked against its
// stored content hash. Rows that fail the check are left out of the layout
// and reported in corrupt, ordered by id; the error is for query failures.
//
// Returns an empty map (not nil) when nothing is stored.
func (s *Store) LoadLayout(ctx context.Context) (layout map[string]record.Object, corrupt []*CorruptRecordError, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record, content_hash
		FROM resources
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load layout: %w", err)
	}
	defer rows.Close()

	layout = make(map[string]record.Object)
	for rows.Next() {
		var id, text, stored string
		if err := rows.Scan(&id, &text, &stored); err != nil {
			return nil, nil, fmt.Errorf("load layout: scan: %w", err)
		}
		rec, err := verifiedRecord(text, stored)
		if err != nil {
			corrupt = append(corrupt, &CorruptRecordError{ID: id, Err: err})
			continue
		}
		layout[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load layout: iterate: %w", err)
	}
	return layout, corrupt, nil
}

// ReadRecord returns the stored record for id.
// Returns an error wrapping ErrNotFound when id is not stored.
func (s *Store) ReadRecord(ctx context.Context, id string) (record.Object, error) {
	var text, stored string
	err := s.db.QueryRowContext(ctx, `
		SELECT record, content_hash FROM resources WHERE id = ?
	`, id).Scan(&text, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", id, err)
	}
	rec, err := verifiedRecord(text, stored)
	if err != nil {
		return nil, &CorruptRecordError{ID: id, Err: err}
	}
	return rec, nil
}

func verifiedRecord(text, stored string) (record.Object, error) {
	rec, err := unmarshalRecord(text)
	if err != nil {
		return nil, err
	}
	hash, err := record.ContentHash(rec)
	if err != nil {
		return nil, err
	}
	if hash != stored {
		return nil, fmt.Errorf("content hash mismatch: stored %s, computed %s", stored, hash)
	}
	return rec, nil
}

// ListResources returns stored resource metadata ordered by id. An empty
// typeName lists every resource.
func (s *Store) ListResources(ctx context.Context, typeName string) ([]ResourceRow, error) {
	query := `
		SELECT id, type_name, name, content_hash, checkpoint_seq
		FROM resources
		ORDER BY id COLLATE BINARY ASC
	`
	args := []any{}
	if typeName != "" {
		query = `
			SELECT id, type_name, name, content_hash, checkpoint_seq
			FROM resources
			WHERE type_name = ?
			ORDER BY id COLLATE BINARY ASC
		`
		args = append(args, typeName)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	out := []ResourceRow{}
	for rows.Next() {
		var r ResourceRow
		if err := rows.Scan(&r.ID, &r.TypeName, &r.Name, &r.ContentHash, &r.CheckpointSeq); err != nil {
			return nil, fmt.Errorf("list resources: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resources: iterate: %w", err)
	}
	return out, nil
}

// Checkpoints returns every checkpoint ordered by seq.
func (s *Store) Checkpoints(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, label, resource_count, changed_count, layout_hash
		FROM checkpoints
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	defer rows.Close()

	out := []Checkpoint{}
	for rows.Next() {
		var c Checkpoint
		if err := rows.Scan(&c.Seq, &c.Label, &c.Resources, &c.Changed, &c.LayoutHash); err != nil {
			return nil, fmt.Errorf("read checkpoints: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoints: iterate: %w", err)
	}
	return out, nil
}

// LastCheckpoint returns the newest checkpoint.
// Returns an error wrapping ErrNotFound when none was saved.
func (s *Store) LastCheckpoint(ctx context.Context) (Checkpoint, error) {
	var c Checkpoint
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, label, resource_count, changed_count, layout_hash
		FROM checkpoints
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&c.Seq, &c.Label, &c.Resources, &c.Changed, &c.LayoutHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("last checkpoint: %w", ErrNotFound)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("last checkpoint: %w", err)
	}
	return c, nil
}
