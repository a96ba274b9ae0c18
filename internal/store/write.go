package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/roach88/graphsync/internal/record"
)

// Checkpoint describes one SaveCheckpoint call.
type Checkpoint struct {
	Seq        int64
	Label      string
	Resources  int
	Changed    int
	LayoutHash string
}

// SaveCheckpoint replaces the stored layout with layout in one transaction
// and appends a checkpoint row.
//
// Rows whose content hash is unchanged keep their old checkpoint_seq, so
// the seq on a row tells when the resource last changed. Ids missing from
// layout are deleted. Changed counts inserted, updated and deleted rows.
func (s *Store) SaveCheckpoint(ctx context.Context, label string, layout map[string]record.Object) (Checkpoint, error) {
	ids := make([]string, 0, len(layout))
	whole := make(record.Object, len(layout))
	for id, rec := range layout {
		ids = append(ids, id)
		whole[id] = rec
	}
	slices.Sort(ids)

	layoutHash, err := record.ContentHash(whole)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("save checkpoint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("save checkpoint: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (label, resource_count, changed_count, layout_hash)
		VALUES (?, ?, 0, ?)
	`, label, len(ids), layoutHash)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("save checkpoint: insert checkpoint: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("save checkpoint: last insert id: %w", err)
	}

	changed := 0
	for _, id := range ids {
		rec := layout[id]
		typeName, name, err := recordHeader(rec)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("save checkpoint: resource %s: %w", id, err)
		}
		text, hash, err := marshalRecord(rec)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("save checkpoint: resource %s: %w", id, err)
		}

		// The WHERE clause turns unchanged rows into no-ops.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO resources (id, type_name, name, record, content_hash, checkpoint_seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				type_name = excluded.type_name,
				name = excluded.name,
				record = excluded.record,
				content_hash = excluded.content_hash,
				checkpoint_seq = excluded.checkpoint_seq
			WHERE resources.content_hash != excluded.content_hash
		`, id, typeName, name, text, hash, seq)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("save checkpoint: write resource %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Checkpoint{}, fmt.Errorf("save checkpoint: rows affected: %w", err)
		}
		changed += int(n)
	}

	stale, err := staleIDs(ctx, tx, layout)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("save checkpoint: %w", err)
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id); err != nil {
			return Checkpoint{}, fmt.Errorf("save checkpoint: delete resource %s: %w", id, err)
		}
		changed++
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE checkpoints SET changed_count = ? WHERE seq = ?
	`, changed, seq); err != nil {
		return Checkpoint{}, fmt.Errorf("save checkpoint: update checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Checkpoint{}, fmt.Errorf("save checkpoint: commit: %w", err)
	}

	return Checkpoint{
		Seq:        seq,
		Label:      label,
		Resources:  len(ids),
		Changed:    changed,
		LayoutHash: layoutHash,
	}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// staleIDs returns stored ids absent from layout.
func staleIDs(ctx context.Context, q querier, layout map[string]record.Object) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM resources ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query resource ids: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan resource id: %w", err)
		}
		if _, ok := layout[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource ids: %w", err)
	}
	return stale, nil
}

// DeleteResource removes one stored resource and reports whether it
// existed. The checkpoint history is not touched.
func (s *Store) DeleteResource(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete resource: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete resource: rows affected: %w", err)
	}
	return n > 0, nil
}
