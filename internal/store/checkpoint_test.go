package store

import (
	"context"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsync/internal/record"
)

func TestSaveCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	layout := map[string]record.Object{
		"Material|a|00001": materialRecord("Material|a|00001", "brass", "phong"),
		"Material|a|00002": materialRecord("Material|a|00002", "glass", "pbr"),
	}

	cp, err := s.SaveCheckpoint(ctx, "first", layout)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Seq)
	assert.Equal(t, 2, cp.Resources)
	assert.Equal(t, 2, cp.Changed)
	assert.Len(t, cp.LayoutHash, 64)

	got, corrupt, err := s.LoadLayout(ctx)
	require.NoError(t, err)
	assert.Empty(t, corrupt)
	require.Len(t, got, 2)
	for id, rec := range layout {
		assert.True(t, record.Equal(rec, got[id]), "record %s", id)
	}

	one, err := s.ReadRecord(ctx, "Material|a|00002")
	require.NoError(t, err)
	assert.True(t, record.Equal(layout["Material|a|00002"], one))
}

func TestSaveCheckpointTracksChanges(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	layout := map[string]record.Object{
		"a": materialRecord("a", "brass", "phong"),
		"b": materialRecord("b", "glass", "pbr"),
	}
	_, err := s.SaveCheckpoint(ctx, "first", layout)
	require.NoError(t, err)

	same, err := s.SaveCheckpoint(ctx, "unchanged", layout)
	require.NoError(t, err)
	assert.Equal(t, 0, same.Changed)

	layout["b"] = materialRecord("b", "glass", "toon")
	delete(layout, "a")
	layout["c"] = materialRecord("c", "rubber", "phong")
	third, err := s.SaveCheckpoint(ctx, "edit", layout)
	require.NoError(t, err)
	assert.Equal(t, 3, third.Changed, "one update, one insert, one delete")

	rows, err := s.ListResources(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].ID)
	assert.Equal(t, third.Seq, rows[0].CheckpointSeq)
	assert.Equal(t, "c", rows[1].ID)
	assert.Equal(t, "rubber", rows[1].Name)
	assert.Equal(t, "Material", rows[1].TypeName)

	_, err = s.ReadRecord(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	cps, err := s.Checkpoints(ctx)
	require.NoError(t, err)
	require.Len(t, cps, 3)
	assert.Equal(t, []string{"first", "unchanged", "edit"}, []string{cps[0].Label, cps[1].Label, cps[2].Label})
	assert.Equal(t, cps[0].LayoutHash, cps[1].LayoutHash)
	assert.NotEqual(t, cps[1].LayoutHash, cps[2].LayoutHash)

	last, err := s.LastCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, third, last)
}

func TestListResourcesFiltersByType(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, err := s.SaveCheckpoint(ctx, "mixed", map[string]record.Object{
		"m": materialRecord("m", "brass", "phong"),
		"g": record.Typed("Graph", record.Object{"name": record.String("Lamp")}),
	})
	require.NoError(t, err)

	rows, err := s.ListResources(ctx, "Graph")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Lamp", rows[0].Name)

	none, err := s.ListResources(ctx, "Mesh")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestLoadLayoutDetectsTampering(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, err := s.SaveCheckpoint(ctx, "first", map[string]record.Object{
		"a": materialRecord("a", "brass", "phong"),
		"b": materialRecord("b", "glass", "unlit"),
		"c": materialRecord("c", "chrome", "phong"),
	})
	require.NoError(t, err)

	_, err = s.DB().Exec(`UPDATE resources SET record = ? WHERE id = 'a'`,
		`{"Material":{"idResource":"a","name":"lead","shader":"phong"}}`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`UPDATE resources SET record = '{not json' WHERE id = 'c'`)
	require.NoError(t, err)

	layout, corrupt, err := s.LoadLayout(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, slices.Sorted(maps.Keys(layout)), "intact rows still load")
	require.Len(t, corrupt, 2)
	assert.Equal(t, "a", corrupt[0].ID)
	assert.ErrorContains(t, corrupt[0], "content hash mismatch")
	assert.Equal(t, "c", corrupt[1].ID)

	_, err = s.ReadRecord(ctx, "a")
	var bad *CorruptRecordError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "a", bad.ID)
}

func TestSaveCheckpointRejectsUntypedRecord(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.SaveCheckpoint(ctx, "bad", map[string]record.Object{
		"a": {"x": record.Int(1), "y": record.Int(2)},
	})
	assert.ErrorContains(t, err, "exactly one type key")

	cps, err := s.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, cps, "failed checkpoint is rolled back")
}

func TestLoadLayoutEmpty(t *testing.T) {
	s := createTestStore(t)

	layout, corrupt, err := s.LoadLayout(context.Background())
	require.NoError(t, err)
	assert.Empty(t, corrupt)
	assert.NotNil(t, layout)
	assert.Empty(t, layout)

	_, err = s.LastCheckpoint(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteResource(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, err := s.SaveCheckpoint(ctx, "first", map[string]record.Object{
		"a": materialRecord("a", "brass", "phong"),
	})
	require.NoError(t, err)

	ok, err := s.DeleteResource(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteResource(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
