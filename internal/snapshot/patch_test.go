package snapshot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsync/internal/record"
)

type tag struct {
	label string
}

func (t *tag) TypeName() string       { return "Tag" }
func (t *tag) Attributes() Attributes { return Attributes{"label": t.label} }
func (t *tag) SetAttributes(_ context.Context, p *Patch) error {
	p.String("label", &t.label)
	return p.Err()
}

type asset struct {
	id   string
	name string
}

func (a *asset) TypeName() string                                { return "Asset" }
func (a *asset) Attributes() Attributes                          { return Attributes{"name": a.name} }
func (a *asset) SetAttributes(_ context.Context, p *Patch) error { return nil }
func (a *asset) ResourceID() string                              { return a.id }
func (a *asset) SetResourceID(id string)                         { a.id = id }
func (a *asset) Name() string                                    { return a.name }

type fakeDecoder struct {
	resources map[string]Resource
}

func (d *fakeDecoder) Decode(ctx context.Context, rec record.Object) (Serializable, error) {
	typeName, inner, ok := record.Unwrap(rec)
	if !ok || typeName != "Tag" {
		return nil, errors.New("unknown record")
	}
	t := &tag{}
	return t, t.SetAttributes(ctx, NewPatch(inner, d, nil))
}

func (d *fakeDecoder) Resolve(_ context.Context, id string) (Resource, error) {
	if r, ok := d.resources[id]; ok {
		return r, nil
	}
	return nil, errors.New("not found: " + id)
}

func newLoggedPatch(attrs record.Object, dec Decoder) (*Patch, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewPatch(attrs, dec, logger), &buf
}

func TestPatchAppliesOnlyPresentKeys(t *testing.T) {
	p := NewPatch(record.Object{
		"name":  record.String("Lamp"),
		"count": record.Int(3),
	}, nil, nil)

	name, count, scale, visible := "old", 0, 2.5, true
	assert.True(t, p.String("name", &name))
	assert.True(t, p.Int("count", &count))
	assert.False(t, p.Float("scale", &scale))
	assert.False(t, p.Bool("visible", &visible))
	require.NoError(t, p.Err())

	assert.Equal(t, "Lamp", name)
	assert.Equal(t, 3, count)
	assert.Equal(t, 2.5, scale, "absent keys leave fields unchanged")
	assert.True(t, visible)
}

func TestPatchFloatWidensInt(t *testing.T) {
	p := NewPatch(record.Object{
		"x":    record.Int(2),
		"list": record.Array{record.Int(1), record.Float(0.5)},
	}, nil, nil)

	var x float64
	var list []float64
	assert.True(t, p.Float("x", &x))
	assert.True(t, p.Floats("list", &list))
	assert.Equal(t, 2.0, x)
	assert.Equal(t, []float64{1, 0.5}, list)
}

func TestPatchTypeMismatchReported(t *testing.T) {
	p := NewPatch(record.Object{
		"name": record.Int(1),
		"tags": record.Array{record.String("a"), record.Bool(true)},
	}, nil, nil)

	name := "keep"
	var tags []string
	assert.False(t, p.String("name", &name))
	assert.False(t, p.Strings("tags", &tags))
	assert.Equal(t, "keep", name)
	assert.Nil(t, tags)

	err := p.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `attribute "name": expected string`)
	assert.Contains(t, err.Error(), `attribute "tags[1]": expected string`)
}

func TestPatchSubReportsToParent(t *testing.T) {
	p := NewPatch(record.Object{
		"color": record.Object{"r": record.String("red")},
	}, nil, nil)

	sub, ok := p.Sub("color")
	require.True(t, ok)
	var r float64
	assert.False(t, sub.Float("r", &r))

	require.Error(t, p.Err())
	assert.Contains(t, p.Err().Error(), `"color.r"`)
}

func TestPatchSelect(t *testing.T) {
	p := NewPatch(record.Object{
		"a": record.Int(1),
		"b": record.Int(2),
		"c": record.Int(3),
	}, nil, nil)

	sel := p.Select("a", "c", "missing")
	assert.Equal(t, []string{"a", "c"}, sel.Keys())
	assert.False(t, sel.Has("b"))
}

func TestPatchObjectAndObjects(t *testing.T) {
	dec := &fakeDecoder{}
	p, logs := newLoggedPatch(record.Object{
		"one": record.Typed("Tag", record.Object{"label": record.String("x")}),
		"many": record.Array{
			record.Typed("Tag", record.Object{"label": record.String("a")}),
			record.Typed("Unknown", record.Object{}),
			record.Typed("Tag", record.Object{"label": record.String("b")}),
		},
		"none": record.Null{},
	}, dec)
	ctx := context.Background()

	var one *tag
	require.True(t, ObjectAs(ctx, p, "one", &one))
	assert.Equal(t, "x", one.label)

	many, ok := p.Objects(ctx, "many")
	require.True(t, ok)
	require.Len(t, many, 2, "failing element is skipped")
	assert.Equal(t, "a", many[0].(*tag).label)
	assert.Equal(t, "b", many[1].(*tag).label)
	assert.Contains(t, logs.String(), "many[1]")

	none := &tag{label: "set"}
	require.True(t, ObjectAs(ctx, p, "none", &none))
	assert.Nil(t, none, "null clears the field")
}

func TestPatchResourceDanglingIsContained(t *testing.T) {
	live := &asset{id: "Asset|t|1", name: "brick"}
	dec := &fakeDecoder{resources: map[string]Resource{live.id: live}}
	p, logs := newLoggedPatch(record.Object{
		"live":    record.Ref(live.id),
		"gone":    record.Ref("Asset|t|2"),
		"notaref": record.String("x"),
	}, dec)
	ctx := context.Background()

	var got *asset
	require.True(t, ResourceAs(ctx, p, "live", &got))
	assert.Same(t, live, got)

	prev := &asset{id: "prev"}
	got = prev
	assert.False(t, ResourceAs(ctx, p, "gone", &got))
	assert.Same(t, prev, got, "dangling reference leaves the field unchanged")

	_, ok := p.Resource(ctx, "notaref")
	assert.False(t, ok)

	assert.NoError(t, p.Err(), "contained failures are logged, not returned")
	assert.Contains(t, logs.String(), "attribute left unset")
	assert.Contains(t, logs.String(), "Asset|t|2")
}

func TestPatchWithoutDecoderFailsSoft(t *testing.T) {
	p, logs := newLoggedPatch(record.Object{"ref": record.Ref("x")}, nil)
	_, ok := p.Resource(context.Background(), "ref")
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "no resolver")
}

func TestAttributesKeysSorted(t *testing.T) {
	attrs := Attributes{"b": 1, "a": 2, "c": 3}
	assert.Equal(t, []string{"a", "b", "c"}, attrs.Keys())
}
