package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/graph"
	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/registry"
	"github.com/roach88/graphsync/internal/scene"
	"github.com/roach88/graphsync/internal/testutil"
)

func testCodec() *codec.Codec {
	return codec.New([]codec.Namespace{scene.Namespace(), graph.Namespace(nil)})
}

func TestGenerateDefinitions(t *testing.T) {
	src, err := Generate(testCodec())
	require.NoError(t, err)

	assert.Contains(t, src, "package graphsync\n")
	assert.Contains(t, src, "#Material: {\n\t\"idResource\"?: string\n\t\"name\": string\n\t\"shader\": string\n\t\"color\": {\"Color\": #Color}\n}")
	assert.Contains(t, src, "\"vertices\": [...number]")
	assert.Contains(t, src, "\"material\"?: #Ref")
	assert.Contains(t, src, "\"children\": [...#Typed]")
	assert.Contains(t, src, "\"deserializeFromSource\"?: bool")
	assert.NotContains(t, src, "#Node: {\n\t\"idResource\"", "nodes are not resources")
}

func TestGenerateIsStable(t *testing.T) {
	a, err := Generate(testCodec())
	require.NoError(t, err)
	b, err := Generate(testCodec())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValidateSerializedLayout(t *testing.T) {
	ctx := context.Background()
	c := codec.New([]codec.Namespace{scene.Namespace()})
	reg := registry.New(c,
		registry.WithClock(testutil.NewFrozenClock()),
		registry.WithSuffixGenerator(testutil.NewSuffixSequence()),
	)
	coord, err := graph.NewCoordinator(reg)
	require.NoError(t, err)

	mat := scene.NewMaterial("brass", "phong", *scene.White())
	require.NoError(t, reg.Register(mat))
	require.NoError(t, reg.Register(scene.NewMesh("tri", 0, 0, 0, 1, 0, 0, 0, 1, 0)))

	lamp := scene.NewNode("Lamp")
	lamp.AddComponent(scene.NewComponentTransform())
	bulb := scene.NewNode("Bulb")
	bulb.AddComponent(scene.NewComponentLight(scene.LightSpot))
	bulb.AddComponent(scene.NewComponentMaterial(mat))
	require.NoError(t, lamp.AddChild(bulb))
	_, _, err = coord.RegisterAsGraph(ctx, lamp, false)
	require.NoError(t, err)

	layout, err := reg.Serialize()
	require.NoError(t, err)
	require.Len(t, layout, 3)

	s, err := Compile(c)
	require.NoError(t, err)
	assert.Empty(t, s.ValidateLayout(layout))
}

func TestValidateRejections(t *testing.T) {
	s, err := Compile(testCodec())
	require.NoError(t, err)

	tests := []struct {
		name string
		rec  record.Object
		code string
	}{
		{
			name: "untyped",
			rec:  record.Object{"a": record.Object{}, "b": record.Object{}},
			code: ErrNotTyped,
		},
		{
			name: "unknown type",
			rec:  record.Typed("Teapot", record.Object{}),
			code: ErrUnknownType,
		},
		{
			name: "wrong kind",
			rec: record.Typed("Material", record.Object{
				"name":   record.Int(3),
				"shader": record.String("phong"),
				"color":  record.Typed("Color", record.Object{"r": record.Float(1), "g": record.Float(1), "b": record.Float(1), "a": record.Float(1)}),
			}),
			code: ErrSchemaReject,
		},
		{
			name: "extra field",
			rec:  record.Typed("Vector3", record.Object{"x": record.Float(0), "y": record.Float(0), "z": record.Float(0), "w": record.Float(1)}),
			code: ErrSchemaReject,
		},
		{
			name: "missing field",
			rec:  record.Typed("Vector3", record.Object{"x": record.Float(0)}),
			code: ErrSchemaReject,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateRecord(tt.rec)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.code, verr.Code)
		})
	}
}

func TestValidateLayoutReportsIDs(t *testing.T) {
	s, err := Compile(testCodec())
	require.NoError(t, err)

	errs := s.ValidateLayout(map[string]record.Object{
		"b": record.Typed("Teapot", record.Object{}),
		"a": record.Typed("Vector3", record.Object{"x": record.Int(1), "y": record.Int(2), "z": record.Float(3)}),
		"c": record.Typed("Vector3", record.Object{"x": record.String("no"), "y": record.Int(2), "z": record.Int(3)}),
	})

	require.Len(t, errs, 2)
	assert.Equal(t, "b", errs[0].ID)
	assert.Equal(t, ErrUnknownType, errs[0].Code)
	assert.Equal(t, "c", errs[1].ID)
	assert.Contains(t, errs[1].Error(), "c (Vector3)")
	assert.True(t, s.Has("GraphInstance"))
}
