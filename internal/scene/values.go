package scene

import (
	"context"

	"github.com/roach88/graphsync/internal/snapshot"
)

// Vector3 is a plain value inlined into its owner's record.
type Vector3 struct {
	X, Y, Z float64
}

// TypeName implements snapshot.Serializable.
func (v *Vector3) TypeName() string { return "Vector3" }

// Attributes implements snapshot.Serializable.
func (v *Vector3) Attributes() snapshot.Attributes {
	return snapshot.Attributes{"x": v.X, "y": v.Y, "z": v.Z}
}

// SetAttributes implements snapshot.Serializable.
func (v *Vector3) SetAttributes(_ context.Context, p *snapshot.Patch) error {
	p.Float("x", &v.X)
	p.Float("y", &v.Y)
	p.Float("z", &v.Z)
	return p.Err()
}

func (v *Vector3) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "x", Kind: snapshot.KindFloat},
		{Name: "y", Kind: snapshot.KindFloat},
		{Name: "z", Kind: snapshot.KindFloat},
	}
}

// Color is an RGBA value with channels in [0, 1].
type Color struct {
	R, G, B, A float64
}

// White is opaque white.
func White() *Color { return &Color{R: 1, G: 1, B: 1, A: 1} }

func (c *Color) TypeName() string { return "Color" }

func (c *Color) Attributes() snapshot.Attributes {
	return snapshot.Attributes{"r": c.R, "g": c.G, "b": c.B, "a": c.A}
}

func (c *Color) SetAttributes(_ context.Context, p *snapshot.Patch) error {
	p.Float("r", &c.R)
	p.Float("g", &c.G)
	p.Float("b", &c.B)
	p.Float("a", &c.A)
	return p.Err()
}

func (c *Color) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "r", Kind: snapshot.KindFloat},
		{Name: "g", Kind: snapshot.KindFloat},
		{Name: "b", Kind: snapshot.KindFloat},
		{Name: "a", Kind: snapshot.KindFloat},
	}
}
