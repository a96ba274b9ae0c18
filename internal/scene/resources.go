package scene

import (
	"context"

	"github.com/roach88/graphsync/internal/snapshot"
)

// Material is a shared appearance resource.
type Material struct {
	id     string
	name   string
	Shader string
	Color  Color
}

// NewMaterial creates an unregistered material.
func NewMaterial(name, shader string, color Color) *Material {
	return &Material{name: name, Shader: shader, Color: color}
}

func (m *Material) TypeName() string        { return "Material" }
func (m *Material) ResourceID() string      { return m.id }
func (m *Material) SetResourceID(id string) { m.id = id }
func (m *Material) Name() string            { return m.name }
func (m *Material) SetName(name string)     { m.name = name }

func (m *Material) Attributes() snapshot.Attributes {
	return snapshot.Attributes{
		"name":   m.name,
		"shader": m.Shader,
		"color":  &m.Color,
	}
}

func (m *Material) SetAttributes(ctx context.Context, p *snapshot.Patch) error {
	p.String("name", &m.name)
	p.String("shader", &m.Shader)
	var col *Color
	if snapshot.ObjectAs(ctx, p, "color", &col) && col != nil {
		m.Color = *col
	}
	return p.Err()
}

func (m *Material) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "name", Kind: snapshot.KindString},
		{Name: "shader", Kind: snapshot.KindString},
		{Name: "color", Kind: snapshot.KindObject, Type: "Color"},
	}
}

// Mesh is a shared geometry resource. Vertices hold x, y, z triples.
type Mesh struct {
	id       string
	name     string
	Vertices []float64
}

// NewMesh creates an unregistered mesh.
func NewMesh(name string, vertices ...float64) *Mesh {
	return &Mesh{name: name, Vertices: vertices}
}

func (m *Mesh) TypeName() string        { return "Mesh" }
func (m *Mesh) ResourceID() string      { return m.id }
func (m *Mesh) SetResourceID(id string) { m.id = id }
func (m *Mesh) Name() string            { return m.name }

// VertexCount is derived from Vertices and never stored.
func (m *Mesh) VertexCount() int { return len(m.Vertices) / 3 }

func (m *Mesh) Attributes() snapshot.Attributes {
	vertices := m.Vertices
	if vertices == nil {
		vertices = []float64{}
	}
	return snapshot.Attributes{
		"name":        m.name,
		"vertices":    vertices,
		"vertexCount": m.VertexCount(),
	}
}

// Reduce drops the derived vertex count before serialization.
func (m *Mesh) Reduce(attrs snapshot.Attributes) snapshot.Attributes {
	delete(attrs, "vertexCount")
	return attrs
}

func (m *Mesh) SetAttributes(_ context.Context, p *snapshot.Patch) error {
	p.String("name", &m.name)
	p.Floats("vertices", &m.Vertices)
	return p.Err()
}

func (m *Mesh) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "name", Kind: snapshot.KindString},
		{Name: "vertices", Kind: snapshot.KindList, Elem: snapshot.KindFloat},
	}
}
