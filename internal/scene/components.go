package scene

import (
	"context"

	"github.com/roach88/graphsync/internal/snapshot"
)

// ComponentTransform places a node relative to its parent.
type ComponentTransform struct {
	ComponentBase
	Translation Vector3
	Rotation    Vector3
	Scale       Vector3
}

// NewComponentTransform returns an identity transform.
func NewComponentTransform() *ComponentTransform {
	return &ComponentTransform{
		ComponentBase: newComponentBase(),
		Scale:         Vector3{X: 1, Y: 1, Z: 1},
	}
}

func (c *ComponentTransform) TypeName() string { return "ComponentTransform" }

func (c *ComponentTransform) Attributes() snapshot.Attributes {
	attrs := c.baseAttributes()
	attrs["translation"] = &c.Translation
	attrs["rotation"] = &c.Rotation
	attrs["scale"] = &c.Scale
	return attrs
}

func (c *ComponentTransform) SetAttributes(ctx context.Context, p *snapshot.Patch) error {
	c.setBaseAttributes(ctx, p)
	setVector(ctx, p, "translation", &c.Translation)
	setVector(ctx, p, "rotation", &c.Rotation)
	setVector(ctx, p, "scale", &c.Scale)
	return p.Err()
}

func (c *ComponentTransform) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "active", Kind: snapshot.KindBool},
		{Name: "translation", Kind: snapshot.KindObject, Type: "Vector3"},
		{Name: "rotation", Kind: snapshot.KindObject, Type: "Vector3"},
		{Name: "scale", Kind: snapshot.KindObject, Type: "Vector3"},
	}
}

func setVector(ctx context.Context, p *snapshot.Patch, key string, dst *Vector3) {
	var v *Vector3
	if snapshot.ObjectAs(ctx, p, key, &v) && v != nil {
		*dst = *v
	}
}

// LightType selects how a light is cast.
type LightType string

const (
	LightAmbient     LightType = "ambient"
	LightDirectional LightType = "directional"
	LightPoint       LightType = "point"
	LightSpot        LightType = "spot"
)

// ComponentLight emits light from its node.
type ComponentLight struct {
	ComponentBase
	Kind      LightType
	Color     Color
	Intensity float64
}

// NewComponentLight returns a white light of the given kind.
func NewComponentLight(kind LightType) *ComponentLight {
	return &ComponentLight{
		ComponentBase: newComponentBase(),
		Kind:          kind,
		Color:         *White(),
		Intensity:     1,
	}
}

func (c *ComponentLight) TypeName() string { return "ComponentLight" }

func (c *ComponentLight) Attributes() snapshot.Attributes {
	attrs := c.baseAttributes()
	attrs["lightType"] = string(c.Kind)
	attrs["color"] = &c.Color
	attrs["intensity"] = c.Intensity
	return attrs
}

func (c *ComponentLight) SetAttributes(ctx context.Context, p *snapshot.Patch) error {
	c.setBaseAttributes(ctx, p)
	var kind string
	if p.String("lightType", &kind) {
		c.Kind = LightType(kind)
	}
	var col *Color
	if snapshot.ObjectAs(ctx, p, "color", &col) && col != nil {
		c.Color = *col
	}
	p.Float("intensity", &c.Intensity)
	return p.Err()
}

func (c *ComponentLight) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "active", Kind: snapshot.KindBool},
		{Name: "lightType", Kind: snapshot.KindString},
		{Name: "color", Kind: snapshot.KindObject, Type: "Color"},
		{Name: "intensity", Kind: snapshot.KindFloat},
	}
}

// ComponentMaterial binds a shared Material resource to a node.
type ComponentMaterial struct {
	ComponentBase
	Material *Material
}

// NewComponentMaterial binds m.
func NewComponentMaterial(m *Material) *ComponentMaterial {
	return &ComponentMaterial{ComponentBase: newComponentBase(), Material: m}
}

func (c *ComponentMaterial) TypeName() string { return "ComponentMaterial" }

func (c *ComponentMaterial) Attributes() snapshot.Attributes {
	attrs := c.baseAttributes()
	if c.Material != nil {
		attrs["material"] = c.Material
	}
	return attrs
}

func (c *ComponentMaterial) SetAttributes(ctx context.Context, p *snapshot.Patch) error {
	c.setBaseAttributes(ctx, p)
	snapshot.ResourceAs(ctx, p, "material", &c.Material)
	return p.Err()
}

func (c *ComponentMaterial) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "active", Kind: snapshot.KindBool},
		{Name: "material", Kind: snapshot.KindRef, Type: "Material", Optional: true},
	}
}

// ComponentMesh binds a shared Mesh resource to a node.
type ComponentMesh struct {
	ComponentBase
	Mesh *Mesh
}

// NewComponentMesh binds m.
func NewComponentMesh(m *Mesh) *ComponentMesh {
	return &ComponentMesh{ComponentBase: newComponentBase(), Mesh: m}
}

func (c *ComponentMesh) TypeName() string { return "ComponentMesh" }

func (c *ComponentMesh) Attributes() snapshot.Attributes {
	attrs := c.baseAttributes()
	if c.Mesh != nil {
		attrs["mesh"] = c.Mesh
	}
	return attrs
}

func (c *ComponentMesh) SetAttributes(ctx context.Context, p *snapshot.Patch) error {
	c.setBaseAttributes(ctx, p)
	snapshot.ResourceAs(ctx, p, "mesh", &c.Mesh)
	return p.Err()
}

func (c *ComponentMesh) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "active", Kind: snapshot.KindBool},
		{Name: "mesh", Kind: snapshot.KindRef, Type: "Mesh", Optional: true},
	}
}
