// Package scene provides the node tree that graphs capture and the
// components and shared resources that hang off it.
//
// Rendering, geometry generation and math live elsewhere. Here these types
// are only serializable leaves and composites: each lists its durable fields
// in Attributes and applies them in SetAttributes.
package scene

import (
	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/snapshot"
)

// NamespaceName is the name the scene types are registered under.
const NamespaceName = "Scene"

// Namespace returns the constructors of every scene type.
func Namespace() codec.Namespace {
	return codec.Namespace{
		Name: NamespaceName,
		Types: []codec.Constructor{
			func() snapshot.Serializable { return NewNode("") },
			func() snapshot.Serializable { return &Vector3{} },
			func() snapshot.Serializable { return &Color{} },
			func() snapshot.Serializable { return NewComponentTransform() },
			func() snapshot.Serializable { return NewComponentLight(LightPoint) },
			func() snapshot.Serializable { return NewComponentMaterial(nil) },
			func() snapshot.Serializable { return NewComponentMesh(nil) },
			func() snapshot.Serializable { return &Material{} },
			func() snapshot.Serializable { return &Mesh{} },
		},
	}
}
