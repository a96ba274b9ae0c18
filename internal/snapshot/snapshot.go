// Package snapshot defines the attribute protocol every persistent object
// implements: report current state as Attributes, accept a partial update
// as a Patch.
//
// Implementations never use reflection. Each type lists its durable fields
// explicitly in Attributes and applies them explicitly in SetAttributes.
package snapshot

import (
	"context"
	"slices"

	"github.com/roach88/graphsync/internal/record"
)

// Attributes is the name to value mapping of an object's current state.
//
// Values may be Go primitives (string, bool, int, int64, float64),
// record.Value, Resource (stored as a reference), Serializable (inlined as a
// nested typed record), slices of those, or nested Attributes.
type Attributes map[string]any

// Keys returns attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Serializable is implemented by every object the codec can convert.
type Serializable interface {
	// TypeName is the key the object's record is stored under and the name
	// its constructor is registered with.
	TypeName() string

	// Attributes returns the durable state of the object.
	Attributes() Attributes

	// SetAttributes applies the keys present in p and leaves all other
	// state unchanged.
	SetAttributes(ctx context.Context, p *Patch) error
}

// Resource is a Serializable with a project-unique identity. Resources are
// serialized once, by the registry; everywhere else they appear as a
// reference record holding only the id.
type Resource interface {
	Serializable
	ResourceID() string
	SetResourceID(id string)
	Name() string
}

// Reducer strips or rewrites derived keys before the codec sees them.
// Reduce is applied only to the output of Attributes.
type Reducer interface {
	Reduce(attrs Attributes) Attributes
}

// Kind classifies the value of a described field.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
	KindRef    Kind = "ref"
	KindList   Kind = "list"
	KindAny    Kind = "any"
)

// Field describes one legal attribute key.
type Field struct {
	Name string
	Kind Kind

	// Elem is the element kind of a KindList field.
	Elem Kind

	// Type names the expected type of a KindObject or KindRef field, or of
	// the elements of a list of them. Empty means any registered type.
	Type string

	Optional bool
}

// Describer enumerates the legal keys of a type. Editors and schema
// generation consume it; round-tripping does not need it.
type Describer interface {
	Describe() []Field
}

// Decoder reconstructs nested values for a Patch.
type Decoder interface {
	// Decode builds an object from a typed record {typeName: {...}}.
	Decode(ctx context.Context, rec record.Object) (Serializable, error)

	// Resolve returns the live resource registered under id.
	Resolve(ctx context.Context, id string) (Resource, error)
}

// Resolver looks resources up by id. The registry implements it.
type Resolver interface {
	GetResource(ctx context.Context, id string) (Resource, error)
}
