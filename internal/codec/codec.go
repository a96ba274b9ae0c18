// Package codec converts objects implementing the snapshot protocol into
// records and back.
//
// Serialize wraps an object's reduced attributes under its type name.
// Nested resources become reference records; every other nested object is
// inlined as its own typed record. Deserialize looks the outer type name up
// in a closed table of constructors filled by explicit RegisterNamespace
// calls, constructs a default instance and applies the inner record as a
// patch.
package codec

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/snapshot"
)

// Constructor returns a default instance of one registered type.
type Constructor func() snapshot.Serializable

// Namespace groups constructors registered together. The type name of each
// constructor is taken from the instance it returns.
type Namespace struct {
	Name  string
	Types []Constructor
}

type entry struct {
	namespace string
	ctor      Constructor
}

// Codec holds the constructor table. It is safe for concurrent use.
type Codec struct {
	mu         sync.RWMutex
	namespaces map[string][]string // namespace name -> type names
	types      map[string]entry
	logger     *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used for contained failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger
	}
}

// New creates a codec with the given namespaces registered.
// It panics if the namespaces conflict, since that is a programming error.
func New(namespaces []Namespace, opts ...Option) *Codec {
	c := &Codec{
		namespaces: make(map[string][]string),
		types:      make(map[string]entry),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, ns := range namespaces {
		if err := c.RegisterNamespace(ns); err != nil {
			panic(err)
		}
	}
	return c
}

// Logger returns the codec's logger.
func (c *Codec) Logger() *slog.Logger {
	return c.logger
}

// RegisterNamespace makes the namespace's types resolvable by Deserialize.
// Registering a namespace name a second time is a no-op. A type name already
// claimed by another namespace is rejected and nothing is registered.
func (c *Codec) RegisterNamespace(ns Namespace) error {
	if ns.Name == "" {
		return fmt.Errorf("register namespace: empty name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.namespaces[ns.Name]; exists {
		return nil
	}

	names := make([]string, 0, len(ns.Types))
	for _, ctor := range ns.Types {
		name := ctor().TypeName()
		if name == "" {
			return fmt.Errorf("register namespace %s: constructor returns empty type name", ns.Name)
		}
		if prev, taken := c.types[name]; taken {
			return fmt.Errorf("register namespace %s: type %s already registered by namespace %s",
				ns.Name, name, prev.namespace)
		}
		if slices.Contains(names, name) {
			return fmt.Errorf("register namespace %s: type %s listed twice", ns.Name, name)
		}
		names = append(names, name)
	}

	for i, ctor := range ns.Types {
		c.types[names[i]] = entry{namespace: ns.Name, ctor: ctor}
	}
	c.namespaces[ns.Name] = names
	c.logger.Debug("namespace registered", "namespace", ns.Name, "types", len(names))
	return nil
}

// UnregisterNamespace removes a namespace and its types.
func (c *Codec) UnregisterNamespace(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, typeName := range c.namespaces[name] {
		delete(c.types, typeName)
	}
	delete(c.namespaces, name)
}

// Namespaces returns the registered namespace names, sorted.
func (c *Codec) Namespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.namespaces))
	for name := range c.namespaces {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TypeNames returns every registered type name, sorted.
func (c *Codec) TypeNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether typeName has a registered constructor.
func (c *Codec) Has(typeName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[typeName]
	return ok
}

// New constructs a default instance of typeName.
func (c *Codec) New(typeName string) (snapshot.Serializable, error) {
	c.mu.RLock()
	e, ok := c.types[typeName]
	c.mu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{TypeName: typeName}
	}
	return e.ctor(), nil
}

// Serialize converts obj into a typed record {typeName: attributes}.
//
// A top-level resource also carries its idResource. Nested resources are
// replaced by reference records and must already hold an id.
func (c *Codec) Serialize(obj snapshot.Serializable) (record.Object, error) {
	if obj == nil {
		return nil, fmt.Errorf("serialize: nil object")
	}
	inner, err := c.encodeAttributes(obj)
	if err != nil {
		return nil, err
	}
	if res, ok := obj.(snapshot.Resource); ok && res.ResourceID() != "" {
		inner[record.RefKey] = record.String(res.ResourceID())
	}
	return record.Typed(obj.TypeName(), inner), nil
}

func (c *Codec) encodeAttributes(obj snapshot.Serializable) (record.Object, error) {
	typeName := obj.TypeName()
	if !c.Has(typeName) {
		return nil, &ConfigurationError{TypeName: typeName}
	}

	attrs := obj.Attributes()
	if r, ok := obj.(snapshot.Reducer); ok {
		attrs = r.Reduce(attrs)
	}

	inner := make(record.Object, len(attrs))
	for _, key := range attrs.Keys() {
		v, err := c.Encode(attrs[key])
		if err != nil {
			return nil, fmt.Errorf("serialize %s.%s: %w", typeName, key, err)
		}
		inner[key] = v
	}
	return inner, nil
}

// Encode converts a single attribute value into a record value.
func (c *Codec) Encode(v any) (record.Value, error) {
	switch val := v.(type) {
	case nil:
		return record.Null{}, nil
	case record.Value:
		return record.Clone(val), nil
	case snapshot.Resource:
		id := val.ResourceID()
		if id == "" {
			return nil, fmt.Errorf("reference to unregistered %s %q", val.TypeName(), val.Name())
		}
		return record.Ref(id), nil
	case snapshot.Serializable:
		return c.Serialize(val)
	case string, bool, int, int64, float64:
		return record.FromGo(val)
	case float32:
		return record.FromGo(float64(val))
	case []string:
		return encodeSlice(c, val)
	case []float64:
		return encodeSlice(c, val)
	case []int:
		return encodeSlice(c, val)
	case []any:
		return encodeSlice(c, val)
	case []snapshot.Serializable:
		return encodeSlice(c, val)
	case []snapshot.Resource:
		return encodeSlice(c, val)
	case snapshot.Attributes:
		return c.encodeMap(val)
	case map[string]any:
		return c.encodeMap(val)
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", v)
	}
}

func encodeSlice[T any](c *Codec, items []T) (record.Value, error) {
	arr := make(record.Array, len(items))
	for i, item := range items {
		v, err := c.Encode(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		arr[i] = v
	}
	return arr, nil
}

func (c *Codec) encodeMap(m map[string]any) (record.Value, error) {
	obj := make(record.Object, len(m))
	for k, item := range m {
		v, err := c.Encode(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		obj[k] = v
	}
	return obj, nil
}

// Deserialize reconstructs an object from a typed record. References are
// resolved through r; r may be nil when rec holds none.
//
// An unknown type name fails with ConfigurationError. Failures inside nested
// values are contained by the patch and only logged.
func (c *Codec) Deserialize(ctx context.Context, rec record.Object, r snapshot.Resolver) (snapshot.Serializable, error) {
	typeName, inner, ok := record.Unwrap(rec)
	if !ok {
		return nil, fmt.Errorf("deserialize: record must have exactly one type key, got %d keys", len(rec))
	}

	obj, err := c.New(typeName)
	if err != nil {
		return nil, err
	}

	if res, ok := obj.(snapshot.Resource); ok {
		if id, ok := inner[record.RefKey].(record.String); ok {
			res.SetResourceID(string(id))
		}
	}

	patch := snapshot.NewPatch(inner, c.Decoder(r), c.logger)
	if err := obj.SetAttributes(ctx, patch); err != nil {
		return nil, fmt.Errorf("deserialize %s: %w", typeName, err)
	}
	return obj, nil
}

// Patch applies rec to an existing object, the way Deserialize applies it
// to a fresh one. rec is the inner record, without the type key.
func (c *Codec) Patch(ctx context.Context, obj snapshot.Serializable, rec record.Object, r snapshot.Resolver) error {
	patch := snapshot.NewPatch(rec, c.Decoder(r), c.logger)
	if err := obj.SetAttributes(ctx, patch); err != nil {
		return fmt.Errorf("patch %s: %w", obj.TypeName(), err)
	}
	return nil
}

// SerializeArray serializes objects of one type as {typeName: [inner, ...]}.
func (c *Codec) SerializeArray(typeName string, objs []snapshot.Serializable) (record.Object, error) {
	items := make(record.Array, 0, len(objs))
	for i, obj := range objs {
		if obj.TypeName() != typeName {
			return nil, fmt.Errorf("serialize array: element %d is %s, want %s", i, obj.TypeName(), typeName)
		}
		rec, err := c.Serialize(obj)
		if err != nil {
			return nil, fmt.Errorf("serialize array: element %d: %w", i, err)
		}
		items = append(items, rec[typeName])
	}
	return record.Object{typeName: items}, nil
}

// DeserializeArray reverses SerializeArray.
func (c *Codec) DeserializeArray(ctx context.Context, rec record.Object, r snapshot.Resolver) ([]snapshot.Serializable, error) {
	if len(rec) != 1 {
		return nil, fmt.Errorf("deserialize array: record must have exactly one type key, got %d keys", len(rec))
	}
	var typeName string
	for k := range rec {
		typeName = k
	}
	items, ok := rec[typeName].(record.Array)
	if !ok {
		return nil, fmt.Errorf("deserialize array: %s does not hold a list", typeName)
	}

	out := make([]snapshot.Serializable, 0, len(items))
	for i, item := range items {
		inner, ok := item.(record.Object)
		if !ok {
			return nil, fmt.Errorf("deserialize array: element %d is not an object", i)
		}
		obj, err := c.Deserialize(ctx, record.Typed(typeName, inner), r)
		if err != nil {
			return nil, fmt.Errorf("deserialize array: element %d: %w", i, err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// Decoder returns the snapshot.Decoder that patches built by this codec use.
func (c *Codec) Decoder(r snapshot.Resolver) snapshot.Decoder {
	return &decoder{codec: c, resolver: r}
}

type decoder struct {
	codec    *Codec
	resolver snapshot.Resolver
}

func (d *decoder) Decode(ctx context.Context, rec record.Object) (snapshot.Serializable, error) {
	return d.codec.Deserialize(ctx, rec, d.resolver)
}

func (d *decoder) Resolve(ctx context.Context, id string) (snapshot.Resource, error) {
	if d.resolver == nil {
		return nil, fmt.Errorf("no resolver for reference %s", id)
	}
	return d.resolver.GetResource(ctx, id)
}
