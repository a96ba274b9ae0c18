package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/graphsync/internal/record"
)

// Patch is the input of SetAttributes: a record object plus the means to
// reconstruct nested objects and references inside it.
//
// Accessors copy a value into a destination only when its key is present,
// which gives SetAttributes its partial-update semantics:
//
//	p.String("name", &n.name)
//	p.Float("intensity", &l.intensity)
//	return p.Err()
//
// A key holding a value of the wrong primitive type is recorded and
// reported by Err. Failures while decoding nested objects or resolving
// references are contained: they are logged, the field is left unset, and
// the rest of the patch still applies.
type Patch struct {
	attrs  record.Object
	dec    Decoder
	logger *slog.Logger
	path   string
	parent *Patch
	err    error
}

// NewPatch wraps attrs. dec may be nil when attrs holds no nested objects
// or references; any attempt to decode one then fails soft.
func NewPatch(attrs record.Object, dec Decoder, logger *slog.Logger) *Patch {
	if attrs == nil {
		attrs = record.Object{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Patch{attrs: attrs, dec: dec, logger: logger}
}

// Has reports whether key is present.
func (p *Patch) Has(key string) bool {
	_, ok := p.attrs[key]
	return ok
}

// Keys returns the present keys in canonical order.
func (p *Patch) Keys() []string {
	return p.attrs.SortedKeys()
}

// Len returns the number of keys.
func (p *Patch) Len() int {
	return len(p.attrs)
}

// Raw returns the undecoded value of key.
func (p *Patch) Raw(key string) (record.Value, bool) {
	v, ok := p.attrs[key]
	return v, ok
}

// Record returns a copy of the underlying record object.
func (p *Patch) Record() record.Object {
	return p.attrs.Clone()
}

// Err returns every type mismatch seen by the accessors so far.
func (p *Patch) Err() error {
	return p.err
}

// Select restricts the patch to the given keys. Absent keys are ignored.
func (p *Patch) Select(keys ...string) *Patch {
	sel := make(record.Object, len(keys))
	for _, k := range keys {
		if v, ok := p.attrs[k]; ok {
			sel[k] = v
		}
	}
	return p.derive(sel, p.path)
}

// Sub returns the nested plain object under key as its own patch.
// Mismatches found through the sub patch are reported by both patches.
func (p *Patch) Sub(key string) (*Patch, bool) {
	v, ok := p.attrs[key]
	if !ok {
		return nil, false
	}
	obj, ok := v.(record.Object)
	if !ok {
		p.mismatch(key, "object", v)
		return nil, false
	}
	sub := p.derive(obj, p.field(key))
	return sub, true
}

func (p *Patch) derive(attrs record.Object, path string) *Patch {
	return &Patch{attrs: attrs, dec: p.dec, logger: p.logger, path: path, parent: p}
}

// String copies a string attribute into dst.
func (p *Patch) String(key string, dst *string) bool {
	v, ok := p.attrs[key]
	if !ok {
		return false
	}
	s, ok := v.(record.String)
	if !ok {
		p.mismatch(key, "string", v)
		return false
	}
	*dst = string(s)
	return true
}

// Int copies an integer attribute into dst.
func (p *Patch) Int(key string, dst *int) bool {
	v, ok := p.attrs[key]
	if !ok {
		return false
	}
	i, ok := v.(record.Int)
	if !ok {
		p.mismatch(key, "int", v)
		return false
	}
	*dst = int(i)
	return true
}

// Float copies a numeric attribute into dst. Integers are widened.
func (p *Patch) Float(key string, dst *float64) bool {
	v, ok := p.attrs[key]
	if !ok {
		return false
	}
	f, ok := toFloat(v)
	if !ok {
		p.mismatch(key, "float", v)
		return false
	}
	*dst = f
	return true
}

// Bool copies a boolean attribute into dst.
func (p *Patch) Bool(key string, dst *bool) bool {
	v, ok := p.attrs[key]
	if !ok {
		return false
	}
	b, ok := v.(record.Bool)
	if !ok {
		p.mismatch(key, "bool", v)
		return false
	}
	*dst = bool(b)
	return true
}

// Strings copies a list of strings into dst.
func (p *Patch) Strings(key string, dst *[]string) bool {
	arr, ok := p.array(key)
	if !ok {
		return false
	}
	out := make([]string, 0, len(arr))
	for i, elem := range arr {
		s, ok := elem.(record.String)
		if !ok {
			p.mismatch(fmt.Sprintf("%s[%d]", key, i), "string", elem)
			return false
		}
		out = append(out, string(s))
	}
	*dst = out
	return true
}

// Floats copies a list of numbers into dst.
func (p *Patch) Floats(key string, dst *[]float64) bool {
	arr, ok := p.array(key)
	if !ok {
		return false
	}
	out := make([]float64, 0, len(arr))
	for i, elem := range arr {
		f, ok := toFloat(elem)
		if !ok {
			p.mismatch(fmt.Sprintf("%s[%d]", key, i), "float", elem)
			return false
		}
		out = append(out, f)
	}
	*dst = out
	return true
}

// Object decodes the nested typed record under key. A null value yields
// (nil, true) so callers can clear the field. A decode failure is logged
// and reported as absent.
func (p *Patch) Object(ctx context.Context, key string) (Serializable, bool) {
	v, ok := p.attrs[key]
	if !ok {
		return nil, false
	}
	if _, isNull := v.(record.Null); isNull {
		return nil, true
	}
	obj, err := p.decodeValue(ctx, v)
	if err != nil {
		p.unset(key, err)
		return nil, false
	}
	return obj, true
}

// Objects decodes a list of typed records. Elements that fail to decode
// are logged and skipped.
func (p *Patch) Objects(ctx context.Context, key string) ([]Serializable, bool) {
	arr, ok := p.array(key)
	if !ok {
		return nil, false
	}
	out := make([]Serializable, 0, len(arr))
	for i, elem := range arr {
		obj, err := p.decodeValue(ctx, elem)
		if err != nil {
			p.unset(fmt.Sprintf("%s[%d]", key, i), err)
			continue
		}
		out = append(out, obj)
	}
	return out, true
}

// Resource resolves the reference record under key. A null value yields
// (nil, true). A dangling reference is logged and reported as absent.
func (p *Patch) Resource(ctx context.Context, key string) (Resource, bool) {
	v, ok := p.attrs[key]
	if !ok {
		return nil, false
	}
	if _, isNull := v.(record.Null); isNull {
		return nil, true
	}
	res, err := p.resolveValue(ctx, v)
	if err != nil {
		p.unset(key, err)
		return nil, false
	}
	return res, true
}

// Resources resolves a list of reference records, skipping the ones that
// cannot be resolved.
func (p *Patch) Resources(ctx context.Context, key string) ([]Resource, bool) {
	arr, ok := p.array(key)
	if !ok {
		return nil, false
	}
	out := make([]Resource, 0, len(arr))
	for i, elem := range arr {
		res, err := p.resolveValue(ctx, elem)
		if err != nil {
			p.unset(fmt.Sprintf("%s[%d]", key, i), err)
			continue
		}
		out = append(out, res)
	}
	return out, true
}

// ObjectAs decodes the nested object under key into dst when it has type T.
func ObjectAs[T Serializable](ctx context.Context, p *Patch, key string, dst *T) bool {
	obj, ok := p.Object(ctx, key)
	if !ok {
		return false
	}
	if obj == nil {
		var zero T
		*dst = zero
		return true
	}
	typed, ok := obj.(T)
	if !ok {
		p.unset(key, fmt.Errorf("decoded %s, want %T", obj.TypeName(), *dst))
		return false
	}
	*dst = typed
	return true
}

// ResourceAs resolves the reference under key into dst when the resource
// has type T.
func ResourceAs[T Resource](ctx context.Context, p *Patch, key string, dst *T) bool {
	res, ok := p.Resource(ctx, key)
	if !ok {
		return false
	}
	if res == nil {
		var zero T
		*dst = zero
		return true
	}
	typed, ok := res.(T)
	if !ok {
		p.unset(key, fmt.Errorf("resource %s is a %s, want %T", res.ResourceID(), res.TypeName(), *dst))
		return false
	}
	*dst = typed
	return true
}

func (p *Patch) array(key string) (record.Array, bool) {
	v, ok := p.attrs[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.(record.Array)
	if !ok {
		p.mismatch(key, "list", v)
		return nil, false
	}
	return arr, true
}

func (p *Patch) decodeValue(ctx context.Context, v record.Value) (Serializable, error) {
	obj, ok := v.(record.Object)
	if !ok {
		return nil, fmt.Errorf("expected typed record, got %T", v)
	}
	if p.dec == nil {
		return nil, errors.New("no decoder for nested records")
	}
	return p.dec.Decode(ctx, obj)
}

func (p *Patch) resolveValue(ctx context.Context, v record.Value) (Resource, error) {
	id, ok := record.RefID(v)
	if !ok {
		return nil, fmt.Errorf("expected reference record, got %T", v)
	}
	if p.dec == nil {
		return nil, fmt.Errorf("no resolver for reference %s", id)
	}
	return p.dec.Resolve(ctx, id)
}

func (p *Patch) field(key string) string {
	if p.path == "" {
		return key
	}
	return p.path + "." + key
}

func (p *Patch) mismatch(key, want string, got record.Value) {
	err := fmt.Errorf("attribute %q: expected %s, got %T", p.field(key), want, got)
	for q := p; q != nil; q = q.parent {
		q.err = errors.Join(q.err, err)
	}
}

func (p *Patch) unset(key string, err error) {
	p.logger.Error("attribute left unset", "attribute", p.field(key), "error", err)
}

func toFloat(v record.Value) (float64, bool) {
	switch n := v.(type) {
	case record.Float:
		return float64(n), true
	case record.Int:
		return float64(n), true
	default:
		return 0, false
	}
}
