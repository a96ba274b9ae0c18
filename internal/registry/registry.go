package registry

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/snapshot"
)

// Mode gates editor-only bookkeeping.
type Mode string

const (
	ModeRuntime Mode = "runtime"
	ModeEditor  Mode = "editor"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRuntime, ModeEditor:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid mode %q (valid: runtime, editor)", s)
	}
}

// Registry owns every live resource and the records of resources not yet
// reconstructed. All other holders keep only ids and resolve them through
// GetResource.
//
// Thread-safety: Registry is safe for concurrent use. Reconstruction of one
// pending id runs at most once at a time; concurrent callers share the
// result. A reference cycle entered from several goroutines at once is
// reported as a CycleError to one of them, as it is for a single caller.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]snapshot.Resource
	pending   map[string]record.Object
	hashes    map[string]string
	userNS    map[string]bool

	codec    *codec.Codec
	sf       singleflight.Group
	waits    *waitGraph
	clock    Clock
	suffixes SuffixGenerator
	mode     Mode
	logger   *slog.Logger
	events   bus

	collisions atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for the timestamp part of generated ids.
func WithClock(c Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithSuffixGenerator sets the source of id suffixes.
func WithSuffixGenerator(g SuffixGenerator) Option {
	return func(r *Registry) {
		r.suffixes = g
	}
}

// WithMode selects runtime or editor bookkeeping.
func WithMode(m Mode) Option {
	return func(r *Registry) {
		r.mode = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry that reconstructs records with c.
func New(c *codec.Codec, opts ...Option) *Registry {
	r := &Registry{
		resources: make(map[string]snapshot.Resource),
		pending:   make(map[string]record.Object),
		hashes:    make(map[string]string),
		userNS:    make(map[string]bool),
		codec:     c,
		waits:     newWaitGraph(),
		clock:     SystemClock{},
		suffixes:  UUIDSuffix{},
		mode:      ModeRuntime,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Codec returns the codec used for reconstruction.
func (r *Registry) Codec() *codec.Codec {
	return r.codec
}

// Mode returns the bookkeeping mode.
func (r *Registry) Mode() Mode {
	return r.mode
}

// Logger returns the registry's logger.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// Register inserts res under the id it already holds, or under a generated
// id when it holds none.
func (r *Registry) Register(res snapshot.Resource) error {
	return r.RegisterWithID(res, "")
}

// RegisterWithID inserts res under id. An empty id keeps the resource's
// current id, or generates one.
//
// A resource registered under a different id is moved: its old entry is
// removed first. Registering a resource again under its current id is a
// no-op. A different resource already holding the id is replaced.
func (r *Registry) RegisterWithID(res snapshot.Resource, id string) error {
	if res == nil {
		return fmt.Errorf("register: nil resource")
	}

	r.mu.Lock()
	current := res.ResourceID()
	if id == "" {
		id = current
	}

	if current != "" && current == id && r.resources[current] == res {
		r.mu.Unlock()
		return nil
	}

	var moved string
	if current != "" && current != id && r.resources[current] == res {
		delete(r.resources, current)
		delete(r.hashes, current)
		moved = current
	}

	if id == "" {
		generated, err := r.generateIDLocked(res.TypeName())
		if err != nil {
			r.mu.Unlock()
			return err
		}
		id = generated
	}

	if prev, ok := r.resources[id]; ok && prev != res {
		r.logger.Warn("replacing resource registered under the same id",
			"id", id,
			"previous", prev.Name())
	}
	delete(r.pending, id)
	res.SetResourceID(id)
	r.resources[id] = res
	r.mu.Unlock()

	r.track(id, res)

	if moved != "" {
		r.logger.Debug("resource moved to new id", "from", moved, "to", id)
		r.Dispatch(Event{Type: EventResourceDeregistered, ID: moved, Resource: res})
	}
	r.logger.Debug("resource registered", "id", id, "type", res.TypeName(), "name", res.Name())
	r.Dispatch(Event{Type: EventResourceRegistered, ID: id, Resource: res})
	return nil
}

// Deregister removes the live and pending entries for res's id. Other
// holders of the id are not touched; their next lookup fails soft.
func (r *Registry) Deregister(res snapshot.Resource) {
	if res == nil {
		return
	}
	r.DeregisterID(res.ResourceID())
}

// DeregisterID removes the live and pending entries for id and reports
// whether anything was removed.
func (r *Registry) DeregisterID(id string) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	res, live := r.resources[id]
	_, pending := r.pending[id]
	delete(r.resources, id)
	delete(r.pending, id)
	delete(r.hashes, id)
	r.mu.Unlock()

	if !live && !pending {
		return false
	}
	r.logger.Debug("resource deregistered", "id", id)
	r.Dispatch(Event{Type: EventResourceDeregistered, ID: id, Resource: res})
	return true
}

// GetResource returns the live resource for id, reconstructing it from its
// pending record on first access. Later calls return the identical
// instance.
//
// An unknown id yields a ResourceNotFoundError and a reference cycle among
// pending records a CycleError; both are logged and return a nil resource.
func (r *Registry) GetResource(ctx context.Context, id string) (snapshot.Resource, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.RLock()
	live, ok := r.resources[id]
	r.mu.RUnlock()
	if ok {
		return live, nil
	}

	withStack, err := pushResolveStack(ctx, id)
	if err != nil {
		r.logger.Error("resource reference cycle", "id", id, "error", err)
		return nil, err
	}
	withStack, res := resolutionFrom(withStack, id)
	if err := r.waits.wait(res, id); err != nil {
		r.logger.Error("resource reference cycle", "id", id, "error", err)
		return nil, err
	}

	v, err, _ := r.sf.Do(id, func() (any, error) {
		r.waits.hold(res, id)
		defer r.waits.release(id)
		return r.reconstruct(withStack, id)
	})
	r.waits.done(res)
	if err != nil {
		r.logger.Error("resource not resolved", "id", id, "error", err)
		return nil, err
	}
	return v.(snapshot.Resource), nil
}

// reconstruct deserializes the pending record for id and moves the result
// into the live table.
func (r *Registry) reconstruct(ctx context.Context, id string) (snapshot.Resource, error) {
	r.mu.RLock()
	live, isLive := r.resources[id]
	rec, isPending := r.pending[id]
	r.mu.RUnlock()
	if isLive {
		return live, nil
	}
	if !isPending {
		return nil, &ResourceNotFoundError{ID: id}
	}

	obj, err := r.codec.Deserialize(ctx, rec, r)
	if err != nil {
		return nil, fmt.Errorf("reconstruct %s: %w", id, err)
	}
	res, ok := obj.(snapshot.Resource)
	if !ok {
		return nil, fmt.Errorf("reconstruct %s: %s is not a resource type", id, obj.TypeName())
	}
	res.SetResourceID(id)

	r.mu.Lock()
	if _, still := r.pending[id]; !still {
		// Deregistered or replaced while reconstructing.
		existing, isLive := r.resources[id]
		r.mu.Unlock()
		if isLive {
			return existing, nil
		}
		return nil, &ResourceNotFoundError{ID: id}
	}
	delete(r.pending, id)
	r.resources[id] = res
	if r.mode == ModeEditor {
		if h, err := record.ContentHash(rec); err == nil {
			r.hashes[id] = h
		}
	}
	r.mu.Unlock()

	r.logger.Debug("resource reconstructed", "id", id, "type", res.TypeName())
	return res, nil
}

// Lookup returns the live resource for id without reconstructing.
func (r *Registry) Lookup(id string) (snapshot.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	return res, ok
}

// Known reports whether id is live or pending.
func (r *Registry) Known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.knownLocked(id)
}

func (r *Registry) knownLocked(id string) bool {
	if _, ok := r.resources[id]; ok {
		return true
	}
	_, ok := r.pending[id]
	return ok
}

// IsPending reports whether id still waits for reconstruction.
func (r *Registry) IsPending(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pending[id]
	return ok
}

// PendingRecord returns a copy of the stored record for a pending id.
func (r *Registry) PendingRecord(id string) (record.Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// IDs returns every live and pending id, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := slices.Collect(maps.Keys(r.resources))
	for id := range r.pending {
		if _, live := r.resources[id]; !live {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Resources returns a snapshot of the live table.
func (r *Registry) Resources() map[string]snapshot.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.resources)
}

// ResourcesByType returns live resources of a type, sorted by id.
func (r *Registry) ResourcesByType(typeName string) []snapshot.Resource {
	return r.filter(func(res snapshot.Resource) bool {
		return res.TypeName() == typeName
	})
}

// ResourcesByName returns live resources with a name, sorted by id.
func (r *Registry) ResourcesByName(name string) []snapshot.Resource {
	return r.filter(func(res snapshot.Resource) bool {
		return res.Name() == name
	})
}

func (r *Registry) filter(keep func(snapshot.Resource) bool) []snapshot.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(r.resources))
	out := make([]snapshot.Resource, 0)
	for _, id := range ids {
		if res := r.resources[id]; keep(res) {
			out = append(out, res)
		}
	}
	return out
}

// RegisterNamespace makes a user namespace resolvable. Registering the same
// name again is a no-op.
func (r *Registry) RegisterNamespace(ns codec.Namespace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.userNS[ns.Name] {
		return nil
	}
	if slices.Contains(r.codec.Namespaces(), ns.Name) {
		return fmt.Errorf("register namespace: %s is a core namespace", ns.Name)
	}
	if err := r.codec.RegisterNamespace(ns); err != nil {
		return err
	}
	r.userNS[ns.Name] = true
	return nil
}

// ClearNamespaces forgets every namespace added through RegisterNamespace.
func (r *Registry) ClearNamespaces() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.userNS {
		r.codec.UnregisterNamespace(name)
	}
	clear(r.userNS)
}

// Clear drops every live and pending resource and all user namespaces.
func (r *Registry) Clear() {
	r.mu.Lock()
	clear(r.resources)
	clear(r.pending)
	clear(r.hashes)
	r.mu.Unlock()

	r.ClearNamespaces()
	r.logger.Debug("registry cleared")
}

// Serialize returns the project layout: one record per id. Resources that
// were never reconstructed are written back as their stored record.
func (r *Registry) Serialize() (map[string]record.Object, error) {
	r.mu.RLock()
	live := maps.Clone(r.resources)
	layout := make(map[string]record.Object, len(r.resources)+len(r.pending))
	for id, rec := range r.pending {
		layout[id] = rec.Clone()
	}
	r.mu.RUnlock()

	for _, id := range slices.Sorted(maps.Keys(live)) {
		rec, err := r.codec.Serialize(live[id])
		if err != nil {
			return nil, fmt.Errorf("serialize resource %s: %w", id, err)
		}
		layout[id] = rec
	}
	return layout, nil
}

// Deserialize replaces the whole registry content with layout. Nothing is
// reconstructed here: each record stays pending until GetResource first
// asks for its id, so a record that fails to decode only fails when it is
// used. An entry that is not a typed record is logged and skipped.
func (r *Registry) Deserialize(layout map[string]record.Object) {
	pending := make(map[string]record.Object, len(layout))
	hashes := make(map[string]string)
	for id, rec := range layout {
		if _, _, ok := record.Unwrap(rec); !ok {
			r.logger.Warn("layout entry skipped: not a typed record", "id", id, "keys", len(rec))
			continue
		}
		pending[id] = rec.Clone()
		if r.mode == ModeEditor {
			h, err := record.ContentHash(rec)
			if err != nil {
				r.logger.Warn("layout entry not hashed", "id", id, "error", err)
				continue
			}
			hashes[id] = h
		}
	}

	r.mu.Lock()
	r.resources = make(map[string]snapshot.Resource)
	r.pending = pending
	r.hashes = hashes
	r.mu.Unlock()

	r.logger.Debug("layout installed", "resources", len(pending))
}

// Reconstruct resolves every pending record. Failures are logged by
// GetResource and skipped. It returns the live table afterwards.
func (r *Registry) Reconstruct(ctx context.Context) map[string]snapshot.Resource {
	r.mu.RLock()
	ids := slices.Sorted(maps.Keys(r.pending))
	r.mu.RUnlock()

	for _, id := range ids {
		_, _ = r.GetResource(ctx, id)
	}
	return r.Resources()
}

// track records the content hash of a newly registered resource in editor
// mode.
func (r *Registry) track(id string, res snapshot.Resource) {
	if r.mode != ModeEditor {
		return
	}
	h, err := r.hash(res)
	if err != nil {
		r.logger.Warn("cannot hash resource", "id", id, "error", err)
		return
	}
	r.mu.Lock()
	r.hashes[id] = h
	r.mu.Unlock()
}

func (r *Registry) hash(res snapshot.Resource) (string, error) {
	rec, err := r.codec.Serialize(res)
	if err != nil {
		return "", err
	}
	return record.ContentHash(rec)
}

// Modified lists live resources whose serialization changed since they were
// registered or restored. Always empty in runtime mode.
func (r *Registry) Modified() []string {
	if r.mode != ModeEditor {
		return []string{}
	}

	r.mu.RLock()
	live := maps.Clone(r.resources)
	hashes := maps.Clone(r.hashes)
	r.mu.RUnlock()

	modified := make([]string, 0)
	for _, id := range slices.Sorted(maps.Keys(live)) {
		h, err := r.hash(live[id])
		if err != nil || h != hashes[id] {
			modified = append(modified, id)
		}
	}
	return modified
}

// MarkSaved accepts the current serialization of every live resource as
// unmodified.
func (r *Registry) MarkSaved() {
	if r.mode != ModeEditor {
		return
	}
	for id, res := range r.Resources() {
		r.track(id, res)
	}
}
