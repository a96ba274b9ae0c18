// Package project wires the codec, registry, graph coordinator and
// checkpoint store into one object per open project.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/config"
	"github.com/roach88/graphsync/internal/graph"
	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/registry"
	"github.com/roach88/graphsync/internal/scene"
	"github.com/roach88/graphsync/internal/snapshot"
	"github.com/roach88/graphsync/internal/store"
)

// SourceStore names the store in EventResourcesLoaded.
const SourceStore = "store"

// Project is an isolated set of resources with its own registry. Nothing
// is shared between projects.
type Project struct {
	codec    *codec.Codec
	registry *registry.Registry
	coord    *graph.Coordinator
	store    *store.Store
	logger   *slog.Logger
}

type options struct {
	logger     *slog.Logger
	store      *store.Store
	namespaces []codec.Namespace
	registry   []registry.Option
}

// Option configures a Project.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore attaches a checkpoint store. The project closes it on Close.
func WithStore(s *store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithNamespace registers an application namespace.
func WithNamespace(ns codec.Namespace) Option {
	return func(o *options) {
		o.namespaces = append(o.namespaces, ns)
	}
}

// WithRegistryOptions passes options through to the registry.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *options) {
		o.registry = append(o.registry, opts...)
	}
}

// New creates an empty project with the scene and graph namespaces
// registered.
func New(opts ...Option) (*Project, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	c := codec.New([]codec.Namespace{scene.Namespace()}, codec.WithLogger(o.logger))
	regOpts := append([]registry.Option{registry.WithLogger(o.logger)}, o.registry...)
	reg := registry.New(c, regOpts...)
	coord, err := graph.NewCoordinator(reg, graph.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("new project: %w", err)
	}
	for _, ns := range o.namespaces {
		if err := reg.RegisterNamespace(ns); err != nil {
			return nil, fmt.Errorf("new project: %w", err)
		}
	}

	return &Project{
		codec:    c,
		registry: reg,
		coord:    coord,
		store:    o.store,
		logger:   o.logger,
	}, nil
}

// Open creates a project from cfg: it opens the store at cfg.Database and
// installs cfg.Resources, or else the last stored checkpoint.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Project, error) {
	s, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	base := []Option{
		WithStore(s),
		WithRegistryOptions(registry.WithMode(cfg.RegistryMode())),
	}
	p, err := New(append(base, opts...)...)
	if err != nil {
		s.Close()
		return nil, err
	}

	if len(cfg.Resources) > 0 {
		_, err = p.LoadResources(ctx, cfg.Resources...)
	} else {
		_, err = p.Restore(ctx)
		if errors.Is(err, store.ErrNotFound) {
			err = nil
		}
	}
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open project: %w", err)
	}
	return p, nil
}

// Close closes the attached store, if any.
func (p *Project) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

func (p *Project) Codec() *codec.Codec             { return p.codec }
func (p *Project) Registry() *registry.Registry    { return p.registry }
func (p *Project) Coordinator() *graph.Coordinator { return p.coord }
func (p *Project) Store() *store.Store             { return p.store }
func (p *Project) Logger() *slog.Logger            { return p.logger }

// SkippedEntry is a layout entry left out of a load.
type SkippedEntry struct {
	Source string
	ID     string
	Err    error
}

func (e *SkippedEntry) Error() string {
	return fmt.Sprintf("%s: entry %s: %v", e.Source, e.ID, e.Err)
}

func (e *SkippedEntry) Unwrap() error { return e.Err }

// ReadLayout parses a layout file: one JSON object mapping resource ids to
// typed records. Entries whose value is not an object are left out and
// reported in skipped, ordered by id. The error is for files that cannot be
// read or parsed at all.
func ReadLayout(path string) (layout map[string]record.Object, skipped []*SkippedEntry, err error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read layout: %w", err)
	}
	obj, err := codec.Parse(string(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	layout = make(map[string]record.Object, len(obj))
	for _, id := range obj.SortedKeys() {
		rec, ok := obj[id].(record.Object)
		if !ok {
			skipped = append(skipped, &SkippedEntry{Source: path, ID: id, Err: errors.New("not a record")})
			continue
		}
		layout[id] = rec
	}
	return layout, skipped, nil
}

// WriteLayout writes layout to path in the format ReadLayout reads.
func WriteLayout(path string, layout map[string]record.Object) error {
	whole := make(record.Object, len(layout))
	for id, rec := range layout {
		whole[id] = rec
	}
	text, err := codec.Stringify(whole)
	if err != nil {
		return fmt.Errorf("write layout: %w", err)
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("write layout: %w", err)
	}
	return nil
}

// LoadResources replaces the registry content with the layouts in paths
// and announces EventResourcesLoaded. Records stay pending until first
// used. An id present in more than one file keeps the later record. Bad
// entries are logged and left out; only unreadable files are an error.
func (p *Project) LoadResources(ctx context.Context, paths ...string) ([]string, error) {
	merged := make(map[string]record.Object)
	var skipped []*SkippedEntry
	for _, path := range paths {
		layout, bad, err := ReadLayout(path)
		if err != nil {
			return nil, err
		}
		skipped = append(skipped, bad...)
		for id, rec := range layout {
			if _, dup := merged[id]; dup {
				p.logger.Warn("resource id loaded twice, keeping later record", "id", id, "source", path)
			}
			merged[id] = rec
		}
	}
	return p.install(merged, skipped, strings.Join(paths, ",")), nil
}

// SaveResources writes the registry layout to path.
func (p *Project) SaveResources(_ context.Context, path string) error {
	layout, err := p.registry.Serialize()
	if err != nil {
		return fmt.Errorf("save resources: %w", err)
	}
	if err := WriteLayout(path, layout); err != nil {
		return err
	}
	p.registry.MarkSaved()
	p.logger.Info("resources saved", "path", path, "resources", len(layout))
	return nil
}

// Checkpoint stores the registry layout in the attached store.
func (p *Project) Checkpoint(ctx context.Context, label string) (store.Checkpoint, error) {
	if p.store == nil {
		return store.Checkpoint{}, errors.New("checkpoint: project has no store")
	}
	layout, err := p.registry.Serialize()
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("checkpoint: %w", err)
	}
	cp, err := p.store.SaveCheckpoint(ctx, label, layout)
	if err != nil {
		return store.Checkpoint{}, err
	}
	p.registry.MarkSaved()
	p.logger.Info("checkpoint saved",
		"seq", cp.Seq, "label", label, "resources", cp.Resources, "changed", cp.Changed)
	return cp, nil
}

// Restore replaces the registry content with the stored layout. It fails
// with store.ErrNotFound when no checkpoint was ever saved. Corrupt rows
// are logged and left out.
func (p *Project) Restore(ctx context.Context) ([]string, error) {
	if p.store == nil {
		return nil, errors.New("restore: project has no store")
	}
	if _, err := p.store.LastCheckpoint(ctx); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	layout, corrupt, err := p.store.LoadLayout(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	skipped := make([]*SkippedEntry, len(corrupt))
	for i, c := range corrupt {
		skipped[i] = &SkippedEntry{Source: SourceStore, ID: c.ID, Err: c.Err}
	}
	return p.install(layout, skipped, SourceStore), nil
}

// install replaces the registry content and drops every instance the
// coordinator tracked for the previous content.
func (p *Project) install(layout map[string]record.Object, skipped []*SkippedEntry, source string) []string {
	for _, e := range skipped {
		p.logger.Error("layout entry skipped", "source", e.Source, "id", e.ID, "error", e.Err)
	}
	p.coord.Clear()
	p.registry.Deserialize(layout)
	ids := p.registry.IDs()
	p.registry.Dispatch(registry.Event{Type: registry.EventResourcesLoaded, Source: source, IDs: ids})
	p.logger.Info("resources loaded", "source", source, "resources", len(ids), "skipped", len(skipped))
	return ids
}

// Decode reconstructs one object from a typed record, resolving references
// through the registry.
func (p *Project) Decode(ctx context.Context, rec record.Object) (snapshot.Serializable, error) {
	return p.codec.Deserialize(ctx, rec, p.registry)
}

// Encode serializes one object.
func (p *Project) Encode(obj snapshot.Serializable) (record.Object, error) {
	return p.codec.Serialize(obj)
}
