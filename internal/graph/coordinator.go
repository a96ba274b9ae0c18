package graph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/registry"
	"github.com/roach88/graphsync/internal/scene"
)

// ResyncFailure describes one instance that could not be reconnected.
type ResyncFailure struct {
	InstanceName string
	SourceID     string
	Err          error
}

func (f *ResyncFailure) Error() string {
	return fmt.Sprintf("resync instance %q of graph %s: %v", f.InstanceName, f.SourceID, f.Err)
}

func (f *ResyncFailure) Unwrap() error { return f.Err }

// Coordinator owns the resync ledger and creates graphs and instances
// against one registry.
//
// Two lists are kept per graph id. The ledger holds instances waiting for a
// resync and is drained by ResyncGraphInstances. The attached list holds
// every connected, unreleased instance and is what Commit propagates to.
//
// An instance leaves both lists when it is released, when the subtree that
// held it is rebuilt or forgotten, or when a resync finds it detached from
// the parent it was last seen under.
type Coordinator struct {
	registry *registry.Registry
	codec    *codec.Codec
	logger   *slog.Logger

	mu       sync.Mutex
	ledger   map[string][]*Instance
	attached map[string][]*Instance
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The registry's logger is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a coordinator and registers the graph types with
// the registry's codec.
func NewCoordinator(reg *registry.Registry, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		registry: reg,
		codec:    reg.Codec(),
		logger:   reg.Logger(),
		ledger:   make(map[string][]*Instance),
		attached: make(map[string][]*Instance),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.codec.RegisterNamespace(Namespace(c)); err != nil {
		return nil, fmt.Errorf("new coordinator: %w", err)
	}
	return c, nil
}

// Registry returns the registry graphs are stored in.
func (c *Coordinator) Registry() *registry.Registry { return c.registry }

// RegisterForResync adds inst to the ledger of its source graph. An
// instance already waiting is not added twice.
func (c *Coordinator) RegisterForResync(inst *Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger[inst.idSource] = appendUnique(c.ledger[inst.idSource], inst)
}

// Pending returns the instances waiting for a resync of graph id, in
// registration order.
func (c *Coordinator) Pending(id string) []*Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ledger[id])
}

// Attached returns the connected, unreleased instances of graph id.
func (c *Coordinator) Attached(id string) []*Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.attached[id])
}

// ResyncGraphInstances reconnects every instance waiting on g, in the order
// they were registered, and then clears g's ledger entry. It does nothing
// when g is not registered.
//
// A failing instance is logged and skipped; the others still resync. The
// returned failures are informational.
func (c *Coordinator) ResyncGraphInstances(ctx context.Context, g *Graph) []*ResyncFailure {
	id := g.ResourceID()
	if id == "" || !c.registry.Known(id) {
		return nil
	}
	return c.resync(ctx, id, c.Pending(id))
}

// Commit announces that g was edited and brings every instance of it up to
// date: both the ones waiting in the ledger and the attached ones.
func (c *Coordinator) Commit(ctx context.Context, g *Graph) []*ResyncFailure {
	id := g.ResourceID()
	if id == "" || !c.registry.Known(id) {
		return nil
	}
	c.registry.Dispatch(registry.Event{Type: registry.EventGraphMutated, ID: id, Resource: g})

	c.mu.Lock()
	targets := slices.Clone(c.attached[id])
	for _, inst := range c.ledger[id] {
		targets = appendUnique(targets, inst)
	}
	c.mu.Unlock()

	return c.resync(ctx, id, targets)
}

// Forget drops e and every instance below it from the ledger and the
// attached lists. Call it for subtrees taken out of the scene for good.
func (c *Coordinator) Forget(e scene.Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scene.Walk(e, func(el scene.Element) {
		if inst, ok := el.(*Instance); ok {
			c.drop(inst)
		}
	})
}

// Clear empties the ledger and the attached lists.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.ledger)
	clear(c.attached)
}

func (c *Coordinator) resync(ctx context.Context, id string, targets []*Instance) []*ResyncFailure {
	var failures []*ResyncFailure
	pruned := 0
	for _, inst := range targets {
		if inst.orphaned() {
			c.Forget(inst)
			pruned++
			continue
		}
		if err := inst.Connect(ctx); err != nil {
			f := &ResyncFailure{InstanceName: inst.Name(), SourceID: id, Err: err}
			c.logger.Error("graph instance resync failed",
				"instance", f.InstanceName, "source", id, "error", err)
			failures = append(failures, f)
		}
	}

	c.mu.Lock()
	delete(c.ledger, id)
	c.mu.Unlock()

	c.logger.Debug("graph instances resynced",
		"source", id, "instances", len(targets)-pruned, "failed", len(failures), "pruned", pruned)
	return failures
}

func (c *Coordinator) connected(inst *Instance) {
	inst.orphaned()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger[inst.idSource] = appendUnique(c.ledger[inst.idSource], inst)
	c.attached[inst.idSource] = appendUnique(c.attached[inst.idSource], inst)
}

func (c *Coordinator) release(inst *Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = without(c.attached, inst)
}

// drop removes inst from both lists. Callers hold c.mu.
func (c *Coordinator) drop(inst *Instance) {
	c.attached = without(c.attached, inst)
	c.ledger = without(c.ledger, inst)
}

func without(lists map[string][]*Instance, inst *Instance) map[string][]*Instance {
	list := slices.DeleteFunc(lists[inst.idSource], func(i *Instance) bool { return i == inst })
	if len(list) == 0 {
		delete(lists, inst.idSource)
	} else {
		lists[inst.idSource] = list
	}
	return lists
}

func appendUnique(list []*Instance, inst *Instance) []*Instance {
	if slices.Contains(list, inst) {
		return list
	}
	return append(list, inst)
}
