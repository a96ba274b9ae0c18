package graph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/registry"
	"github.com/roach88/graphsync/internal/scene"
	"github.com/roach88/graphsync/internal/snapshot"
)

// ErrInstanceReleased is returned when connecting an instance after Release.
var ErrInstanceReleased = errors.New("graph instance released")

// Instance is a node standing in for a Graph. It owns its own structural
// copy of the graph's subtree and remembers only the graph's id.
type Instance struct {
	scene.Node
	idSource string
	coord    *Coordinator
	released atomic.Bool
	placed   bool // seen under a parent
}

func newInstance(coord *Coordinator, idSource string) *Instance {
	i := &Instance{coord: coord, idSource: idSource}
	i.Node.Init(i, typeInstance)
	return i
}

// TypeName implements snapshot.Serializable.
func (i *Instance) TypeName() string { return typeInstance }

// SourceID returns the id of the graph the instance was built from.
func (i *Instance) SourceID() string { return i.idSource }

// Released reports whether Release was called.
func (i *Instance) Released() bool { return i.released.Load() }

// Attributes stores only the source id; the subtree is rebuilt from the
// graph on load.
func (i *Instance) Attributes() snapshot.Attributes {
	return snapshot.Attributes{
		"name":                  i.Name(),
		"active":                i.Active(),
		"idSource":              i.idSource,
		"deserializeFromSource": true,
	}
}

// SetAttributes connects to the source graph when the registry knows it,
// live or pending. An unknown source puts the instance in the resync ledger
// so that a later ResyncGraphInstances builds it.
//
// A record with deserializeFromSource false carries its own subtree, which
// is applied as is.
func (i *Instance) SetAttributes(ctx context.Context, p *snapshot.Patch) error {
	var name string
	p.String("name", &name)
	active := i.Active()
	p.Bool("active", &active)
	p.String("idSource", &i.idSource)
	fromSource := true
	p.Bool("deserializeFromSource", &fromSource)
	if err := p.Err(); err != nil {
		return err
	}

	if !fromSource {
		return i.Node.SetAttributes(ctx, p)
	}
	if i.idSource == "" {
		return fmt.Errorf("graph instance %q: missing idSource", name)
	}

	defer func() {
		if name != "" {
			i.SetName(name)
		}
		i.SetActive(active)
	}()

	if !i.coord.registry.Known(i.idSource) {
		i.coord.logger.Debug("graph not loaded yet, instance registered for resync",
			"instance", name, "source", i.idSource)
		i.coord.RegisterForResync(i)
		return nil
	}
	return i.Connect(ctx)
}

// Describe implements snapshot.Describer.
func (i *Instance) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "name", Kind: snapshot.KindString},
		{Name: "active", Kind: snapshot.KindBool},
		{Name: "idSource", Kind: snapshot.KindString},
		{Name: "deserializeFromSource", Kind: snapshot.KindBool, Optional: true},
	}
}

// Connect rebuilds the instance's subtree from the current state of its
// source graph and enters the instance in the resync ledger.
func (i *Instance) Connect(ctx context.Context) error {
	if i.released.Load() {
		return ErrInstanceReleased
	}

	ctx, err := pushConnectStack(ctx, i.idSource)
	if err != nil {
		return err
	}

	res, err := i.coord.registry.GetResource(ctx, i.idSource)
	if err != nil {
		return fmt.Errorf("connect to graph: %w", err)
	}
	g, ok := res.(*Graph)
	if !ok {
		return fmt.Errorf("connect to graph: %s is a %s, not a graph", i.idSource, res.TypeName())
	}

	rec, err := i.coord.codec.Serialize(&g.Node)
	if err != nil {
		return fmt.Errorf("connect to graph %s: %w", i.idSource, err)
	}
	_, inner, _ := record.Unwrap(rec)

	for _, child := range i.Children() {
		i.coord.Forget(child)
	}
	i.Node.Reset()
	if err := i.coord.codec.Patch(ctx, &i.Node, inner, i.coord.registry); err != nil {
		return fmt.Errorf("connect to graph %s: %w", i.idSource, err)
	}

	i.coord.connected(i)
	return nil
}

// Reset rebuilds the instance from its source graph.
func (i *Instance) Reset(ctx context.Context) error {
	return i.Connect(ctx)
}

// Release detaches the instance from its graph. It no longer takes part in
// Commit, and a pending resync reports it as failed and drops it.
func (i *Instance) Release() {
	i.released.Store(true)
	i.coord.release(i)
}

// orphaned reports whether the instance was once placed under a parent
// and has since been removed from it.
func (i *Instance) orphaned() bool {
	if i.Parent() != nil {
		i.placed = true
		return false
	}
	return i.placed
}

type connectStackKey struct{}

// pushConnectStack guards against a graph that, directly or through other
// graphs, contains an instance of itself.
func pushConnectStack(ctx context.Context, id string) (context.Context, error) {
	stack, _ := ctx.Value(connectStackKey{}).([]string)
	for idx := range stack {
		if stack[idx] == id {
			cycle := append([]string(nil), stack[idx:]...)
			return nil, &registry.CycleError{Path: append(cycle, id)}
		}
	}
	next := append(append(make([]string, 0, len(stack)+1), stack...), id)
	return context.WithValue(ctx, connectStackKey{}, next), nil
}
