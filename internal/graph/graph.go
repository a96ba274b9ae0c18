// Package graph turns node subtrees into reusable resources and keeps live
// copies of them in step with their source.
//
// A Graph is a registered resource holding a subtree. An Instance is a
// scene node that stores only the id of its Graph and rebuilds its own
// subtree from the Graph's record when connected. The Coordinator keeps the
// resync ledger: which instances wait for which graph id.
package graph

import (
	"context"
	"fmt"

	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/scene"
	"github.com/roach88/graphsync/internal/snapshot"
)

const (
	// NamespaceName is the name the graph types are registered under.
	NamespaceName = "Graph"

	typeGraph    = "Graph"
	typeInstance = "GraphInstance"
)

// Graph is a named resource whose payload is a node subtree.
type Graph struct {
	scene.Node
	id string
}

// NewGraph creates an unregistered, empty graph.
func NewGraph(name string) *Graph {
	g := &Graph{}
	g.Node.Init(g, name)
	return g
}

func (g *Graph) TypeName() string        { return typeGraph }
func (g *Graph) ResourceID() string      { return g.id }
func (g *Graph) SetResourceID(id string) { g.id = id }

// Namespace returns the constructors of Graph and Instance. Instances built
// by the codec connect through coord.
func Namespace(coord *Coordinator) codec.Namespace {
	return codec.Namespace{
		Name: NamespaceName,
		Types: []codec.Constructor{
			func() snapshot.Serializable { return NewGraph("") },
			func() snapshot.Serializable { return newInstance(coord, "") },
		},
	}
}

// RegisterAsGraph captures node's subtree as a new registered Graph.
//
// With replaceWithInstance set and node attached to a parent, node is
// swapped for a connected Instance of the new graph, which is returned.
// Otherwise the returned instance is nil and node is left in place.
func (c *Coordinator) RegisterAsGraph(ctx context.Context, node scene.Element, replaceWithInstance bool) (*Graph, *Instance, error) {
	base := node.Base()
	rec, err := c.codec.Serialize(base)
	if err != nil {
		return nil, nil, fmt.Errorf("register as graph %q: %w", base.Name(), err)
	}
	_, inner, _ := record.Unwrap(rec)

	g := NewGraph(base.Name())
	if err := c.codec.Patch(ctx, &g.Node, inner, c.registry); err != nil {
		return nil, nil, fmt.Errorf("register as graph %q: %w", base.Name(), err)
	}
	if err := c.registry.Register(g); err != nil {
		return nil, nil, fmt.Errorf("register as graph %q: %w", base.Name(), err)
	}
	c.logger.Info("graph registered", "id", g.ResourceID(), "name", g.Name())

	parent := base.Parent()
	if !replaceWithInstance || parent == nil {
		return g, nil, nil
	}

	inst, err := c.CreateGraphInstance(ctx, g)
	if err != nil {
		return g, nil, err
	}
	if err := parent.Base().ReplaceChild(node, inst); err != nil {
		return g, nil, fmt.Errorf("register as graph %q: %w", base.Name(), err)
	}
	c.Forget(node)
	return g, inst, nil
}

// CreateGraphInstance builds an Instance of g and connects it once, which
// also enters it in the resync ledger.
func (c *Coordinator) CreateGraphInstance(ctx context.Context, g *Graph) (*Instance, error) {
	if g.ResourceID() == "" {
		return nil, fmt.Errorf("create graph instance %q: graph is not registered", g.Name())
	}
	inst := newInstance(c, g.ResourceID())
	if err := inst.Connect(ctx); err != nil {
		return nil, fmt.Errorf("create graph instance %q: %w", g.Name(), err)
	}
	return inst, nil
}
