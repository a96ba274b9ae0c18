package scene

import (
	"context"

	"github.com/roach88/graphsync/internal/snapshot"
)

// Component is a behavior or payload attached to a node.
// Implementations embed ComponentBase.
type Component interface {
	snapshot.Serializable
	Container() *Node
	setContainer(n *Node)
}

// ComponentBase carries the fields every component shares.
type ComponentBase struct {
	container *Node
	active    bool
}

func newComponentBase() ComponentBase {
	return ComponentBase{active: true}
}

// Container returns the node the component is attached to, or nil.
func (c *ComponentBase) Container() *Node { return c.container }

func (c *ComponentBase) setContainer(n *Node) { c.container = n }

// Active reports whether the component is enabled.
func (c *ComponentBase) Active() bool { return c.active }

// SetActive enables or disables the component.
func (c *ComponentBase) SetActive(active bool) { c.active = active }

func (c *ComponentBase) baseAttributes() snapshot.Attributes {
	return snapshot.Attributes{"active": c.active}
}

func (c *ComponentBase) setBaseAttributes(_ context.Context, p *snapshot.Patch) {
	p.Bool("active", &c.active)
}
