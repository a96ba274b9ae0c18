package scene

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/snapshot"
)

// ErrCyclic is returned when adding a child would make a node its own
// ancestor.
var ErrCyclic = errors.New("cyclic reference: child is an ancestor of the node")

// Element is anything that sits in a node tree. Types that embed Node
// return the embedded node from Base and pass themselves to Init, so the
// tree reports the outer value as parent and child.
type Element interface {
	snapshot.Serializable
	Base() *Node
}

// Node is a named tree element carrying components.
type Node struct {
	name       string
	active     bool
	self       Element
	parent     Element
	children   []Element
	components []Component
}

// NewNode creates an active node.
func NewNode(name string) *Node {
	n := &Node{}
	n.Init(n, name)
	return n
}

// Init prepares an embedded node. self is the value embedding n.
func (n *Node) Init(self Element, name string) {
	n.self = self
	n.name = name
	n.active = true
}

// TypeName implements snapshot.Serializable.
func (n *Node) TypeName() string { return "Node" }

// Base implements Element.
func (n *Node) Base() *Node { return n }

// Self returns the outer element embedding n, or n itself.
func (n *Node) Self() Element {
	if n.self == nil {
		return n
	}
	return n.self
}

func (n *Node) Name() string          { return n.name }
func (n *Node) SetName(name string)   { n.name = name }
func (n *Node) Active() bool          { return n.active }
func (n *Node) SetActive(active bool) { n.active = active }

// Parent returns the element n is attached to, or nil.
func (n *Node) Parent() Element { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []Element {
	return slices.Clone(n.children)
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int { return len(n.children) }

// ChildrenByName returns direct children with the given name.
func (n *Node) ChildrenByName(name string) []Element {
	var out []Element
	for _, c := range n.children {
		if c.Base().name == name {
			out = append(out, c)
		}
	}
	return out
}

// FindChild returns the index of child, or -1.
func (n *Node) FindChild(child Element) int {
	for i, c := range n.children {
		if c.Base() == child.Base() {
			return i
		}
	}
	return -1
}

// IsDescendantOf reports whether ancestor is n or one of n's ancestors.
func (n *Node) IsDescendantOf(ancestor *Node) bool {
	for cur := n; cur != nil; {
		if cur == ancestor {
			return true
		}
		if cur.parent == nil {
			return false
		}
		cur = cur.parent.Base()
	}
	return false
}

// AddChild appends child, detaching it from its previous parent.
func (n *Node) AddChild(child Element) error {
	if child == nil {
		return fmt.Errorf("add child: nil element")
	}
	if n.IsDescendantOf(child.Base()) {
		return ErrCyclic
	}
	if n.FindChild(child) >= 0 {
		return nil
	}
	c := child.Base()
	if c.parent != nil {
		c.parent.Base().RemoveChild(child)
	}
	n.children = append(n.children, child)
	c.parent = n.Self()
	return nil
}

// RemoveChild detaches child and reports whether it was found.
func (n *Node) RemoveChild(child Element) bool {
	i := n.FindChild(child)
	if i < 0 {
		return false
	}
	n.children = slices.Delete(n.children, i, i+1)
	child.Base().parent = nil
	return true
}

// RemoveAllChildren detaches every child.
func (n *Node) RemoveAllChildren() {
	for _, c := range n.children {
		c.Base().parent = nil
	}
	n.children = nil
}

// ReplaceChild puts replacement at the position of old. replacement is
// detached from its previous parent first.
func (n *Node) ReplaceChild(old, replacement Element) error {
	i := n.FindChild(old)
	if i < 0 {
		return fmt.Errorf("replace child: %q is not a child of %q", old.Base().name, n.name)
	}
	if n.IsDescendantOf(replacement.Base()) {
		return ErrCyclic
	}
	r := replacement.Base()
	if r.parent != nil {
		r.parent.Base().RemoveChild(replacement)
		i = n.FindChild(old)
	}
	n.children[i] = replacement
	old.Base().parent = nil
	r.parent = n.Self()
	return nil
}

// AddComponent attaches c, moving it from its previous node.
func (n *Node) AddComponent(c Component) {
	if prev := c.Container(); prev != nil {
		if prev == n {
			return
		}
		prev.RemoveComponent(c)
	}
	n.components = append(n.components, c)
	c.setContainer(n)
}

// RemoveComponent detaches c and reports whether it was attached here.
func (n *Node) RemoveComponent(c Component) bool {
	i := slices.Index(n.components, c)
	if i < 0 {
		return false
	}
	n.components = slices.Delete(n.components, i, i+1)
	c.setContainer(nil)
	return true
}

// RemoveAllComponents detaches every component.
func (n *Node) RemoveAllComponents() {
	for _, c := range n.components {
		c.setContainer(nil)
	}
	n.components = nil
}

// Components returns a copy of the component list.
func (n *Node) Components() []Component {
	return slices.Clone(n.components)
}

// ComponentsByType returns the attached components of one type.
func (n *Node) ComponentsByType(typeName string) []Component {
	var out []Component
	for _, c := range n.components {
		if c.TypeName() == typeName {
			out = append(out, c)
		}
	}
	return out
}

// Reset removes all children and components.
func (n *Node) Reset() {
	n.RemoveAllChildren()
	n.RemoveAllComponents()
}

// Attributes implements snapshot.Serializable. Components are written as
// one list in attachment order.
func (n *Node) Attributes() snapshot.Attributes {
	components := make([]snapshot.Serializable, len(n.components))
	for i, c := range n.components {
		components[i] = c
	}
	children := make([]snapshot.Serializable, len(n.children))
	for i, c := range n.children {
		children[i] = c
	}
	return snapshot.Attributes{
		"name":       n.name,
		"active":     n.active,
		"components": components,
		"children":   children,
	}
}

// SetAttributes implements snapshot.Serializable. A present children or
// components key replaces the whole list.
func (n *Node) SetAttributes(ctx context.Context, p *snapshot.Patch) error {
	p.String("name", &n.name)
	p.Bool("active", &n.active)

	if objs, ok := n.componentObjects(ctx, p); ok {
		n.RemoveAllComponents()
		for _, obj := range objs {
			c, ok := obj.(Component)
			if !ok {
				return fmt.Errorf("node %q: %s is not a component", n.name, obj.TypeName())
			}
			n.AddComponent(c)
		}
	}

	if objs, ok := p.Objects(ctx, "children"); ok {
		n.RemoveAllChildren()
		for _, obj := range objs {
			child, ok := obj.(Element)
			if !ok {
				return fmt.Errorf("node %q: %s is not a node", n.name, obj.TypeName())
			}
			if err := n.AddChild(child); err != nil {
				return fmt.Errorf("node %q: %w", n.name, err)
			}
		}
	}

	return p.Err()
}

// componentObjects decodes the components attribute. Besides the ordered
// list, it reads records grouped by type name, {Type: [records]}, whose
// order across types is not kept; types are then taken in sorted order.
func (n *Node) componentObjects(ctx context.Context, p *snapshot.Patch) ([]snapshot.Serializable, bool) {
	raw, ok := p.Raw("components")
	if !ok {
		return nil, false
	}
	if _, grouped := raw.(record.Object); !grouped {
		return p.Objects(ctx, "components")
	}
	comps, _ := p.Sub("components")
	var out []snapshot.Serializable
	for _, typeName := range comps.Keys() {
		objs, _ := comps.Objects(ctx, typeName)
		out = append(out, objs...)
	}
	return out, true
}

// Describe implements snapshot.Describer.
func (n *Node) Describe() []snapshot.Field {
	return []snapshot.Field{
		{Name: "name", Kind: snapshot.KindString},
		{Name: "active", Kind: snapshot.KindBool},
		{Name: "components", Kind: snapshot.KindAny},
		{Name: "children", Kind: snapshot.KindList, Elem: snapshot.KindObject},
	}
}

// Walk visits e and its descendants depth first.
func Walk(e Element, visit func(Element)) {
	visit(e)
	for _, c := range e.Base().children {
		Walk(c, visit)
	}
}
