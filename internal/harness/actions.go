package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/graphsync/internal/graph"
	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/scene"
	"github.com/roach88/graphsync/internal/snapshot"
)

type action func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error)

// actions is the closed table of scenario operations.
var actions = map[string]action{
	"Material.create":     createMaterial,
	"Node.create":         createNode,
	"Node.rename":         renameNode,
	"Node.setActive":      setNodeActive,
	"Node.remove":         removeNode,
	"Graph.register":      registerGraph,
	"Graph.instantiate":   instantiateGraph,
	"Graph.resync":        resyncGraph,
	"Graph.commit":        commitGraph,
	"Instance.release":    releaseInstance,
	"Instance.reset":      resetInstance,
	"Resource.find":       findResource,
	"Resource.deregister": deregisterResource,
	"Project.checkpoint":  checkpointProject,
	"Project.restore":     restoreProject,
}

// Actions returns the names of all scenario operations.
func Actions() []string {
	return slices.Sorted(maps.Keys(actions))
}

// createMaterial registers a Material. args: as, name, shader.
func createMaterial(_ context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	as, err := stringArg(args, "as")
	if err != nil {
		return nil, err
	}
	name := optString(args, "name", as)
	m := scene.NewMaterial(name, optString(args, "shader", "phong"), *scene.White())
	if err := h.project.Registry().Register(m); err != nil {
		return nil, err
	}
	h.bind(as, m)
	return map[string]any{"id": m.ResourceID()}, nil
}

// createNode builds a node. args: as, name, parent, components.
//
// Components are written "transform", "light:<kind>", "material:<handle>"
// or "mesh:<handle>".
func createNode(_ context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	as, err := stringArg(args, "as")
	if err != nil {
		return nil, err
	}
	n := scene.NewNode(optString(args, "name", as))

	specs, err := stringsArg(args, "components")
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		c, err := h.component(spec)
		if err != nil {
			return nil, err
		}
		n.AddComponent(c)
	}

	if addr := optString(args, "parent", ""); addr != "" {
		parent, err := h.element(addr)
		if err != nil {
			return nil, err
		}
		if err := parent.Base().AddChild(n); err != nil {
			return nil, err
		}
	}
	h.bind(as, n)
	return map[string]any{"name": n.Name()}, nil
}

func (h *Harness) component(spec string) (scene.Component, error) {
	kind, arg, _ := strings.Cut(spec, ":")
	switch kind {
	case "transform":
		return scene.NewComponentTransform(), nil
	case "light":
		if arg == "" {
			arg = string(scene.LightPoint)
		}
		return scene.NewComponentLight(scene.LightType(arg)), nil
	case "material":
		res, err := h.resource(arg)
		if err != nil {
			return nil, err
		}
		m, ok := res.(*scene.Material)
		if !ok {
			return nil, fmt.Errorf("component %q: %s is a %s", spec, arg, res.TypeName())
		}
		return scene.NewComponentMaterial(m), nil
	case "mesh":
		res, err := h.resource(arg)
		if err != nil {
			return nil, err
		}
		m, ok := res.(*scene.Mesh)
		if !ok {
			return nil, fmt.Errorf("component %q: %s is a %s", spec, arg, res.TypeName())
		}
		return scene.NewComponentMesh(m), nil
	default:
		return nil, fmt.Errorf("unknown component %q", spec)
	}
}

// renameNode args: node, name.
func renameNode(_ context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	e, err := h.elementArg(args, "node")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	e.Base().SetName(name)
	return map[string]any{"name": name}, nil
}

// setNodeActive args: node, active.
func setNodeActive(_ context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	e, err := h.elementArg(args, "node")
	if err != nil {
		return nil, err
	}
	active, ok := args["active"].(bool)
	if !ok {
		return nil, errors.New(`argument "active" must be a bool`)
	}
	e.Base().SetActive(active)
	return map[string]any{"active": active}, nil
}

// removeNode detaches a node from its parent. args: node.
func removeNode(_ context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	e, err := h.elementArg(args, "node")
	if err != nil {
		return nil, err
	}
	parent := e.Base().Parent()
	if parent == nil {
		return nil, fmt.Errorf("%s has no parent", e.Base().Name())
	}
	parent.Base().RemoveChild(e)
	return map[string]any{"parent": parent.Base().Name()}, nil
}

// registerGraph args: node, as, replace, instance.
func registerGraph(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	e, err := h.elementArg(args, "node")
	if err != nil {
		return nil, err
	}
	as, err := stringArg(args, "as")
	if err != nil {
		return nil, err
	}
	replace, _ := args["replace"].(bool)

	g, inst, err := h.project.Coordinator().RegisterAsGraph(ctx, e, replace)
	if err != nil {
		return nil, err
	}
	h.bind(as, g)
	if inst != nil {
		if handle := optString(args, "instance", ""); handle != "" {
			h.bind(handle, inst)
		}
	}
	return map[string]any{
		"id":       g.ResourceID(),
		"name":     g.Name(),
		"replaced": inst != nil,
	}, nil
}

// instantiateGraph args: graph, as, parent.
func instantiateGraph(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	g, err := h.graphArg(args)
	if err != nil {
		return nil, err
	}
	as, err := stringArg(args, "as")
	if err != nil {
		return nil, err
	}
	inst, err := h.project.Coordinator().CreateGraphInstance(ctx, g)
	if err != nil {
		return nil, err
	}
	if addr := optString(args, "parent", ""); addr != "" {
		parent, err := h.element(addr)
		if err != nil {
			return nil, err
		}
		if err := parent.Base().AddChild(inst); err != nil {
			return nil, err
		}
	}
	h.bind(as, inst)
	return map[string]any{"name": inst.Name(), "source": inst.SourceID()}, nil
}

// resyncGraph args: graph.
func resyncGraph(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	g, err := h.graphArg(args)
	if err != nil {
		return nil, err
	}
	failures := h.project.Coordinator().ResyncGraphInstances(ctx, g)
	return map[string]any{
		"failures": failureNames(failures),
		"pending":  len(h.project.Coordinator().Pending(g.ResourceID())),
	}, nil
}

// commitGraph args: graph.
func commitGraph(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	g, err := h.graphArg(args)
	if err != nil {
		return nil, err
	}
	failures := h.project.Coordinator().Commit(ctx, g)
	return map[string]any{
		"failures": failureNames(failures),
		"attached": len(h.project.Coordinator().Attached(g.ResourceID())),
	}, nil
}

func failureNames(failures []*graph.ResyncFailure) []any {
	names := make([]any, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.InstanceName)
	}
	return names
}

// releaseInstance args: instance.
func releaseInstance(_ context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	inst, err := h.instanceArg(args)
	if err != nil {
		return nil, err
	}
	inst.Release()
	return map[string]any{}, nil
}

// resetInstance args: instance.
func resetInstance(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	inst, err := h.instanceArg(args)
	if err != nil {
		return nil, err
	}
	if err := inst.Reset(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"children": len(inst.Children())}, nil
}

// findResource binds the first resource of a type and name, reconstructing
// it when it is still pending. args: type, name, as.
func findResource(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	typeName, err := stringArg(args, "type")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	as, err := stringArg(args, "as")
	if err != nil {
		return nil, err
	}

	reg := h.project.Registry()
	for _, id := range reg.IDs() {
		if !strings.HasPrefix(id, typeName+"|") || resourceName(reg, id) != name {
			continue
		}
		res, err := reg.GetResource(ctx, id)
		if err != nil {
			return nil, err
		}
		h.bind(as, res)
		return map[string]any{"id": id}, nil
	}
	return nil, fmt.Errorf("no %s named %q", typeName, name)
}

type registryView interface {
	Lookup(id string) (snapshot.Resource, bool)
	PendingRecord(id string) (record.Object, bool)
}

func resourceName(reg registryView, id string) string {
	if res, ok := reg.Lookup(id); ok {
		return res.Name()
	}
	rec, ok := reg.PendingRecord(id)
	if !ok {
		return ""
	}
	_, inner, ok := record.Unwrap(rec)
	if !ok {
		return ""
	}
	name, _ := inner["name"].(record.String)
	return string(name)
}

// deregisterResource args: resource.
func deregisterResource(_ context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	handle, err := stringArg(args, "resource")
	if err != nil {
		return nil, err
	}
	res, err := h.resource(handle)
	if err != nil {
		return nil, err
	}
	id := res.ResourceID()
	h.project.Registry().Deregister(res)
	return map[string]any{"id": id}, nil
}

// checkpointProject args: label.
func checkpointProject(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	cp, err := h.project.Checkpoint(ctx, optString(args, "label", ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"seq":       int(cp.Seq),
		"resources": cp.Resources,
		"changed":   cp.Changed,
	}, nil
}

// restoreProject replaces the registry with the last checkpoint. Resource
// handles bound before are left stale; rebind them with Resource.find.
func restoreProject(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
	ids, err := h.project.Restore(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"resources": len(ids)}, nil
}

func (h *Harness) elementArg(args map[string]any, key string) (scene.Element, error) {
	addr, err := stringArg(args, key)
	if err != nil {
		return nil, err
	}
	return h.element(addr)
}

func (h *Harness) graphArg(args map[string]any) (*graph.Graph, error) {
	handle, err := stringArg(args, "graph")
	if err != nil {
		return nil, err
	}
	res, err := h.resource(handle)
	if err != nil {
		return nil, err
	}
	g, ok := res.(*graph.Graph)
	if !ok {
		return nil, fmt.Errorf("%s is a %s, not a Graph", handle, res.TypeName())
	}
	return g, nil
}

func (h *Harness) instanceArg(args map[string]any) (*graph.Instance, error) {
	addr, err := stringArg(args, "instance")
	if err != nil {
		return nil, err
	}
	e, err := h.element(addr)
	if err != nil {
		return nil, err
	}
	inst, ok := e.(*graph.Instance)
	if !ok {
		return nil, fmt.Errorf("%s is not a GraphInstance", addr)
	}
	return inst, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return s, nil
}

func optString(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be a list", key)
	}
	out := make([]string, 0, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q[%d] must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}
