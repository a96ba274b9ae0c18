// Package registry implements the resource table of a project.
//
// The registry is the only owner of resources. A resource field elsewhere
// stores the resource id in its record and resolves it through GetResource,
// which turns a pending record into a live object on first access and
// returns that same object from then on.
//
// Generated ids have the form <type-name>|<timestamp>|<suffix>. The suffix
// is re-rolled until the id is free among live and pending entries.
//
// A Registry is an explicit value; nothing here is process-global, so tests
// and tools may run several isolated projects side by side.
package registry
