package registry

import (
	"sync"

	"github.com/roach88/graphsync/internal/snapshot"
)

// EventType names a registry announcement.
type EventType string

const (
	// EventResourceRegistered follows every explicit Register call that
	// changed the registry.
	EventResourceRegistered EventType = "resourceRegistered"

	// EventResourceDeregistered follows removal of a live or pending entry,
	// including the implicit removal when a resource moves to a new id.
	EventResourceDeregistered EventType = "resourceDeregistered"

	// EventResourcesLoaded follows installation of a whole layout.
	EventResourcesLoaded EventType = "resourcesLoaded"

	// EventGraphMutated announces an edit to a graph resource.
	EventGraphMutated EventType = "graphMutated"
)

// Event is delivered synchronously to subscribers.
type Event struct {
	Type EventType

	// ID is the affected resource id, if any.
	ID string

	// Resource is the affected live resource, if any.
	Resource snapshot.Resource

	// Source names where loaded resources came from.
	Source string

	// IDs lists every id installed by EventResourcesLoaded.
	IDs []string
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

type bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[EventType][]subscription
}

func (b *bus) on(t EventType, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[EventType][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[t]
		for i, s := range subs {
			if s.id == id {
				b.subs[t] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) dispatch(e Event) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.subs[e.Type]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// On subscribes fn to events of type t in subscription order. The returned
// function cancels the subscription.
func (r *Registry) On(t EventType, fn Handler) (cancel func()) {
	return r.events.on(t, fn)
}

// Dispatch delivers e to its subscribers. Handlers run on the caller's
// goroutine and must not block.
func (r *Registry) Dispatch(e Event) {
	r.events.dispatch(e)
}
