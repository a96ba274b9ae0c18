package registry

import (
	"context"
	"sync"
)

// resolution identifies one top-level GetResource call and every nested
// lookup it makes, whichever goroutine runs them.
type resolution struct {
	root string
}

type resolutionKey struct{}

// resolutionFrom returns the resolution carried by ctx, starting a new one
// rooted at id when there is none.
func resolutionFrom(ctx context.Context, id string) (context.Context, *resolution) {
	if res, ok := ctx.Value(resolutionKey{}).(*resolution); ok {
		return ctx, res
	}
	res := &resolution{root: id}
	return context.WithValue(ctx, resolutionKey{}, res), res
}

// waitGraph records which resolution is reconstructing which id and which
// id each resolution is blocked on. The resolve stack in the context only
// sees one goroutine; two resolutions entering a reference cycle from
// opposite ends would each wait on the other's singleflight call. The
// wait graph turns that into a CycleError for whichever closes the loop.
type waitGraph struct {
	mu      sync.Mutex
	holder  map[string]*resolution
	waiting map[*resolution]string
}

func newWaitGraph() *waitGraph {
	return &waitGraph{
		holder:  make(map[string]*resolution),
		waiting: make(map[*resolution]string),
	}
}

// wait registers that res is about to block on id. It fails when the
// chain of holders starting at id leads back to res.
func (w *waitGraph) wait(res *resolution, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := []string{id}
	seen := make(map[*resolution]bool)
	for h := w.holder[id]; h != nil && !seen[h]; {
		if h == res {
			return &CycleError{Path: append(path, id)}
		}
		seen[h] = true
		next, ok := w.waiting[h]
		if !ok {
			break
		}
		path = append(path, next)
		h = w.holder[next]
	}
	w.waiting[res] = id
	return nil
}

// done clears the wait registered for res.
func (w *waitGraph) done(res *resolution) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.waiting, res)
}

// hold marks res as the one reconstructing id. A resolution that holds is
// running, not waiting.
func (w *waitGraph) hold(res *resolution, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.holder[id] = res
	delete(w.waiting, res)
}

func (w *waitGraph) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.holder, id)
}
