package registry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/snapshot"
	"github.com/roach88/graphsync/internal/testutil"
)

// part is a resource that may reference another part.
type part struct {
	id   string
	name string
	link *part
}

func (p *part) TypeName() string        { return "Part" }
func (p *part) ResourceID() string      { return p.id }
func (p *part) SetResourceID(id string) { p.id = id }
func (p *part) Name() string            { return p.name }
func (p *part) Attributes() snapshot.Attributes {
	attrs := snapshot.Attributes{"name": p.name}
	if p.link != nil {
		attrs["link"] = p.link
	}
	return attrs
}
func (p *part) SetAttributes(ctx context.Context, patch *snapshot.Patch) error {
	patch.String("name", &p.name)
	snapshot.ResourceAs(ctx, patch, "link", &p.link)
	return patch.Err()
}

var partNamespace = codec.Namespace{
	Name:  "Parts",
	Types: []codec.Constructor{func() snapshot.Serializable { return &part{} }},
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := codec.New([]codec.Namespace{partNamespace}, codec.WithLogger(logger))
	base := []Option{
		WithLogger(logger),
		WithClock(testutil.NewFrozenClock()),
		WithSuffixGenerator(testutil.NewSuffixSequence()),
	}
	return New(c, append(base, opts...)...), &buf
}

func partRecord(name string, link string) record.Object {
	inner := record.Object{"name": record.String(name)}
	if link != "" {
		inner["link"] = record.Ref(link)
	}
	return record.Typed("Part", inner)
}

func TestRegisterGeneratesFormattedID(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := &part{name: "bolt"}

	require.NoError(t, r.Register(p))

	assert.Equal(t, "Part|2026-01-01T00:00:00.000Z|00001", p.ResourceID())
	got, ok := r.Lookup(p.ResourceID())
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestRegisterIDsUniqueWithinSameInstant(t *testing.T) {
	r, _ := newTestRegistry(t)

	const n = 50
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		p := &part{name: "p"}
		require.NoError(t, r.Register(p))
		seen[p.ResourceID()] = true
	}
	assert.Len(t, seen, n, "frozen clock, still distinct ids")
}

func TestRegisterForcedCollisionReRolls(t *testing.T) {
	suffixes := testutil.NewSuffixSequence("00007", "00007", "00007")
	r, logs := newTestRegistry(t, WithSuffixGenerator(suffixes))

	a, b := &part{name: "a"}, &part{name: "b"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	assert.Equal(t, "Part|2026-01-01T00:00:00.000Z|00007", a.ResourceID())
	assert.Equal(t, "Part|2026-01-01T00:00:00.000Z|00001", b.ResourceID())
	assert.Equal(t, int64(2), r.Collisions(), "two scripted repeats were rejected")
	assert.Equal(t, 4, suffixes.Calls())
	assert.Contains(t, logs.String(), "id collision, re-rolling suffix")
}

func TestRegisterGivesUpAfterMaxAttempts(t *testing.T) {
	script := make([]string, maxIDAttempts+1)
	for i := range script {
		script[i] = "00000"
	}
	r, _ := newTestRegistry(t, WithSuffixGenerator(testutil.NewSuffixSequence(script...)))

	require.NoError(t, r.Register(&part{name: "first"}))
	err := r.Register(&part{name: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no free id")
}

func TestRegisterSameIDIsNoOp(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := &part{name: "bolt"}
	require.NoError(t, r.Register(p))
	id := p.ResourceID()

	events := 0
	r.On(EventResourceRegistered, func(Event) { events++ })

	require.NoError(t, r.Register(p))
	require.NoError(t, r.RegisterWithID(p, id))
	assert.Equal(t, id, p.ResourceID())
	assert.Equal(t, 0, events)
}

func TestRegisterWithNewIDMoves(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := &part{name: "bolt"}
	require.NoError(t, r.Register(p))
	old := p.ResourceID()

	var removed []string
	r.On(EventResourceDeregistered, func(e Event) { removed = append(removed, e.ID) })

	require.NoError(t, r.RegisterWithID(p, "custom-id"))

	_, stillThere := r.Lookup(old)
	assert.False(t, stillThere, "old entry is removed, not duplicated")
	got, ok := r.Lookup("custom-id")
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, []string{old}, removed)
	assert.Equal(t, []string{"custom-id"}, r.IDs())
}

func TestDeregister(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := &part{name: "bolt"}
	require.NoError(t, r.Register(p))

	r.Deregister(p)
	assert.False(t, r.Known(p.ResourceID()))
	assert.False(t, r.DeregisterID(p.ResourceID()), "second removal finds nothing")
}

func TestGetResourceReferenceStability(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Deserialize(map[string]record.Object{
		"Part|x|00001": partRecord("bolt", ""),
	})
	assert.True(t, r.IsPending("Part|x|00001"))

	ctx := context.Background()
	first, err := r.GetResource(ctx, "Part|x|00001")
	require.NoError(t, err)
	second, err := r.GetResource(ctx, "Part|x|00001")
	require.NoError(t, err)

	assert.Same(t, first, second, "one reconstruction, identical instance")
	assert.Equal(t, "Part|x|00001", first.ResourceID())
	assert.False(t, r.IsPending("Part|x|00001"))
}

func TestGetResourceConcurrentCallersShareInstance(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Deserialize(map[string]record.Object{
		"Part|x|00001": partRecord("bolt", ""),
	})

	var wg sync.WaitGroup
	results := make([]snapshot.Resource, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.GetResource(context.Background(), "Part|x|00001")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results[1:] {
		assert.Same(t, results[0], res)
	}
}

func TestGetResourceResolvesNestedPendingReference(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Deserialize(map[string]record.Object{
		"a": partRecord("a", "b"),
		"b": partRecord("b", ""),
	})
	ctx := context.Background()

	a, err := r.GetResource(ctx, "a")
	require.NoError(t, err)
	b, err := r.GetResource(ctx, "b")
	require.NoError(t, err)

	assert.Same(t, b, a.(*part).link, "nested reference memoized into the live table")
}

func TestGetResourceUnknownIDReturnsNil(t *testing.T) {
	r, logs := newTestRegistry(t)
	res, err := r.GetResource(context.Background(), "missing")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, logs.String(), "resource not resolved")
}

func TestDanglingReferenceIsGraceful(t *testing.T) {
	r, _ := newTestRegistry(t)
	b := &part{name: "b"}
	require.NoError(t, r.Register(b))
	a := &part{name: "a", link: b}
	require.NoError(t, r.Register(a))

	layout, err := r.Serialize()
	require.NoError(t, err)
	r.Deserialize(layout)

	require.True(t, r.DeregisterID(b.ResourceID()))

	restored, err := r.GetResource(context.Background(), a.ResourceID())
	require.NoError(t, err, "a itself still reconstructs")
	assert.Equal(t, "a", restored.Name())
	assert.Nil(t, restored.(*part).link, "dangling reference leaves the field unset")

	res, err := r.GetResource(context.Background(), b.ResourceID())
	assert.Nil(t, res)
	assert.True(t, IsNotFound(err))
}

func TestGetResourceReportsCycle(t *testing.T) {
	r, logs := newTestRegistry(t)
	r.Deserialize(map[string]record.Object{
		"a": partRecord("a", "b"),
		"b": partRecord("b", "a"),
	})

	a, err := r.GetResource(context.Background(), "a")
	require.NoError(t, err)
	b := a.(*part).link
	require.NotNil(t, b, "a -> b resolves")
	assert.Nil(t, b.link, "b -> a closes the cycle and is left unset")

	assert.Contains(t, logs.String(), "resource reference cycle")
	assert.Contains(t, logs.String(), "a -> b -> a")
}

// gatedPart holds every reconstruction at a barrier until all of them have
// started, so two goroutines each own one end of a reference cycle.
type gatedPart struct {
	part
	barrier *sync.WaitGroup
}

func (g *gatedPart) TypeName() string { return "GatedPart" }
func (g *gatedPart) SetAttributes(ctx context.Context, patch *snapshot.Patch) error {
	g.barrier.Done()
	g.barrier.Wait()
	patch.String("name", &g.name)
	if res, ok := patch.Resource(ctx, "link"); ok && res != nil {
		g.link = &res.(*gatedPart).part
	}
	return patch.Err()
}

func TestGetResourceCycleAcrossGoroutines(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	c := codec.New([]codec.Namespace{{
		Name:  "Gated",
		Types: []codec.Constructor{func() snapshot.Serializable { return &gatedPart{barrier: &barrier} }},
	}}, codec.WithLogger(logger))
	r := New(c, WithLogger(logger))
	r.Deserialize(map[string]record.Object{
		"a": record.Typed("GatedPart", record.Object{"name": record.String("a"), "link": record.Ref("b")}),
		"b": record.Typed("GatedPart", record.Object{"name": record.String("b"), "link": record.Ref("a")}),
	})

	got := make(map[string]*gatedPart)
	var mu sync.Mutex
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.GetResource(context.Background(), id)
			assert.NoError(t, err)
			mu.Lock()
			got[id], _ = res.(*gatedPart)
			mu.Unlock()
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("resolving a cycle from two goroutines did not finish")
	}

	require.NotNil(t, got["a"])
	require.NotNil(t, got["b"])
	assert.True(t, (got["a"].link == nil) != (got["b"].link == nil), "exactly one side of the cycle is left unset")
	assert.Contains(t, logs.String(), "resource reference cycle")
}

func TestPushResolveStackCycleError(t *testing.T) {
	ctx, err := pushResolveStack(context.Background(), "a")
	require.NoError(t, err)
	ctx, err = pushResolveStack(ctx, "b")
	require.NoError(t, err)

	_, err = pushResolveStack(ctx, "a")
	require.Error(t, err)
	assert.True(t, IsCycle(err))

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a", "b", "a"}, ce.Path)
}

func TestSerializeKeepsUntouchedPendingRecords(t *testing.T) {
	r, _ := newTestRegistry(t)
	layout := map[string]record.Object{
		"a": partRecord("a", ""),
		"b": partRecord("b", "a"),
	}
	r.Deserialize(layout)

	a, err := r.GetResource(context.Background(), "a")
	require.NoError(t, err)
	a.(*part).name = "renamed"

	out, err := r.Serialize()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, record.Equal(layout["b"], out["b"]), "untouched record written back verbatim")
	assert.Equal(t, record.String("renamed"), out["a"]["Part"].(record.Object)["name"])
	assert.Equal(t, record.String("a"), out["a"]["Part"].(record.Object)[record.RefKey])
}

func TestDeserializeReplacesWholesale(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(&part{name: "old"}))

	r.Deserialize(map[string]record.Object{"n": partRecord("new", "")})
	assert.Equal(t, []string{"n"}, r.IDs())
	assert.Empty(t, r.Resources(), "nothing reconstructed eagerly")
}

func TestDeserializeSkipsMalformedEntries(t *testing.T) {
	r, logs := newTestRegistry(t, WithMode(ModeEditor))
	r.Deserialize(map[string]record.Object{
		"a":   partRecord("a", ""),
		"bad": {"a": record.Int(1), "b": record.Int(2)},
		"b":   partRecord("b", "a"),
	})

	assert.Equal(t, []string{"a", "b"}, r.IDs())
	assert.Contains(t, logs.String(), "layout entry skipped")

	b, err := r.GetResource(context.Background(), "b")
	require.NoError(t, err)
	require.NotNil(t, b.(*part).link)
	assert.Equal(t, "a", b.(*part).link.name)
}

func TestReconstructContainsFailures(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Deserialize(map[string]record.Object{
		"a":       partRecord("a", ""),
		"unknown": record.Typed("Spaceship", record.Object{}),
	})

	live := r.Reconstruct(context.Background())
	assert.Len(t, live, 1)
	assert.Contains(t, live, "a")
	assert.True(t, r.IsPending("unknown"), "failed record stays pending")
}

func TestResourcesByTypeAndName(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, name := range []string{"bolt", "nut", "bolt"} {
		require.NoError(t, r.Register(&part{name: name}))
	}

	assert.Len(t, r.ResourcesByType("Part"), 3)
	assert.Empty(t, r.ResourcesByType("Other"))

	bolts := r.ResourcesByName("bolt")
	require.Len(t, bolts, 2)
	assert.True(t, strings.Compare(bolts[0].ResourceID(), bolts[1].ResourceID()) < 0, "sorted by id")
}

func TestNamespacesAndClear(t *testing.T) {
	r, _ := newTestRegistry(t)
	extra := codec.Namespace{
		Name: "Extra",
		Types: []codec.Constructor{func() snapshot.Serializable {
			return &renamedPart{}
		}},
	}

	require.NoError(t, r.RegisterNamespace(extra))
	require.NoError(t, r.RegisterNamespace(extra), "idempotent per name")
	assert.True(t, r.Codec().Has("RenamedPart"))

	err := r.RegisterNamespace(partNamespace)
	assert.Error(t, err, "core namespaces cannot be re-registered as user namespaces")

	require.NoError(t, r.Register(&part{name: "bolt"}))
	r.Clear()
	assert.Empty(t, r.IDs())
	assert.False(t, r.Codec().Has("RenamedPart"))
	assert.True(t, r.Codec().Has("Part"), "core namespace survives Clear")
}

type renamedPart struct{ part }

func (*renamedPart) TypeName() string { return "RenamedPart" }

func TestEventsCancel(t *testing.T) {
	r, _ := newTestRegistry(t)
	var got []string
	cancel := r.On(EventResourceRegistered, func(e Event) { got = append(got, e.Resource.Name()) })

	require.NoError(t, r.Register(&part{name: "one"}))
	cancel()
	require.NoError(t, r.Register(&part{name: "two"}))

	assert.Equal(t, []string{"one"}, got)
}

func TestEditorModeTracksModifications(t *testing.T) {
	r, _ := newTestRegistry(t, WithMode(ModeEditor))
	p := &part{name: "bolt"}
	require.NoError(t, r.Register(p))
	assert.Empty(t, r.Modified())

	p.name = "screw"
	assert.Equal(t, []string{p.ResourceID()}, r.Modified())

	r.MarkSaved()
	assert.Empty(t, r.Modified())
}

func TestEditorModeRestoredRecordsStartClean(t *testing.T) {
	r, _ := newTestRegistry(t, WithMode(ModeEditor))
	saved := record.Typed("Part", record.Object{
		"name":        record.String("a"),
		record.RefKey: record.String("a"),
	})
	r.Deserialize(map[string]record.Object{"a": saved})

	res, err := r.GetResource(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, r.Modified())

	res.(*part).name = "b"
	assert.Equal(t, []string{"a"}, r.Modified())
}

func TestRuntimeModeSkipsBookkeeping(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := &part{name: "bolt"}
	require.NoError(t, r.Register(p))
	p.name = "changed"
	assert.Empty(t, r.Modified())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("editor")
	require.NoError(t, err)
	assert.Equal(t, ModeEditor, m)

	_, err = ParseMode("debug")
	assert.Error(t, err)
}
