package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/graphsync/internal/project"
	"github.com/roach88/graphsync/internal/registry"
	"github.com/roach88/graphsync/internal/scene"
	"github.com/roach88/graphsync/internal/snapshot"
	"github.com/roach88/graphsync/internal/store"
	"github.com/roach88/graphsync/internal/testutil"
)

// Harness is the scenario execution engine. It owns one project and the
// handles a scenario binds to elements and resources.
type Harness struct {
	project   *project.Project
	elements  map[string]scene.Element
	resources map[string]snapshot.Resource
	result    *Result
	seq       int64
	logger    *slog.Logger
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger routes project logs to logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create a project on a fresh in-memory store
// 2. Subscribe to registry events
// 3. Execute setup steps, which must succeed
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions
//
// A returned error means the scenario could not run at all; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := &runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	mode := registry.ModeRuntime
	if scenario.Mode != "" {
		m, err := registry.ParseMode(scenario.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	p, err := project.New(
		project.WithLogger(o.logger),
		project.WithStore(st),
		project.WithRegistryOptions(
			registry.WithMode(mode),
			registry.WithClock(testutil.NewFrozenClock()),
			registry.WithSuffixGenerator(testutil.NewSuffixSequence()),
		),
	)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	defer p.Close()

	h := &Harness{
		project:   p,
		elements:  make(map[string]scene.Element),
		resources: make(map[string]snapshot.Resource),
		result:    NewResult(),
		logger:    o.logger,
	}
	defer h.subscribe()()

	ctx := context.Background()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	h.executeFlow(ctx, scenario.Flow)

	for _, msg := range EvaluateAssertions(h, scenario.Assertions) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// subscribe traces every registry event and returns the cancel function.
func (h *Harness) subscribe() func() {
	types := []registry.EventType{
		registry.EventResourceRegistered,
		registry.EventResourceDeregistered,
		registry.EventResourcesLoaded,
		registry.EventGraphMutated,
	}
	cancels := make([]func(), 0, len(types))
	for _, t := range types {
		cancels = append(cancels, h.project.Registry().On(t, func(e registry.Event) {
			args := map[string]any{}
			if e.ID != "" {
				args["id"] = e.ID
			}
			if e.Source != "" {
				args["source"] = e.Source
			}
			if e.Type == registry.EventResourcesLoaded {
				args["resources"] = len(e.IDs)
			}
			h.result.AddRegistryTrace(string(e.Type), args, h.next())
		}))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// executeSetup runs all setup steps. The first failure aborts the run.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep) error {
	for i, step := range setup {
		if _, err := h.invoke(ctx, step.Action, step.Args); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses. A failing
// step does not stop the flow.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) {
	for i, step := range flow {
		res, err := h.invoke(ctx, step.Invoke, step.Args)

		outputCase := CaseSuccess
		if err != nil {
			outputCase = CaseError
		}

		switch {
		case step.Expect == nil && err != nil:
			h.result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Invoke, err))
		case step.Expect == nil:
		case step.Expect.Case != outputCase:
			detail := ""
			if err != nil {
				detail = ": " + err.Error()
			}
			h.result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s%s",
				i, step.Invoke, step.Expect.Case, outputCase, detail))
		case !matchArgs(res, step.Expect.Result):
			h.result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v",
				i, step.Invoke, step.Expect.Result, res))
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"output_case", outputCase,
		)
	}
}

// invoke traces and runs one action. Errors become an Error completion
// whose result carries the message.
func (h *Harness) invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	h.result.AddInvocationTrace(name, args, h.next())

	fn, ok := actions[name]
	if !ok {
		err := fmt.Errorf("unknown action %q", name)
		h.result.AddCompletionTrace(CaseError, map[string]any{"error": err.Error()}, h.next())
		return nil, err
	}

	res, err := fn(ctx, h, args)
	if err != nil {
		res = map[string]any{"error": err.Error()}
		h.result.AddCompletionTrace(CaseError, res, h.next())
		return res, err
	}
	if res == nil {
		res = map[string]any{}
	}
	h.result.AddCompletionTrace(CaseSuccess, res, h.next())
	return res, nil
}

// element resolves an address: a handle followed by slash separated child
// names.
func (h *Harness) element(addr string) (scene.Element, error) {
	parts := strings.Split(addr, "/")
	e, ok := h.elements[parts[0]]
	if !ok {
		return nil, fmt.Errorf("unknown element handle %q", parts[0])
	}
	for _, name := range parts[1:] {
		matches := e.Base().ChildrenByName(name)
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no child named %q", addr, name)
		}
		e = matches[0]
	}
	return e, nil
}

func (h *Harness) resource(handle string) (snapshot.Resource, error) {
	res, ok := h.resources[handle]
	if !ok {
		return nil, fmt.Errorf("unknown resource handle %q", handle)
	}
	return res, nil
}

// bind stores a handle. Handles may be rebound.
func (h *Harness) bind(handle string, v any) {
	if e, ok := v.(scene.Element); ok {
		h.elements[handle] = e
	}
	if res, ok := v.(snapshot.Resource); ok {
		h.resources[handle] = res
	}
}
