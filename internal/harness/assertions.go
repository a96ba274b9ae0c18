package harness

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/graphsync/internal/graph"
	"github.com/roach88/graphsync/internal/scene"
	"github.com/roach88/graphsync/internal/snapshot"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == EventInvocation {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.Action, event.Args)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an invocation matching
// the specified action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EventInvocation && event.Action == assertion.Action {
			if matchArgs(event.Args, assertion.Args) {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)

	for i, event := range trace {
		if event.Type != EventInvocation {
			continue
		}
		for _, expectedAction := range assertion.Actions {
			if event.Action == expectedAction && positions[expectedAction] == 0 {
				positions[expectedAction] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertCount checks that events of kind named action occur exactly
// assertion.Count times.
func assertCount(trace []TraceEvent, kind string, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == kind && event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks that the summary of the assertion target
// contains the expected values.
func assertFinalState(h *Harness, assertion Assertion) error {
	summary, err := h.summarize(assertion.Target)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s to exist", targetLabel(assertion.Target)),
			Actual:   err.Error(),
		}
	}

	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		want := assertion.Expect[key]
		got, ok := summary[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", targetLabel(assertion.Target), key, want),
				Actual:   fmt.Sprintf("no field %q in %v", key, summary),
			}
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", targetLabel(assertion.Target), key, want),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

func targetLabel(target string) string {
	if target == "" {
		return "registry"
	}
	return target
}

// summarize describes the target as plain values: an element address,
// a resource handle, or the registry when target is empty.
func (h *Harness) summarize(target string) (map[string]any, error) {
	if target == "" {
		reg := h.project.Registry()
		ids := reg.IDs()
		live := len(reg.Resources())
		return map[string]any{
			"resources": len(ids),
			"live":      live,
			"pending":   len(ids) - live,
			"modified":  len(reg.Modified()),
		}, nil
	}

	if e, err := h.element(target); err == nil {
		return summarizeElement(e), nil
	}
	res, err := h.resource(target)
	if err != nil {
		return nil, fmt.Errorf("unknown target %q", target)
	}
	return summarizeResource(res), nil
}

func summarizeElement(e scene.Element) map[string]any {
	n := e.Base()
	children := make([]any, 0, n.ChildCount())
	for _, c := range n.Children() {
		children = append(children, c.Base().Name())
	}
	components := make([]any, 0)
	for _, c := range n.Components() {
		components = append(components, c.TypeName())
	}

	s := map[string]any{
		"type":       e.TypeName(),
		"name":       n.Name(),
		"active":     n.Active(),
		"children":   children,
		"components": components,
		"attached":   n.Parent() != nil,
	}
	switch v := e.(type) {
	case *graph.Instance:
		s["source"] = v.SourceID()
		s["released"] = v.Released()
	case *graph.Graph:
		s["id"] = v.ResourceID()
	}
	return s
}

func summarizeResource(res snapshot.Resource) map[string]any {
	return map[string]any{
		"type": res.TypeName(),
		"id":   res.ResourceID(),
		"name": res.Name(),
	}
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	if actual == nil {
		return false
	}

	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values for equality.
// Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

// EvaluateAssertions evaluates all assertions against the harness state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(h *Harness, assertions []Assertion) []string {
	var errors []string
	trace := h.result.Trace

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(trace, assertion)
		case AssertTraceCount:
			err = assertCount(trace, EventInvocation, assertion)
		case AssertEventCount:
			err = assertCount(trace, EventRegistry, assertion)
		case AssertFinalState:
			err = assertFinalState(h, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
