package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/graphsync/internal/record"
)

// FormatTrace renders a trace as text, one event per line, with arguments
// and results in canonical JSON:
//
//	scenario lamp_resync
//	0001 invoke Node.create {"as":"root"}
//	0002 Success {"name":"root"}
//	0003 event resourceRegistered {"id":"Graph|2026-01-01T00:00:00.000Z|00001"}
func FormatTrace(scenarioName string, trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario %s\n", scenarioName)

	for _, event := range trace {
		var (
			head string
			body map[string]any
		)
		switch event.Type {
		case EventInvocation:
			head, body = "invoke "+event.Action, event.Args
		case EventCompletion:
			head, body = event.OutputCase, event.Result
		case EventRegistry:
			head, body = "event "+event.Action, event.Args
		default:
			return nil, fmt.Errorf("trace event %d: unknown type %q", event.Seq, event.Type)
		}

		v, err := record.FromGo(map[string]any(body))
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", event.Seq, err)
		}
		text, err := record.Stringify(v)
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", event.Seq, err)
		}
		fmt.Fprintf(&buf, "%04d %s %s\n", event.Seq, head, text)
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	text, err := FormatTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, text)

	return nil
}
