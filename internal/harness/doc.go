// Package harness runs graph sync scenarios against a live project.
//
// A scenario builds a small scene, registers graphs, instantiates and
// edits them, and then checks the resulting trace and element trees.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: lamp_resync
//	description: "Edits to a graph reach its instances on resync"
//	mode: runtime
//	setup:
//	  - action: Node.create
//	    args: { as: root }
//	flow:
//	  - invoke: Graph.register
//	    args: { node: root/Lamp, as: lamp, replace: true, instance: lamp1 }
//	    expect:
//	      case: Success
//	      result: { name: Lamp }
//	assertions:
//	  - type: trace_contains
//	    action: Graph.resync
//	    args: { graph: lamp }
//	  - type: final_state
//	    target: lamp1
//	    expect: { children: [Bulb, Switch] }
//
// Elements are addressed by handle followed by child names, so
// "lamp1/Bulb" is the first child named Bulb below the element bound to
// the handle lamp1.
//
// # Assertion Types
//
//   - trace_contains: an invocation of action whose args include args
//   - trace_order: the first invocations of actions appear in order
//   - trace_count: action was invoked exactly count times
//   - event_count: the registry announced action exactly count times
//   - final_state: the summary of target includes expect; an empty target
//     summarizes the registry
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory store with a frozen clock and
// counting id suffixes, so resource ids and traces repeat across runs and
// can be compared with golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/lamp_resync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
