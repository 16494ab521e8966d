// Package harness runs detector conformance scenarios.
//
// A scenario pairs an operation record with a strategy configuration and a
// list of assertions about the meta groups the detector must produce. The
// harness runs the detector, evaluates the assertions and can compare a
// canonical snapshot of the result against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config: strategies.yaml        # optional, relative to the scenario
//	strategies:                    # optional inline alternative to config
//	  - kind: source_burst
//	    params: {relay_file: signal.py, relay_line: 42}
//	persist: true                  # round-trip through an in-memory store
//	operation:
//	  name: sync_motors
//	  status: OK
//	  sub_operations:
//	    - {seq: 1, name: get, start_time: 0.001, status: OK, origin: {file: signal.py, line: 42}}
//	assertions:
//	  - type: group_count
//	    count: 1
//	  - type: group_members
//	    members: [1, 2, 3]
//	  - type: ungrouped
//	    members: [4]
//	  - type: description_contains
//	    seq: 1
//	    text: "from signal.py:42"
//
// When neither config nor strategies is given the built-in defaults are
// used.
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON snapshot of a run against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
