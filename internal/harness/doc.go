// Package harness runs progression scenarios against the real engine.
//
// A scenario seeds a fresh in-memory database from a catalog, replays a
// flow of workouts, manual operations, clock advances and detector sweeps,
// and checks the resulting trace and final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog: ../catalogs/tempo    # optional, defaults to the built-in catalog
//	flow:
//	  - workout:
//	      id: w-1
//	      context:
//	        fatigue_band: fresh
//	        dimensions:
//	          long_run: {is_criteria_met: true}
//	    expect:
//	      - {dimension: long_run, kind: progressed, value: "35"}
//	  - progress: long_run
//	  - advance_days: 21
//	  - sweep: {}
//	assertions:
//	  - type: dimension_state
//	    dimension: long_run
//	    expect: {current: "30", status: regressing}
//	  - type: history_count
//	    dimension: long_run
//	    change_type: regress
//	    count: 1
//
// Each flow step names exactly one operation. Every outcome it produces is
// appended to the trace.
//
// # Assertion Types
//
//   - dimension_state: compares current, ceiling and status of one dimension
//   - history_count: counts history entries, optionally by dimension and type
//   - trace_contains: an outcome for a dimension with a kind (and value)
//   - trace_order: "dimension:kind" events appear in order
//   - trace_count: how many outcomes of a kind a dimension produced
//
// # Deterministic Testing
//
// Scenarios run on a fake clock that starts at the scenario's start time
// and only moves on advance_days, with sequential history and sweep IDs.
// Traces carry day offsets rather than timestamps, so they can be compared
// against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/stale_ceiling.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
