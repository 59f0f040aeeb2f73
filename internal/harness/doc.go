// Package harness provides conformance testing for the quorum engine.
//
// A scenario configures an owner registry and an executor, drives a real
// engine through a list of steps, and validates the final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	owners: [o1, o2, o3]
//	threshold: 2
//	executor:
//	  kind: script          # or treasury
//	  outcomes: [fail, ok]  # per attempt; later attempts succeed
//	  reenter: 0            # re-enter TryExecute(0) from the first call
//	steps:
//	  - op: submit
//	    owner: o1
//	    target: T
//	    amount: "5"
//	    expect: { action: 0, status: below_threshold }
//	  - op: confirm
//	    action: 0
//	    owner: o2
//	    expect: { status: executed }
//	  - op: revoke
//	    action: 0
//	    owner: o3
//	    expect: { error: NOT_CONFIRMED }
//	assertions:
//	  - type: executed
//	    action: 0
//	    value: true
//	  - type: executor_calls
//	    count: 1
//
// Operations are submit, confirm, revoke, execute and deposit. A step with
// no expect clause must succeed without a precondition error.
//
// # Assertion Types
//
//   - executed: action's executed flag equals value
//   - confirmations: action's confirmation count equals count
//   - confirmed_by: owner's confirmation flag on action equals value
//   - executor_calls: the executor was called exactly count times
//   - event_count: count events were emitted, optionally of one kind
//   - action_count: count actions were submitted
//   - balance: treasury balance equals amount (treasury executor only)
//
// # Replay Check
//
// Every run persists its events to an in-memory SQLite event log. After
// the assertions, the log is replayed into a fresh engine, and any
// difference from the live engine is reported as a failure.
//
// # Deterministic Testing
//
// Engine sequence numbers start at 1 and the scripted executor is
// deterministic, so traces are identical across runs and can be compared
// with golden files (see RunWithGolden).
package harness
