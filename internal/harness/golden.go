package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a trace as stable text for golden comparison:
//
//	scenario: name
//	step 1: submit owner=o1 target=T amount=5 -> action=0 below_threshold
//	  1 Submitted action=0 owner=o1 target=T amount=5 payload=
//	  2 Confirmed action=0 owner=o1
//
// Attempts made from inside the executor follow the step's events as
// "  reenter action=N -> status" lines.
func FormatTrace(scenarioName string, trace []TraceEvent) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)
	for _, t := range trace {
		fmt.Fprintf(&buf, "step %d: %s %s -> %s\n", t.Step, t.Op, t.Args, t.Result)
		for _, ev := range t.Events {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
		for _, out := range t.Reentries {
			fmt.Fprintf(&buf, "  reenter action=%d -> %s\n", out.ActionID, out.Status)
		}
	}
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result.Trace))
}
