package harness

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/treasury"
)

// AssertionContext is the final state assertions are evaluated against.
type AssertionContext struct {
	Engine   *engine.Engine
	Executor interface{ Calls() int }
	Treasury *treasury.Treasury // nil unless the scenario uses the treasury executor
	Events   []engine.Event
}

// AssertionError is returned when an assertion fails.
// It includes the event log to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Events   []engine.Event // Full event log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nEvents:\n")
		for _, ev := range e.Events {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Events: actx.Events}
	}

	switch a.Type {
	case AssertExecuted:
		id := engine.ActionID(*a.Action)
		act, err := actx.Engine.Action(id)
		if err != nil {
			return fail(fmt.Sprintf("action %d executed=%t", id, *a.Value), err.Error())
		}
		if act.Executed != *a.Value {
			return fail(fmt.Sprintf("action %d executed=%t", id, *a.Value), fmt.Sprintf("executed=%t", act.Executed))
		}

	case AssertConfirmations:
		id := engine.ActionID(*a.Action)
		n, err := actx.Engine.ConfirmationCount(id)
		if err != nil {
			return fail(fmt.Sprintf("%d confirmations of action %d", *a.Count, id), err.Error())
		}
		if n != *a.Count {
			return fail(fmt.Sprintf("%d confirmations of action %d", *a.Count, id), fmt.Sprintf("%d", n))
		}

	case AssertConfirmedBy:
		id := engine.ActionID(*a.Action)
		want := fmt.Sprintf("action %d confirmed by %s=%t", id, a.Owner, *a.Value)
		ok, err := actx.Engine.IsConfirmedBy(id, engine.OwnerID(a.Owner))
		if err != nil {
			return fail(want, err.Error())
		}
		if ok != *a.Value {
			return fail(want, fmt.Sprintf("%t", ok))
		}

	case AssertExecutorCalls:
		if n := actx.Executor.Calls(); n != *a.Count {
			return fail(fmt.Sprintf("%d executor calls", *a.Count), fmt.Sprintf("%d", n))
		}

	case AssertEventCount:
		n := 0
		for _, ev := range actx.Events {
			if a.Kind == "" || ev.Kind == engine.EventKind(a.Kind) {
				n++
			}
		}
		if n != *a.Count {
			what := "events"
			if a.Kind != "" {
				what = a.Kind + " events"
			}
			return fail(fmt.Sprintf("%d %s", *a.Count, what), fmt.Sprintf("%d", n))
		}

	case AssertActionCount:
		if n := actx.Engine.ActionCount(); n != *a.Count {
			return fail(fmt.Sprintf("%d actions", *a.Count), fmt.Sprintf("%d", n))
		}

	case AssertBalance:
		if actx.Treasury == nil {
			return fmt.Errorf("balance assertion without a treasury")
		}
		want, err := decimal.NewFromString(a.Amount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", a.Amount, err)
		}
		if got := actx.Treasury.Balance(); !got.Equal(want) {
			return fail("balance "+want.String(), got.String())
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
