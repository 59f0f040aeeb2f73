package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrScriptedFailure is returned by ScriptedExecutor for scripted failures.
var ErrScriptedFailure = errors.New("scripted executor failure")

// Call records one invocation of ScriptedExecutor.
type Call struct {
	Target  string
	Amount  decimal.Decimal
	Payload []byte
}

// ScriptedExecutor is an engine.Executor with a predetermined sequence of
// outcomes.
//
// The i-th call returns Outcomes[i]; once the script is exhausted every call
// succeeds. OnExecute, if set, runs inside each call before the outcome is
// returned. Tests use it to call back into the engine and exercise
// reentrancy.
//
// Thread-safety: safe for concurrent use. OnExecute runs without the
// executor's lock held, so it may call back into the executor too.
type ScriptedExecutor struct {
	mu       sync.Mutex
	outcomes []error
	calls    []Call

	OnExecute func(ctx context.Context, call Call)
}

// NewScriptedExecutor creates an executor returning outcomes in order.
// A nil entry means success.
func NewScriptedExecutor(outcomes ...error) *ScriptedExecutor {
	return &ScriptedExecutor{outcomes: outcomes}
}

// FailNext appends n scripted failures to the script.
func (x *ScriptedExecutor) FailNext(n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for i := 0; i < n; i++ {
		x.outcomes = append(x.outcomes, ErrScriptedFailure)
	}
}

// Execute implements engine.Executor.
func (x *ScriptedExecutor) Execute(ctx context.Context, target string, amount decimal.Decimal, payload []byte) error {
	call := Call{Target: target, Amount: amount, Payload: append([]byte(nil), payload...)}

	x.mu.Lock()
	x.calls = append(x.calls, call)
	var outcome error
	if len(x.outcomes) > 0 {
		outcome = x.outcomes[0]
		x.outcomes = x.outcomes[1:]
	}
	hook := x.OnExecute
	x.mu.Unlock()

	if hook != nil {
		hook(ctx, call)
	}
	return outcome
}

// Calls returns a copy of the recorded calls.
func (x *ScriptedExecutor) Calls() []Call {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]Call, len(x.calls))
	copy(out, x.calls)
	return out
}

// CallCount returns the number of calls made so far.
func (x *ScriptedExecutor) CallCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.calls)
}
