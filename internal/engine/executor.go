package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Executor performs the side-effecting call behind an action.
//
// Execute is invoked synchronously once quorum is reached. It may have
// arbitrary side effects and may call back into the engine before it
// returns; such calls observe the action as executed and are absorbed as
// no-ops. Failures must be returned as errors. A panic is recovered and
// treated as a failure, but implementations should not rely on that.
//
// The engine imposes no timeout of its own. Callers that need one should
// pass a context with a deadline and have the executor honor it; a timeout
// is then reported like any other failure.
type Executor interface {
	Execute(ctx context.Context, target string, amount decimal.Decimal, payload []byte) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, target string, amount decimal.Decimal, payload []byte) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, target string, amount decimal.Decimal, payload []byte) error {
	return f(ctx, target, amount, payload)
}

// invoke calls the executor, converting a panic into an error so that the
// unmark step of an attempt always runs.
func invoke(ctx context.Context, exec Executor, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return exec.Execute(ctx, a.Target, a.Amount, a.Payload)
}
