package engine

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// Status describes what an execution attempt did.
type Status string

const (
	// StatusBelowThreshold: quorum not reached, nothing happened.
	StatusBelowThreshold Status = "below_threshold"
	// StatusAlreadyExecuted: the exactly-once guard absorbed the attempt.
	StatusAlreadyExecuted Status = "already_executed"
	// StatusExecuted: the executor succeeded; the action is terminal.
	StatusExecuted Status = "executed"
	// StatusFailed: the executor failed; the action is retryable.
	StatusFailed Status = "failed"
)

// Outcome reports the result of the execution attempt that follows every
// submit, confirm and revoke.
//
// Err is non-nil only when Status is StatusFailed, and is always an
// *ExecutionError. It is not returned as the call's error because the
// confirmation or revocation that preceded the attempt was recorded.
type Outcome struct {
	ActionID ActionID `json:"action_id"`
	Status   Status   `json:"status"`
	Err      error    `json:"-"`
}

// Engine is the quorum-gated execution coordinator.
//
// It owns the Owner Registry (immutable), the Action Store and the
// Confirmation Ledger, and drives every action through its state machine:
//
//	Proposed --quorum + executor ok--> Executed (terminal)
//	Proposed --quorum + executor error--> Proposed (retryable)
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - one mutex serializes all reads and writes of engine state
//   - the mutex is NOT held while the Executor runs, so an executor that
//     calls back into the engine cannot deadlock
//
// INVARIANTS:
//   - an action executes at most once per successful attempt (exactly-once)
//   - the executed flag is set BEFORE the executor runs and cleared again on
//     failure; this ordering, not the mutex, is the reentrancy guard
//   - action IDs are gapless and strictly increasing from 0
//   - a rejected precondition leaves state unchanged
type Engine struct {
	mu       sync.Mutex
	registry *Registry
	actions  *actionStore
	ledger   *ledger
	executor Executor
	emitter  Emitter
	clock    *Clock
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmitter sets the event emitter. Default: events are discarded.
func WithEmitter(em Emitter) Option {
	return func(e *Engine) {
		e.emitter = em
	}
}

// WithClock sets the logical clock. Used to resume after Replay.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine for the given registry and executor.
//
// Panics if registry or executor is nil.
func New(registry *Registry, executor Executor, opts ...Option) *Engine {
	if registry == nil {
		panic("engine: nil registry")
	}
	if executor == nil {
		panic("engine: nil executor")
	}

	actions := newActionStore()
	e := &Engine{
		registry: registry,
		actions:  actions,
		ledger:   newLedger(registry, actions),
		executor: executor,
		emitter:  discardEmitter{},
		clock:    NewClock(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Submit proposes a new action on behalf of proposer, records the
// proposer's confirmation, and attempts execution.
//
// With a threshold of 1 the action executes before Submit returns.
//
// Fails with ErrCodeUnauthorized if proposer is not an owner and with
// ErrCodeInvalidAmount if amount is negative; nothing is recorded then.
func (e *Engine) Submit(
	ctx context.Context,
	target string,
	amount decimal.Decimal,
	payload []byte,
	proposer OwnerID,
) (ActionID, Outcome, error) {
	proposer = normalizeOwner(proposer)
	if !e.registry.IsOwner(proposer) {
		return -1, Outcome{}, newUnauthorized(-1, proposer)
	}
	if amount.IsNegative() {
		return -1, Outcome{}, newInvalidAmount("action amount")
	}

	e.mu.Lock()
	id := e.actions.submit(target, amount, payload)
	e.emit(Event{
		Kind:     EventSubmitted,
		ActionID: id,
		Owner:    proposer,
		Target:   target,
		Amount:   amount,
		Payload:  bytes.Clone(payload),
	})
	// Cannot fail: the proposer is an owner and the action is fresh.
	if err := e.ledger.confirm(id, proposer); err != nil {
		e.mu.Unlock()
		return id, Outcome{}, err
	}
	e.emit(Event{Kind: EventConfirmed, ActionID: id, Owner: proposer})
	e.mu.Unlock()

	e.logger.Info("action submitted",
		"action_id", id,
		"proposer", proposer,
		"target", target,
		"amount", amount.String(),
	)

	out, err := e.TryExecute(ctx, id)
	return id, out, err
}

// Confirm records owner's confirmation of id, then attempts execution.
//
// Fails with ErrCodeUnauthorized, ErrCodeUnknownAction or
// ErrCodeAlreadyConfirmed. Confirming an executed action is allowed and
// recorded; the attempt that follows is a no-op.
func (e *Engine) Confirm(ctx context.Context, id ActionID, owner OwnerID) (Outcome, error) {
	owner = normalizeOwner(owner)

	e.mu.Lock()
	if err := e.ledger.confirm(id, owner); err != nil {
		e.mu.Unlock()
		return Outcome{}, err
	}
	e.emit(Event{Kind: EventConfirmed, ActionID: id, Owner: owner})
	e.mu.Unlock()

	e.logger.Debug("confirmation recorded", "action_id", id, "owner", owner)

	return e.TryExecute(ctx, id)
}

// Revoke withdraws owner's confirmation of id, then attempts execution.
//
// A revocation can only lower the confirmation count, so the attempt that
// follows never executes anything today. It is kept so that every ledger
// mutation goes through the same evaluate-and-attempt path.
//
// Fails with ErrCodeUnauthorized, ErrCodeUnknownAction or
// ErrCodeNotConfirmed.
func (e *Engine) Revoke(ctx context.Context, id ActionID, owner OwnerID) (Outcome, error) {
	owner = normalizeOwner(owner)

	e.mu.Lock()
	if err := e.ledger.revoke(id, owner); err != nil {
		e.mu.Unlock()
		return Outcome{}, err
	}
	e.emit(Event{Kind: EventRevoked, ActionID: id, Owner: owner})
	e.mu.Unlock()

	e.logger.Debug("confirmation revoked", "action_id", id, "owner", owner)

	return e.TryExecute(ctx, id)
}

// TryExecute executes id if it has reached quorum and is not executed yet.
//
// Algorithm:
//  1. executed == true: no-op (exactly-once guard)
//  2. quorum not met: no-op
//  3. mark executed BEFORE calling out
//  4. call the Executor with the engine lock released
//  5. success: stay executed, emit Executed
//  6. failure: unmark, emit ExecutionFailed; the action is retryable
//
// A call made from inside the Executor for the same action sees the mark
// from step 3 and returns StatusAlreadyExecuted without a second call.
//
// The only error is ErrCodeUnknownAction; executor failures are reported
// in the Outcome.
func (e *Engine) TryExecute(ctx context.Context, id ActionID) (Outcome, error) {
	e.mu.Lock()
	act, err := e.actions.get(id)
	if err != nil {
		e.mu.Unlock()
		return Outcome{}, err
	}
	if act.Executed {
		e.mu.Unlock()
		e.logger.Debug("execution skipped: already executed", "action_id", id)
		return Outcome{ActionID: id, Status: StatusAlreadyExecuted}, nil
	}
	if !thresholdMet(id, e.ledger, e.registry) {
		e.mu.Unlock()
		e.logger.Debug("execution skipped: below threshold",
			"action_id", id,
			"threshold", e.registry.Threshold(),
		)
		return Outcome{ActionID: id, Status: StatusBelowThreshold}, nil
	}
	e.actions.markExecuted(id, true)
	e.mu.Unlock()

	execErr := invoke(ctx, e.executor, act)

	e.mu.Lock()
	defer e.mu.Unlock()

	if execErr != nil {
		e.actions.markExecuted(id, false)
		e.emit(Event{
			Kind:     EventExecutionFailed,
			ActionID: id,
			Target:   act.Target,
			Amount:   act.Amount,
			Reason:   execErr.Error(),
		})
		e.logger.Warn("execution failed",
			"action_id", id,
			"target", act.Target,
			"error", execErr,
		)
		return Outcome{
			ActionID: id,
			Status:   StatusFailed,
			Err:      &ExecutionError{ActionID: id, Err: execErr},
		}, nil
	}

	e.emit(Event{
		Kind:     EventExecuted,
		ActionID: id,
		Target:   act.Target,
		Amount:   act.Amount,
	})
	e.logger.Info("action executed", "action_id", id, "target", act.Target)
	return Outcome{ActionID: id, Status: StatusExecuted}, nil
}

// Deposit records resources received into custody. It is not gated by
// ownership or quorum and does not touch the state machine. A Deposited
// event is emitted only when amount is positive.
func (e *Engine) Deposit(sender string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return newInvalidAmount("deposit amount")
	}
	if amount.IsZero() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(Event{Kind: EventDeposited, ActionID: -1, Sender: sender, Amount: amount})
	return nil
}

// emit stamps ev and hands it to the emitter.
// CRITICAL: caller must hold e.mu so that Seq order matches state order.
func (e *Engine) emit(ev Event) {
	ev.Seq = e.clock.Next()
	e.emitter.Emit(ev)
}

// Registry returns the engine's owner registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Owners returns the owners in registration order.
func (e *Engine) Owners() []OwnerID {
	return e.registry.Owners()
}

// Threshold returns the number of confirmations required to execute.
func (e *Engine) Threshold() int {
	return e.registry.Threshold()
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Action returns a copy of the action with the given id.
func (e *Engine) Action(id ActionID) (Action, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actions.get(id)
}

// Actions returns copies of every action in ID order.
func (e *Engine) Actions() []Action {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Action, 0, e.actions.len())
	for _, a := range e.actions.actions {
		out = append(out, a.clone())
	}
	return out
}

// ActionCount returns the number of submitted actions.
func (e *Engine) ActionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actions.len()
}

// ConfirmationCount returns how many owners currently confirm id.
func (e *Engine) ConfirmationCount(id ActionID) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.actions.exists(id) {
		return 0, newUnknownAction(id)
	}
	return e.ledger.count(id), nil
}

// IsConfirmedBy reports whether owner currently confirms id.
// Non-owners never confirm anything.
func (e *Engine) IsConfirmedBy(id ActionID, owner OwnerID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.actions.exists(id) {
		return false, newUnknownAction(id)
	}
	return e.ledger.isConfirmedBy(id, normalizeOwner(owner)), nil
}

// Confirmers returns the owners currently confirming id, in registry order.
func (e *Engine) Confirmers(id ActionID) ([]OwnerID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.actions.exists(id) {
		return nil, newUnknownAction(id)
	}
	return e.ledger.confirmers(id), nil
}

// ThresholdMet reports whether id currently has quorum.
func (e *Engine) ThresholdMet(id ActionID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.actions.exists(id) {
		return false, newUnknownAction(id)
	}
	return thresholdMet(id, e.ledger, e.registry), nil
}
