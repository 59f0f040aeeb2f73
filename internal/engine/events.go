package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// EventKind names an observability event.
type EventKind string

const (
	// EventDeposited records resources received into custody (amount > 0).
	EventDeposited EventKind = "Deposited"
	// EventSubmitted records a new action.
	EventSubmitted EventKind = "Submitted"
	// EventConfirmed records an owner's confirmation.
	EventConfirmed EventKind = "Confirmed"
	// EventRevoked records an owner's revocation.
	EventRevoked EventKind = "Revoked"
	// EventExecuted records a successful execution attempt.
	EventExecuted EventKind = "Executed"
	// EventExecutionFailed records a failed execution attempt.
	EventExecutionFailed EventKind = "ExecutionFailed"
)

// Event is an observability record emitted by the engine.
//
// Events are stamped with a strictly increasing Seq from the engine Clock.
// Which fields are populated depends on Kind:
//
//	Deposited        Sender, Amount
//	Submitted        ActionID, Owner (proposer), Target, Amount, Payload
//	Confirmed        ActionID, Owner
//	Revoked          ActionID, Owner
//	Executed         ActionID, Target, Amount
//	ExecutionFailed  ActionID, Target, Amount, Reason
//
// Submitted events carry the full action so that an event log is enough to
// rebuild engine state (see Replay).
type Event struct {
	Seq      int64           `json:"seq"`
	Kind     EventKind       `json:"kind"`
	ActionID ActionID        `json:"action_id"`
	Owner    OwnerID         `json:"owner,omitempty"`
	Sender   string          `json:"sender,omitempty"`
	Target   string          `json:"target,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Payload  []byte          `json:"payload,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// String renders the event on one line, e.g. "3 Confirmed action=0 owner=bob".
func (ev Event) String() string {
	switch ev.Kind {
	case EventDeposited:
		return fmt.Sprintf("%d %s sender=%s amount=%s", ev.Seq, ev.Kind, ev.Sender, ev.Amount)
	case EventSubmitted:
		return fmt.Sprintf("%d %s action=%d owner=%s target=%s amount=%s payload=%x",
			ev.Seq, ev.Kind, ev.ActionID, ev.Owner, ev.Target, ev.Amount, ev.Payload)
	case EventConfirmed, EventRevoked:
		return fmt.Sprintf("%d %s action=%d owner=%s", ev.Seq, ev.Kind, ev.ActionID, ev.Owner)
	case EventExecuted:
		return fmt.Sprintf("%d %s action=%d target=%s amount=%s", ev.Seq, ev.Kind, ev.ActionID, ev.Target, ev.Amount)
	case EventExecutionFailed:
		return fmt.Sprintf("%d %s action=%d target=%s amount=%s reason=%q",
			ev.Seq, ev.Kind, ev.ActionID, ev.Target, ev.Amount, ev.Reason)
	}
	return fmt.Sprintf("%d %s", ev.Seq, ev.Kind)
}

// Emitter receives events as the engine produces them.
//
// Emit is called with the engine lock held, in Seq order. Implementations
// MUST NOT block and MUST NOT call back into the engine; use Bus to decouple
// slow or reentrant consumers.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ev Event)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// discardEmitter drops every event.
type discardEmitter struct{}

func (discardEmitter) Emit(Event) {}

// Sink consumes events delivered by a Bus.
type Sink interface {
	Handle(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Handle calls f(ctx, ev).
func (f SinkFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }
