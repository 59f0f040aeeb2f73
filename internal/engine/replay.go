package engine

// Replay rebuilds engine state from an event log.
//
// Events are applied in order without invoking the Executor and without
// emitting anything. Submitted, Confirmed, Revoked and Executed events
// mutate state; ExecutionFailed and Deposited carry no state of their own
// (a failed attempt always ends with executed == false).
//
// The clock is advanced past the last applied Seq so that new events
// continue the log.
//
// Returns ErrCodeReplayMismatch if the log could not have been produced by
// an engine with this registry: out-of-order Seq, gaps in action IDs,
// unknown owners, toggles that violate confirm/revoke strictness, or a
// second Executed for the same action. On error the engine is left
// partially rebuilt and must be discarded.
func (e *Engine) Replay(events []Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	last := e.clock.Current()
	for _, ev := range events {
		if ev.Seq <= last {
			return newReplayMismatch(ev.Seq, "sequence not increasing (previous %d)", last)
		}
		if err := e.apply(ev); err != nil {
			return err
		}
		last = ev.Seq
	}
	e.clock.advanceTo(last)

	e.logger.Debug("event log replayed",
		"events", len(events),
		"actions", e.actions.len(),
		"seq", last,
	)
	return nil
}

// apply mutates state for a single event.
// CRITICAL: caller must hold e.mu.
func (e *Engine) apply(ev Event) error {
	switch ev.Kind {
	case EventDeposited:
		return nil

	case EventSubmitted:
		if int(ev.ActionID) != e.actions.len() {
			return newReplayMismatch(ev.Seq, "submitted action %d, expected %d", ev.ActionID, e.actions.len())
		}
		if !e.registry.IsOwner(ev.Owner) {
			return newReplayMismatch(ev.Seq, "proposer %q is not an owner", ev.Owner)
		}
		if ev.Amount.IsNegative() {
			return newReplayMismatch(ev.Seq, "negative amount %s", ev.Amount)
		}
		e.actions.submit(ev.Target, ev.Amount, ev.Payload)
		return nil

	case EventConfirmed:
		if err := e.ledger.confirm(ev.ActionID, normalizeOwner(ev.Owner)); err != nil {
			return newReplayMismatch(ev.Seq, "confirm: %v", err)
		}
		return nil

	case EventRevoked:
		if err := e.ledger.revoke(ev.ActionID, normalizeOwner(ev.Owner)); err != nil {
			return newReplayMismatch(ev.Seq, "revoke: %v", err)
		}
		return nil

	case EventExecuted:
		act, err := e.actions.get(ev.ActionID)
		if err != nil {
			return newReplayMismatch(ev.Seq, "executed: %v", err)
		}
		if act.Executed {
			return newReplayMismatch(ev.Seq, "action %d executed twice", ev.ActionID)
		}
		e.actions.markExecuted(ev.ActionID, true)
		return nil

	case EventExecutionFailed:
		if !e.actions.exists(ev.ActionID) {
			return newReplayMismatch(ev.Seq, "execution failed for unknown action %d", ev.ActionID)
		}
		return nil
	}

	return newReplayMismatch(ev.Seq, "unknown event kind %q", ev.Kind)
}
