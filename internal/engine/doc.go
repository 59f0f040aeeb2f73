// Package engine implements the quorum-gated action execution engine.
//
// A fixed set of owners jointly authorizes actions (a target, an amount and
// an opaque payload). Once a threshold of owners has confirmed an action,
// the engine hands it to an external Executor. An action executes at most
// once, and never with fewer confirmations than the threshold at the moment
// the attempt inspected the ledger.
//
// ARCHITECTURE:
//
// Components, leaf-first:
//   - Registry: immutable owners + threshold (registry.go)
//   - actionStore: append-only actions with a single mutable executed flag
//   - ledger: per-action, per-owner confirmation flags
//   - thresholdMet: linear early-exit quorum scan (quorum.go)
//   - Engine: the coordinator driving the state machine (engine.go)
//   - Executor: the injected side-effecting collaborator
//
// Every state change is stamped by the logical Clock and emitted as an
// Event. A Bus decouples sinks (the SQLite log, the treasury) from the
// engine lock; Replay rebuilds state from a recorded log.
//
// CRITICAL PATTERNS:
//
// Mark-before-call:
// TryExecute sets executed = true before calling the Executor and clears it
// again if the call fails. The engine lock is released during the call, so
// a reentrant call for the same action sees executed == true and returns
// without a second external call. Failed actions stay retryable.
//
// All-or-nothing preconditions:
// Ownership, existence and toggle state are checked before any write; a
// rejected call leaves state untouched.
package engine
