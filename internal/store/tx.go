package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/quorum/internal/engine"
)

// Tx is an exclusive write transaction on the event log.
//
// The write lock is taken when the Tx begins and held until Commit or
// Rollback, so everything read through a Tx stays current until it ends.
// Callers that read the log, decide, and append must do all three through
// one Tx.
//
// CRITICAL: The store allows a single connection. While a Tx is open, the
// Store's own methods block until it ends; use the Tx methods instead.
type Tx struct {
	tx    *sql.Tx
	idGen IDGenerator
}

// Begin starts a write transaction. It waits up to the busy timeout for a
// writer on another connection to finish.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx, idGen: s.idGen}, nil
}

// Commit makes every append durable and releases the write lock.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards every append and releases the write lock.
// Rolling back a finished Tx is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// ReadEvents returns every stored event, ordered by seq.
func (t *Tx) ReadEvents(ctx context.Context) ([]engine.Event, error) {
	return readEvents(ctx, t.tx)
}

// ReadActionEvents returns the events recorded for one action, ordered by seq.
func (t *Tx) ReadActionEvents(ctx context.Context, id engine.ActionID) ([]engine.Event, error) {
	return readActionEvents(ctx, t.tx, id)
}

// LastSeq returns the highest stored seq, or 0 for an empty log.
func (t *Tx) LastSeq(ctx context.Context) (int64, error) {
	return lastSeq(ctx, t.tx)
}

// LoadRegistry rebuilds the stored registry.
func (t *Tx) LoadRegistry(ctx context.Context) (*engine.Registry, error) {
	return loadRegistry(ctx, t.tx)
}

// AppendEvent inserts an event with the same rules as Store.AppendEvent.
func (t *Tx) AppendEvent(ctx context.Context, ev engine.Event) error {
	return appendEvent(ctx, t.tx, t.idGen, ev)
}

// Handle appends ev, making a Tx usable as an engine.Sink.
func (t *Tx) Handle(ctx context.Context, ev engine.Event) error {
	return t.AppendEvent(ctx, ev)
}
