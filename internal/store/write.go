package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/quorum/internal/engine"
)

// AppendEvent inserts an event into the log.
//
// An event delivered twice is stored once: appending at a seq that already
// holds the same event is a no-op. Appending a different event at a taken
// seq returns ErrSeqConflict.
func (s *Store) AppendEvent(ctx context.Context, ev engine.Event) error {
	return appendEvent(ctx, s.db, s.idGen, ev)
}

func appendEvent(ctx context.Context, q querier, ids IDGenerator, ev engine.Event) error {
	if ev.Seq <= 0 {
		return fmt.Errorf("append event: seq must be positive, got %d", ev.Seq)
	}
	if ev.Kind == "" {
		return fmt.Errorf("append event seq=%d: kind is required", ev.Seq)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO events
		(seq, id, kind, action_id, owner, sender, target, amount, payload, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ev.Seq,
		ids.Generate(),
		string(ev.Kind),
		marshalActionID(ev.ActionID),
		string(ev.Owner),
		ev.Sender,
		ev.Target,
		marshalAmount(ev.Amount),
		ev.Payload,
		ev.Reason,
	)
	if err != nil {
		return fmt.Errorf("append event seq=%d: %w", ev.Seq, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append event seq=%d: %w", ev.Seq, err)
	}
	if n == 1 {
		return nil
	}

	stored, err := scanEvent(q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE seq = ?`, ev.Seq))
	if err != nil {
		return fmt.Errorf("append event seq=%d: read stored event: %w", ev.Seq, err)
	}
	if !sameEvent(stored, ev) {
		return fmt.Errorf("append event %q: %w: stored %q", ev, ErrSeqConflict, stored)
	}
	return nil
}

func sameEvent(a, b engine.Event) bool {
	return a.Seq == b.Seq &&
		a.Kind == b.Kind &&
		a.ActionID == b.ActionID &&
		a.Owner == b.Owner &&
		a.Sender == b.Sender &&
		a.Target == b.Target &&
		a.Amount.Equal(b.Amount) &&
		bytes.Equal(a.Payload, b.Payload) &&
		a.Reason == b.Reason
}

// Handle appends ev to the log, making the store usable as an engine.Sink.
func (s *Store) Handle(ctx context.Context, ev engine.Event) error {
	return s.AppendEvent(ctx, ev)
}

// SaveRegistry persists the owner set and threshold.
//
// Saving the same registry again is a no-op. Saving a different one into a
// store that already has a registry returns ErrRegistryMismatch.
func (s *Store) SaveRegistry(ctx context.Context, r *engine.Registry) error {
	existing, err := s.LoadRegistry(ctx)
	switch {
	case err == nil:
		if !sameRegistry(existing, r) {
			return fmt.Errorf("save registry: %w", ErrRegistryMismatch)
		}
		return nil
	case !errors.Is(err, ErrNoRegistry):
		return fmt.Errorf("save registry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save registry: begin: %w", err)
	}
	defer tx.Rollback()

	for i, owner := range r.Owners() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO owners (position, owner) VALUES (?, ?)`,
			i, string(owner),
		); err != nil {
			return fmt.Errorf("save registry: owner %q: %w", owner, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ('threshold', ?)`,
		strconv.Itoa(r.Threshold()),
	); err != nil {
		return fmt.Errorf("save registry: threshold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save registry: commit: %w", err)
	}
	return nil
}

func sameRegistry(a, b *engine.Registry) bool {
	if a.Threshold() != b.Threshold() {
		return false
	}
	ao, bo := a.Owners(), b.Owners()
	if len(ao) != len(bo) {
		return false
	}
	for i := range ao {
		if ao[i] != bo[i] {
			return false
		}
	}
	return true
}
