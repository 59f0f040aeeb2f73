package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/quorum/internal/engine"
)

var (
	// ErrNoRegistry is returned by LoadRegistry for a store that was never
	// initialised.
	ErrNoRegistry = errors.New("store has no registry; run init first")

	// ErrRegistryMismatch is returned when saving a registry that differs
	// from the one already stored.
	ErrRegistryMismatch = errors.New("registry differs from the stored registry")

	// ErrSeqConflict is returned by AppendEvent when the log already holds a
	// different event at the same seq.
	ErrSeqConflict = errors.New("seq already holds a different event")
)

const eventColumns = `seq, kind, action_id, owner, sender, target, amount, payload, reason`

// ReadEvents returns every stored event.
// Results are ordered by seq ASC.
func (s *Store) ReadEvents(ctx context.Context) ([]engine.Event, error) {
	return readEvents(ctx, s.db)
}

// ReadActionEvents returns the events recorded for one action.
// Results are ordered by seq ASC.
func (s *Store) ReadActionEvents(ctx context.Context, id engine.ActionID) ([]engine.Event, error) {
	return readActionEvents(ctx, s.db, id)
}

// LastSeq returns the highest stored seq, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	return lastSeq(ctx, s.db)
}

// LoadRegistry rebuilds the stored registry.
// Returns ErrNoRegistry if SaveRegistry was never called.
func (s *Store) LoadRegistry(ctx context.Context) (*engine.Registry, error) {
	return loadRegistry(ctx, s.db)
}

func readEvents(ctx context.Context, q querier) ([]engine.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return collectEvents(rows)
}

func readActionEvents(ctx context.Context, q querier, id engine.ActionID) ([]engine.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE action_id = ?
		ORDER BY seq ASC
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("read action %d events: %w", id, err)
	}
	return collectEvents(rows)
}

func lastSeq(ctx context.Context, q querier) (int64, error) {
	var seq sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

func loadRegistry(ctx context.Context, q querier) (*engine.Registry, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'threshold'`,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRegistry
	}
	if err != nil {
		return nil, fmt.Errorf("load registry: threshold: %w", err)
	}
	threshold, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("load registry: threshold %q: %w", raw, err)
	}

	rows, err := q.QueryContext(ctx, `SELECT owner FROM owners ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("load registry: owners: %w", err)
	}
	defer rows.Close()

	var owners []engine.OwnerID
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("load registry: scan owner: %w", err)
		}
		owners = append(owners, engine.OwnerID(owner))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load registry: owners: %w", err)
	}

	r, err := engine.NewRegistry(owners, threshold)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return r, nil
}

func collectEvents(rows *sql.Rows) ([]engine.Event, error) {
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
