package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/quorum/internal/engine"
)

// Amounts are stored as decimal TEXT so values beyond float64 precision
// round-trip exactly.
func marshalAmount(d decimal.Decimal) string {
	return d.String()
}

func unmarshalAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unmarshal amount %q: %w", s, err)
	}
	return d, nil
}

// marshalActionID maps the "no action" sentinel (-1, used by Deposited)
// to NULL.
func marshalActionID(id engine.ActionID) sql.NullInt64 {
	if id < 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}

func unmarshalActionID(v sql.NullInt64) engine.ActionID {
	if !v.Valid {
		return -1
	}
	return engine.ActionID(v.Int64)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (engine.Event, error) {
	var (
		ev       engine.Event
		kind     string
		actionID sql.NullInt64
		owner    string
		amount   string
		payload  []byte
	)
	err := row.Scan(
		&ev.Seq,
		&kind,
		&actionID,
		&owner,
		&ev.Sender,
		&ev.Target,
		&amount,
		&payload,
		&ev.Reason,
	)
	if err != nil {
		return engine.Event{}, err
	}

	ev.Kind = engine.EventKind(kind)
	ev.ActionID = unmarshalActionID(actionID)
	ev.Owner = engine.OwnerID(owner)
	if len(payload) > 0 {
		ev.Payload = payload
	}
	ev.Amount, err = unmarshalAmount(amount)
	if err != nil {
		return engine.Event{}, fmt.Errorf("event seq=%d: %w", ev.Seq, err)
	}
	return ev, nil
}
