package engine

import (
	"bytes"

	"github.com/shopspring/decimal"
)

// ActionID identifies a submitted action. IDs are assigned sequentially
// from 0 and never reused.
type ActionID int64

// Action is a proposed unit of work awaiting confirmations.
//
// Executed is the only field that changes after submission. Target and
// Payload are opaque to the engine and handed to the Executor untouched.
type Action struct {
	ID       ActionID        `json:"id"`
	Target   string          `json:"target"`
	Amount   decimal.Decimal `json:"amount"`
	Payload  []byte          `json:"payload"`
	Executed bool            `json:"executed"`
}

// clone returns a copy that shares no memory with the stored action.
func (a Action) clone() Action {
	a.Payload = bytes.Clone(a.Payload)
	return a
}

// actionStore holds every submitted action, indexed by ID.
//
// INVARIANTS:
//   - actions[i].ID == i (gapless, strictly increasing assignment)
//   - entries are never removed
//
// Not safe for concurrent use; the Engine serializes access.
type actionStore struct {
	actions []Action
}

func newActionStore() *actionStore {
	return &actionStore{actions: make([]Action, 0, 16)}
}

// submit records a new action and returns its ID.
// Duplicate proposals are allowed and receive distinct IDs.
func (s *actionStore) submit(target string, amount decimal.Decimal, payload []byte) ActionID {
	id := ActionID(len(s.actions))
	s.actions = append(s.actions, Action{
		ID:      id,
		Target:  target,
		Amount:  amount,
		Payload: bytes.Clone(payload),
	})
	return id
}

// get returns a copy of the action, or ErrCodeUnknownAction.
func (s *actionStore) get(id ActionID) (Action, error) {
	if !s.exists(id) {
		return Action{}, newUnknownAction(id)
	}
	return s.actions[id].clone(), nil
}

func (s *actionStore) exists(id ActionID) bool {
	return id >= 0 && int64(id) < int64(len(s.actions))
}

// markExecuted sets the executed flag. Only the coordinator calls it.
func (s *actionStore) markExecuted(id ActionID, value bool) {
	s.actions[id].Executed = value
}

func (s *actionStore) len() int {
	return len(s.actions)
}
