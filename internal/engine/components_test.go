package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustRegistry(t *testing.T, threshold int, owners ...OwnerID) *Registry {
	t.Helper()
	r, err := NewRegistry(owners, threshold)
	require.NoError(t, err)
	return r
}

func TestNewRegistry_Valid(t *testing.T) {
	r := mustRegistry(t, 2, "o1", "o2", "o3")

	assert.Equal(t, 2, r.Threshold())
	assert.Equal(t, []OwnerID{"o1", "o2", "o3"}, r.Owners())
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.IsOwner("o2"))
	assert.False(t, r.IsOwner("mallory"))
}

func TestNewRegistry_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name      string
		owners    []OwnerID
		threshold int
	}{
		{"empty owners", nil, 1},
		{"empty identifier", []OwnerID{"o1", ""}, 1},
		{"duplicate owner", []OwnerID{"o1", "o2", "o1"}, 1},
		{"zero threshold", []OwnerID{"o1"}, 0},
		{"negative threshold", []OwnerID{"o1"}, -1},
		{"threshold above owners", []OwnerID{"o1", "o2"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.owners, tt.threshold)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.Equal(t, ErrCodeInvalidConfiguration, CodeOf(err))
		})
	}
}

func TestNewRegistry_NormalizesIdentifiers(t *testing.T) {
	composed := OwnerID("jos\u00e9")   // é as one code point
	decomposed := OwnerID("jose\u0301") // e + combining acute

	_, err := NewRegistry([]OwnerID{composed, decomposed}, 1)
	assert.ErrorIs(t, err, ErrInvalidConfiguration, "NFC-equal identifiers are duplicates")

	r := mustRegistry(t, 1, composed)
	assert.True(t, r.IsOwner(decomposed))
}

func TestRegistry_OwnersReturnsCopy(t *testing.T) {
	r := mustRegistry(t, 1, "o1", "o2")
	owners := r.Owners()
	owners[0] = "mallory"

	assert.True(t, r.IsOwner("o1"))
	assert.False(t, r.IsOwner("mallory"))
}

func TestActionStore_SequentialIDs(t *testing.T) {
	s := newActionStore()

	for want := ActionID(0); want < 5; want++ {
		got := s.submit("same-target", decimal.NewFromInt(1), []byte("same"))
		assert.Equal(t, want, got, "duplicate proposals get distinct, gapless ids")
	}
	assert.Equal(t, 5, s.len())

	_, err := s.get(5)
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = s.get(-1)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestActionStore_GetReturnsCopy(t *testing.T) {
	s := newActionStore()
	payload := []byte{1, 2, 3}
	id := s.submit("t", decimal.NewFromInt(7), payload)
	payload[0] = 9

	a, err := s.get(id)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, a.Payload)

	a.Payload[1] = 9
	again, _ := s.get(id)
	assert.Equal(t, []byte{1, 2, 3}, again.Payload)
}

func TestActionStore_MarkExecuted(t *testing.T) {
	s := newActionStore()
	id := s.submit("t", decimal.Zero, nil)

	s.markExecuted(id, true)
	a, _ := s.get(id)
	assert.True(t, a.Executed)

	s.markExecuted(id, false)
	a, _ = s.get(id)
	assert.False(t, a.Executed)
}

func newTestLedger(t *testing.T, threshold int, owners ...OwnerID) (*ledger, *actionStore, *Registry) {
	t.Helper()
	r := mustRegistry(t, threshold, owners...)
	s := newActionStore()
	return newLedger(r, s), s, r
}

func TestLedger_ConfirmRevokeToggle(t *testing.T) {
	l, s, _ := newTestLedger(t, 2, "o1", "o2", "o3")
	id := s.submit("t", decimal.Zero, nil)

	require.NoError(t, l.confirm(id, "o1"))
	assert.True(t, l.isConfirmedBy(id, "o1"))
	assert.Equal(t, 1, l.count(id))

	assert.ErrorIs(t, l.confirm(id, "o1"), ErrAlreadyConfirmed)
	assert.Equal(t, 1, l.count(id), "rejected confirm changes nothing")

	require.NoError(t, l.revoke(id, "o1"))
	assert.False(t, l.isConfirmedBy(id, "o1"))
	assert.Equal(t, 0, l.count(id))

	assert.ErrorIs(t, l.revoke(id, "o1"), ErrNotConfirmed)
	assert.ErrorIs(t, l.revoke(id, "o2"), ErrNotConfirmed)

	require.NoError(t, l.confirm(id, "o1"), "confirm after revoke is allowed")
}

func TestLedger_Preconditions(t *testing.T) {
	l, s, _ := newTestLedger(t, 1, "o1")
	id := s.submit("t", decimal.Zero, nil)

	assert.ErrorIs(t, l.confirm(id, "mallory"), ErrUnauthorized)
	assert.ErrorIs(t, l.revoke(id, "mallory"), ErrUnauthorized)
	assert.ErrorIs(t, l.confirm(42, "o1"), ErrUnknownAction)
	assert.ErrorIs(t, l.revoke(42, "o1"), ErrUnknownAction)

	// Unauthorized wins over unknown action
	assert.ErrorIs(t, l.confirm(42, "mallory"), ErrUnauthorized)

	assert.Empty(t, l.flags, "no ledger entry for rejected calls")
}

func TestLedger_ConfirmersInRegistryOrder(t *testing.T) {
	l, s, _ := newTestLedger(t, 1, "o1", "o2", "o3")
	id := s.submit("t", decimal.Zero, nil)

	require.NoError(t, l.confirm(id, "o3"))
	require.NoError(t, l.confirm(id, "o1"))

	assert.Equal(t, []OwnerID{"o1", "o3"}, l.confirmers(id))
}

func TestThresholdMet(t *testing.T) {
	l, s, r := newTestLedger(t, 2, "o1", "o2", "o3")
	id := s.submit("t", decimal.Zero, nil)

	assert.False(t, thresholdMet(id, l, r))

	require.NoError(t, l.confirm(id, "o3"))
	assert.False(t, thresholdMet(id, l, r))

	require.NoError(t, l.confirm(id, "o1"))
	assert.True(t, thresholdMet(id, l, r))

	require.NoError(t, l.revoke(id, "o3"))
	assert.False(t, thresholdMet(id, l, r), "revocation lowers the count")
}

func TestThresholdMet_IndependentOfConfirmationOrder(t *testing.T) {
	owners := []OwnerID{"o1", "o2", "o3", "o4"}
	orders := [][]OwnerID{
		{"o1", "o2"},
		{"o2", "o1"},
		{"o4", "o3"},
		{"o3", "o1"},
	}

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			l, s, r := newTestLedger(t, 2, owners...)
			id := s.submit("t", decimal.Zero, nil)
			for _, o := range order {
				require.NoError(t, l.confirm(id, o))
			}
			assert.True(t, thresholdMet(id, l, r))
			assert.True(t, thresholdMet(id, l, r), "evaluation is side-effect free")
		})
	}
}

func TestError_Formatting(t *testing.T) {
	assert.Equal(t,
		"UNAUTHORIZED: caller is not a registered owner (action=3, owner=eve)",
		newUnauthorized(3, "eve").Error())
	assert.Equal(t,
		"UNKNOWN_ACTION: action was never submitted (action=9)",
		newUnknownAction(9).Error())
	assert.Equal(t,
		"UNAUTHORIZED: caller is not a registered owner (owner=eve)",
		newUnauthorized(-1, "eve").Error())
	assert.Equal(t,
		"INVALID_AMOUNT: deposit amount must not be negative",
		newInvalidAmount("deposit amount").Error())
}

func TestError_IsMatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("cli: %w", newAlreadyConfirmed(1, "o1"))

	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.NotErrorIs(t, err, ErrNotConfirmed)
	assert.Equal(t, ErrCodeAlreadyConfirmed, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("insufficient funds")
	var err error = &ExecutionError{ActionID: 4, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsExecutionError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsExecutionError(cause))
	assert.Equal(t, "execution of action 4 failed: insufficient funds", err.Error())
}
