package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stampLog is an Emitter that keeps every event it is given.
type stampLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *stampLog) Emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *stampLog) seqs() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int64, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Seq
	}
	return out
}

func approve(context.Context, string, decimal.Decimal, []byte) error { return nil }

func TestClock_FreshEngineStampsFromOne(t *testing.T) {
	log := &stampLog{}
	e := New(mustRegistry(t, 2, "alice", "bob"), ExecutorFunc(approve), WithEmitter(log))
	assert.Equal(t, int64(0), e.Clock().Current())

	_, _, err := e.Submit(context.Background(), "vault", decimal.NewFromInt(5), nil, "alice")
	require.NoError(t, err)
	_, err = e.Confirm(context.Background(), 0, "bob")
	require.NoError(t, err)

	// Submitted, Confirmed(alice), Confirmed(bob), Executed
	assert.Equal(t, []int64{1, 2, 3, 4}, log.seqs())
	assert.Equal(t, int64(4), e.Clock().Current())
}

func TestClock_RejectedOperationsDoNotAdvance(t *testing.T) {
	e := New(mustRegistry(t, 2, "alice", "bob"), ExecutorFunc(approve))
	_, _, err := e.Submit(context.Background(), "vault", decimal.Zero, nil, "alice")
	require.NoError(t, err)
	before := e.Clock().Current()

	_, err = e.Confirm(context.Background(), 0, "mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = e.Confirm(context.Background(), 0, "alice")
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	_, err = e.Revoke(context.Background(), 0, "bob")
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.ErrorIs(t, e.Deposit("ops", decimal.NewFromInt(-1)), ErrInvalidAmount)

	assert.Equal(t, before, e.Clock().Current())
}

func TestClock_ResumesAfterReplay(t *testing.T) {
	reg := mustRegistry(t, 2, "alice", "bob")

	first := &stampLog{}
	live := New(reg, ExecutorFunc(approve), WithEmitter(first))
	require.NoError(t, live.Deposit("ops", decimal.NewFromInt(10)))
	_, _, err := live.Submit(context.Background(), "vault", decimal.NewFromInt(5), nil, "alice")
	require.NoError(t, err)

	second := &stampLog{}
	resumed := New(reg, ExecutorFunc(approve), WithEmitter(second))
	require.NoError(t, resumed.Replay(first.events))
	assert.Equal(t, live.Clock().Current(), resumed.Clock().Current())
	assert.Empty(t, second.events, "replay must not emit")

	out, err := resumed.Confirm(context.Background(), 0, "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, out.Status)

	// Confirmed(bob) and Executed continue the log without a gap.
	assert.Equal(t, []int64{4, 5}, second.seqs())
}

func TestClock_ReplayLeavesClockAtLastSeqWithGaps(t *testing.T) {
	e := New(mustRegistry(t, 1, "alice"), ExecutorFunc(approve))
	require.NoError(t, e.Replay([]Event{
		{Seq: 3, Kind: EventDeposited, ActionID: -1, Sender: "ops", Amount: decimal.NewFromInt(1)},
		{Seq: 9, Kind: EventDeposited, ActionID: -1, Sender: "ops", Amount: decimal.NewFromInt(1)},
	}))
	assert.Equal(t, int64(9), e.Clock().Current())
}

func TestClock_ReplayRejectsLogBehindClock(t *testing.T) {
	e := New(mustRegistry(t, 1, "alice"), ExecutorFunc(approve), WithClock(NewClockAt(5)))

	err := e.Replay([]Event{
		{Seq: 3, Kind: EventDeposited, ActionID: -1, Sender: "ops", Amount: decimal.NewFromInt(1)},
	})
	assert.ErrorIs(t, err, ErrReplayMismatch)
	assert.Equal(t, int64(5), e.Clock().Current())
}

func TestClock_ResumedClockStampsAfterStart(t *testing.T) {
	log := &stampLog{}
	e := New(mustRegistry(t, 2, "alice", "bob"), ExecutorFunc(approve),
		WithEmitter(log),
		WithClock(NewClockAt(41)),
	)
	require.NoError(t, e.Deposit("ops", decimal.NewFromInt(3)))
	assert.Equal(t, []int64{42}, log.seqs())
}

func TestClock_ConcurrentConfirmsGetDistinctSeqs(t *testing.T) {
	owners := []OwnerID{"o1", "o2", "o3", "o4"}
	log := &stampLog{}
	e := New(mustRegistry(t, 4, owners...), ExecutorFunc(approve), WithEmitter(log))

	const actions = 20
	for i := 0; i < actions; i++ {
		_, _, err := e.Submit(context.Background(), "vault", decimal.Zero, nil, "o1")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, owner := range owners[1:] {
		wg.Add(1)
		go func(owner OwnerID) {
			defer wg.Done()
			for id := ActionID(0); id < actions; id++ {
				_, err := e.Confirm(context.Background(), id, owner)
				assert.NoError(t, err)
			}
		}(owner)
	}
	wg.Wait()

	// Per action: Submitted, four Confirmed, Executed.
	seqs := log.seqs()
	require.Len(t, seqs, actions*6)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq, "events reach the emitter in seq order")
	}
	assert.Equal(t, int64(actions*6), e.Clock().Current())
}

func TestClock_AdvanceToNeverMovesBack(t *testing.T) {
	c := NewClockAt(10)

	c.advanceTo(5)
	assert.Equal(t, int64(10), c.Current())

	c.advanceTo(42)
	assert.Equal(t, int64(42), c.Current())
	assert.Equal(t, int64(43), c.Next())
}
