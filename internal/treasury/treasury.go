// Package treasury is the custody executor: it holds deposited funds and
// pays them out to targets when the engine executes an approved action.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/quorum/internal/engine"
)

// ErrInsufficientFunds is returned by Execute when the transfer amount
// exceeds the held balance. The engine records it as ExecutionFailed and
// the action stays retryable.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Transfer is one completed payout.
type Transfer struct {
	Target  string          `json:"target"`
	Amount  decimal.Decimal `json:"amount"`
	Payload []byte          `json:"payload,omitempty"`
}

// Account is the running total paid to one target.
type Account struct {
	Target   string          `json:"target"`
	Received decimal.Decimal `json:"received"`
}

// Treasury implements engine.Executor over an in-memory balance.
//
// Credits arrive as Deposited events (Treasury is an engine.Sink); debits
// happen in Execute. Restore rebuilds both from a stored event log.
type Treasury struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	transfers []Transfer
	accounts  map[string]decimal.Decimal
	logger    *slog.Logger
}

// New creates an empty treasury.
func New(logger *slog.Logger) *Treasury {
	if logger == nil {
		logger = slog.Default()
	}
	return &Treasury{
		balance:  decimal.Zero,
		accounts: make(map[string]decimal.Decimal),
		logger:   logger,
	}
}

// Execute pays amount to target.
func (t *Treasury) Execute(ctx context.Context, target string, amount decimal.Decimal, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if amount.GreaterThan(t.balance) {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, t.balance, amount)
	}
	t.debit(target, amount, payload)

	t.logger.Info("transfer executed",
		"target", target,
		"amount", amount.String(),
		"balance", t.balance.String(),
	)
	return nil
}

// Handle credits Deposited events and ignores everything else.
func (t *Treasury) Handle(_ context.Context, ev engine.Event) error {
	if ev.Kind != engine.EventDeposited {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.balance = t.balance.Add(ev.Amount)
	t.logger.Debug("deposit credited",
		"sender", ev.Sender,
		"amount", ev.Amount.String(),
		"balance", t.balance.String(),
	)
	return nil
}

// Restore replaces the treasury state with the one implied by events:
// every Deposited credits the balance and every Executed debits it.
//
// Returns an error if the log would drive the balance negative.
func (t *Treasury) Restore(events []engine.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.balance = decimal.Zero
	t.transfers = nil
	t.accounts = make(map[string]decimal.Decimal)

	// Executed events do not repeat the payload; take it from Submitted.
	payloads := make(map[engine.ActionID][]byte)
	for _, ev := range events {
		switch ev.Kind {
		case engine.EventDeposited:
			t.balance = t.balance.Add(ev.Amount)
		case engine.EventSubmitted:
			payloads[ev.ActionID] = ev.Payload
		case engine.EventExecuted:
			if ev.Amount.GreaterThan(t.balance) {
				return fmt.Errorf("restore: seq %d pays %s from balance %s: %w",
					ev.Seq, ev.Amount, t.balance, ErrInsufficientFunds)
			}
			t.debit(ev.Target, ev.Amount, payloads[ev.ActionID])
		}
	}
	return nil
}

// debit moves amount out of custody.
// CRITICAL: caller must hold t.mu.
func (t *Treasury) debit(target string, amount decimal.Decimal, payload []byte) {
	t.balance = t.balance.Sub(amount)
	t.transfers = append(t.transfers, Transfer{
		Target:  target,
		Amount:  amount,
		Payload: append([]byte(nil), payload...),
	})
	t.accounts[target] = t.accounts[target].Add(amount)
}

// Balance returns the funds currently held.
func (t *Treasury) Balance() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// Transfers returns completed payouts in execution order.
func (t *Treasury) Transfers() []Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Transfer(nil), t.transfers...)
}

// Accounts returns per-target totals sorted by target.
func (t *Treasury) Accounts() []Account {
	t.mu.Lock()
	defer t.mu.Unlock()

	accounts := make([]Account, 0, len(t.accounts))
	for target, received := range t.accounts {
		accounts = append(accounts, Account{Target: target, Received: received})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Target < accounts[j].Target
	})
	return accounts
}
