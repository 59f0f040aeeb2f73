package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/engine"
)

// ReplayResult summarises a rebuilt event log.
type ReplayResult struct {
	Events        int      `json:"events"`
	LastSeq       int64    `json:"last_seq"`
	Actions       int      `json:"actions"`
	Executed      int      `json:"executed"`
	Pending       int      `json:"pending"`
	Balance       string   `json:"balance"`
	Deterministic bool     `json:"deterministic"`
	Differences   []string `json:"differences,omitempty"`
}

func (r ReplayResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "events:   %d (last seq %d)\n", r.Events, r.LastSeq)
	fmt.Fprintf(&b, "actions:  %d (%d executed, %d pending)\n", r.Actions, r.Executed, r.Pending)
	fmt.Fprintf(&b, "balance:  %s\n", r.Balance)
	if r.Deterministic {
		b.WriteString("replay:   deterministic")
		return b.String()
	}
	b.WriteString("replay:   NOT deterministic")
	for _, d := range r.Differences {
		b.WriteString("\n  " + d)
	}
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Rebuild state from the event log and verify it",
		Long: `Rebuild engine and treasury state from the event log, replay the log a
second time into an independent engine, and compare the two.

Exit codes:
  0 - The log is consistent and replays deterministically
  1 - The log is inconsistent or the replays differ
  2 - Command error (database not initialised, etc.)

Examples:
  quorum replay --db vault.db
  quorum replay --db vault.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	return withSession(opts, cmd, func(_ context.Context, s *session) error {
		events := s.log

		second := engine.New(s.engine.Registry(), engine.ExecutorFunc(refuseExecution))
		if err := second.Replay(events); err != nil {
			return f.Fail(ExitFailure, err)
		}

		result := ReplayResult{
			Events:  len(events),
			LastSeq: s.engine.Clock().Current(),
			Balance: s.treasury.Balance().String(),
		}
		for _, a := range s.engine.Actions() {
			result.Actions++
			if a.Executed {
				result.Executed++
			} else {
				result.Pending++
			}
		}
		result.Differences = compareEngines(s.engine, second)
		result.Deterministic = len(result.Differences) == 0

		f.VerboseLog("replayed %d events into two engines", len(events))

		if err := f.Success(result); err != nil {
			return err
		}
		if !result.Deterministic {
			return &ExitError{Code: ExitFailure, Message: "replay is not deterministic", Reported: true}
		}
		return nil
	})
}

// refuseExecution stands in for the executor of a verification engine.
// Replay never executes, so a call means the engine is broken.
func refuseExecution(context.Context, string, decimal.Decimal, []byte) error {
	return errors.New("executor called during replay verification")
}

// compareEngines lists every observable difference between two engines.
func compareEngines(a, b *engine.Engine) []string {
	var diffs []string

	if ca, cb := a.Clock().Current(), b.Clock().Current(); ca != cb {
		diffs = append(diffs, fmt.Sprintf("clock: %d vs %d", ca, cb))
	}

	actsA, actsB := a.Actions(), b.Actions()
	if len(actsA) != len(actsB) {
		return append(diffs, fmt.Sprintf("action count: %d vs %d", len(actsA), len(actsB)))
	}

	for i := range actsA {
		x, y := actsA[i], actsB[i]
		if x.Target != y.Target || !x.Amount.Equal(y.Amount) || !bytes.Equal(x.Payload, y.Payload) {
			diffs = append(diffs, fmt.Sprintf("action %d: contents differ", x.ID))
		}
		if x.Executed != y.Executed {
			diffs = append(diffs, fmt.Sprintf("action %d: executed %t vs %t", x.ID, x.Executed, y.Executed))
		}
		cx, _ := a.Confirmers(x.ID)
		cy, _ := b.Confirmers(y.ID)
		if !slices.Equal(cx, cy) {
			diffs = append(diffs, fmt.Sprintf("action %d: confirmers %v vs %v", x.ID, cx, cy))
		}
	}

	return diffs
}
