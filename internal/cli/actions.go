package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/store"
)

// OutcomeView reports the execution attempt that followed an operation.
type OutcomeView struct {
	ActionID int64  `json:"action_id"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Balance  string `json:"balance"`
}

func (v OutcomeView) String() string {
	s := fmt.Sprintf("action %d: %s", v.ActionID, v.Status)
	if v.Reason != "" {
		s += " (" + v.Reason + ")"
	}
	return s + "\nbalance: " + v.Balance
}

func newOutcomeView(out engine.Outcome, s *session) OutcomeView {
	v := OutcomeView{
		ActionID: int64(out.ActionID),
		Status:   string(out.Status),
		Balance:  s.treasury.Balance().String(),
	}
	var execErr *engine.ExecutionError
	if errors.As(out.Err, &execErr) {
		v.Reason = execErr.Err.Error()
	}
	return v
}

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Owners    []string
	Threshold int
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an event log for an owner set",
		Long: `Create an event log and record its owner registry.

Owners and threshold come from --owners/--threshold, or from the config
file and QUORUM_OWNERS/QUORUM_THRESHOLD. The registry is fixed: running
init again with the same registry is a no-op, a different one is an error.

Examples:
  quorum init --owners alice,bob,carol --threshold 2 --db vault.db
  quorum init --config quorum.cue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Owners, "owners", nil, "owner identifiers, comma separated")
	cmd.Flags().IntVar(&opts.Threshold, "threshold", 0, "confirmations required to execute")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	st, cfg, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(opts.Owners) > 0 {
		cfg.Owners = opts.Owners
	}
	if opts.Threshold != 0 {
		cfg.Threshold = opts.Threshold
	}

	registry, err := cfg.Registry()
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	if err := st.SaveRegistry(cmd.Context(), registry); err != nil {
		if errors.Is(err, store.ErrRegistryMismatch) {
			return f.Fail(ExitFailure, fmt.Errorf("%s: %w", cfg.Database, err))
		}
		return WrapExitError(ExitCommandError, "failed to save registry", err)
	}

	return f.Success(newOwnersView(registry, cfg.Database))
}

// NewDepositCommand creates the deposit command.
func NewDepositCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <sender> <amount>",
		Short: "Record funds received into custody",
		Long: `Record funds received into custody. Deposits are not gated by
ownership or quorum. A zero amount is accepted and records nothing.

Example:
  quorum deposit treasury-ops 250.00`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				if err := s.engine.Deposit(args[0], amount); err != nil {
					return f.Fail(ExitFailure, err)
				}
				// Credit arrives through the bus; deliver it before reporting.
				if err := s.bus.Flush(ctx); err != nil {
					return WrapExitError(ExitFailure, "failed to persist events", err)
				}
				return f.Success(BalanceView{Balance: s.treasury.Balance().String()})
			})
		},
	}
}

// BalanceView reports the custody balance.
type BalanceView struct {
	Balance string `json:"balance"`
}

func (v BalanceView) String() string { return "balance: " + v.Balance }

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Owner      string
	Target     string
	Amount     string
	Payload    string
	PayloadHex string
}

// SubmitView reports a new action and its first execution attempt.
type SubmitView struct {
	OutcomeView
}

func (v SubmitView) String() string {
	return fmt.Sprintf("submitted action %d\n%s", v.ActionID, v.OutcomeView)
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Propose an action",
		Long: `Propose an action. The proposer's confirmation is recorded with the
submission, so with a threshold of 1 the action executes immediately.

Examples:
  quorum submit --owner alice --target vendor-42 --amount 120.50
  quorum submit --owner alice --target vendor-42 --amount 0 --payload-hex cafe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "proposing owner (required)")
	cmd.Flags().StringVar(&opts.Target, "target", "", "destination of the action (required)")
	cmd.Flags().StringVar(&opts.Amount, "amount", "0", "resource quantity to transfer")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "opaque payload as text")
	cmd.Flags().StringVar(&opts.PayloadHex, "payload-hex", "", "opaque payload as hex")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("target")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-hex")

	return cmd
}

func runSubmit(opts *SubmitOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	amount, err := parseAmount(opts.Amount)
	if err != nil {
		return err
	}
	payload := []byte(opts.Payload)
	if opts.PayloadHex != "" {
		payload, err = hex.DecodeString(opts.PayloadHex)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --payload-hex", err)
		}
	}
	if len(payload) == 0 {
		payload = nil
	}

	return withSession(opts.RootOptions, cmd, func(ctx context.Context, s *session) error {
		_, out, err := s.engine.Submit(ctx, opts.Target, amount, payload, engine.OwnerID(opts.Owner))
		if err != nil {
			return f.Fail(ExitFailure, err)
		}
		return f.Success(SubmitView{newOutcomeView(out, s)})
	})
}

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	return newOwnerActionCommand(rootOpts, ownerActionSpec{
		use:   "confirm <action-id>",
		short: "Confirm an action",
		long: `Record an owner's confirmation of an action, then attempt execution.
Execution happens at most once, when confirmations reach the threshold.

Example:
  quorum confirm 0 --owner bob`,
		run: func(ctx context.Context, e *engine.Engine, id engine.ActionID, owner engine.OwnerID) (engine.Outcome, error) {
			return e.Confirm(ctx, id, owner)
		},
	})
}

// NewRevokeCommand creates the revoke command.
func NewRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	return newOwnerActionCommand(rootOpts, ownerActionSpec{
		use:   "revoke <action-id>",
		short: "Withdraw a confirmation",
		long: `Withdraw an owner's earlier confirmation of an action. Revoking has no
effect on an action that has already executed.

Example:
  quorum revoke 0 --owner bob`,
		run: func(ctx context.Context, e *engine.Engine, id engine.ActionID, owner engine.OwnerID) (engine.Outcome, error) {
			return e.Revoke(ctx, id, owner)
		},
	})
}

type ownerActionSpec struct {
	use, short, long string
	run              func(ctx context.Context, e *engine.Engine, id engine.ActionID, owner engine.OwnerID) (engine.Outcome, error)
}

func newOwnerActionCommand(rootOpts *RootOptions, spec ownerActionSpec) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   spec.use,
		Short: spec.short,
		Long:  spec.long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			id, err := parseActionID(args[0])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				out, err := spec.run(ctx, s.engine, id, engine.OwnerID(owner))
				if err != nil {
					return f.Fail(ExitFailure, err)
				}
				return f.Success(newOutcomeView(out, s))
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "acting owner (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <action-id>",
		Short: "Retry execution of an approved action",
		Long: `Attempt execution of an action without changing any confirmation.
Use it to retry an approved action whose earlier attempt failed, for
example after a deposit.

Example:
  quorum execute 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			id, err := parseActionID(args[0])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				out, err := s.engine.TryExecute(ctx, id)
				if err != nil {
					return f.Fail(ExitFailure, err)
				}
				return f.Success(newOutcomeView(out, s))
			})
		},
	}
}

func parseActionID(s string) (engine.ActionID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid action id %q", s), err)
	}
	return engine.ActionID(id), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, WrapExitError(ExitCommandError, fmt.Sprintf("invalid amount %q", s), err)
	}
	return d, nil
}
