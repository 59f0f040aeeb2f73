package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/engine"
)

// ActionView is one action with its confirmation state.
type ActionView struct {
	ID            int64    `json:"id"`
	Target        string   `json:"target"`
	Amount        string   `json:"amount"`
	Payload       string   `json:"payload,omitempty"` // hex
	Executed      bool     `json:"executed"`
	Confirmations int      `json:"confirmations"`
	Threshold     int      `json:"threshold"`
	ConfirmedBy   []string `json:"confirmed_by"`
}

func (v ActionView) String() string {
	state := "proposed"
	if v.Executed {
		state = "executed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "action %d (%s)\n", v.ID, state)
	fmt.Fprintf(&b, "  target:        %s\n", v.Target)
	fmt.Fprintf(&b, "  amount:        %s\n", v.Amount)
	if v.Payload != "" {
		fmt.Fprintf(&b, "  payload:       %s\n", v.Payload)
	}
	fmt.Fprintf(&b, "  confirmations: %d/%d", v.Confirmations, v.Threshold)
	if len(v.ConfirmedBy) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(v.ConfirmedBy, ", "))
	}
	return b.String()
}

func newActionView(e *engine.Engine, a engine.Action) (ActionView, error) {
	confirmers, err := e.Confirmers(a.ID)
	if err != nil {
		return ActionView{}, err
	}
	by := make([]string, len(confirmers))
	for i, o := range confirmers {
		by[i] = string(o)
	}
	return ActionView{
		ID:            int64(a.ID),
		Target:        a.Target,
		Amount:        a.Amount.String(),
		Payload:       hex.EncodeToString(a.Payload),
		Executed:      a.Executed,
		Confirmations: len(by),
		Threshold:     e.Threshold(),
		ConfirmedBy:   by,
	}, nil
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <action-id>",
		Short: "Show one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			id, err := parseActionID(args[0])
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(_ context.Context, s *session) error {
				a, err := s.engine.Action(id)
				if err != nil {
					return f.Fail(ExitFailure, err)
				}
				v, err := newActionView(s.engine, a)
				if err != nil {
					return f.Fail(ExitFailure, err)
				}
				return f.Success(v)
			})
		},
	}
}

// ListView is every action in ID order.
type ListView struct {
	Actions []ActionView `json:"actions"`
	Balance string       `json:"balance"`
}

func (v ListView) String() string {
	if len(v.Actions) == 0 {
		return "No actions.\nbalance: " + v.Balance
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-9s %-6s %-20s %s\n", "ID", "STATE", "CONF", "TARGET", "AMOUNT")
	for _, a := range v.Actions {
		state := "proposed"
		if a.Executed {
			state = "executed"
		}
		conf := fmt.Sprintf("%d/%d", a.Confirmations, a.Threshold)
		fmt.Fprintf(&b, "%-4d %-9s %-6s %-20s %s\n", a.ID, state, conf, a.Target, a.Amount)
	}
	b.WriteString("balance: " + v.Balance)
	return b.String()
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Pending bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts.RootOptions, cmd)
			return withSession(opts.RootOptions, cmd, func(_ context.Context, s *session) error {
				view := ListView{Actions: []ActionView{}, Balance: s.treasury.Balance().String()}
				for _, a := range s.engine.Actions() {
					if opts.Pending && a.Executed {
						continue
					}
					v, err := newActionView(s.engine, a)
					if err != nil {
						return f.Fail(ExitFailure, err)
					}
					view.Actions = append(view.Actions, v)
				}
				return f.Success(view)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "only actions not yet executed")

	return cmd
}

// OwnersView is the owner registry of an event log.
type OwnersView struct {
	Database  string   `json:"database"`
	Owners    []string `json:"owners"`
	Threshold int      `json:"threshold"`
}

func (v OwnersView) String() string {
	return fmt.Sprintf("database:  %s\nowners:    %s\nthreshold: %d of %d",
		v.Database, strings.Join(v.Owners, ", "), v.Threshold, len(v.Owners))
}

func newOwnersView(r *engine.Registry, db string) OwnersView {
	owners := r.Owners()
	names := make([]string, len(owners))
	for i, o := range owners {
		names[i] = string(o)
	}
	return OwnersView{Database: db, Owners: names, Threshold: r.Threshold()}
}

// NewOwnersCommand creates the owners command.
func NewOwnersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "owners",
		Short: "Show the owner registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(_ context.Context, s *session) error {
				return f.Success(newOwnersView(s.engine.Registry(), s.database))
			})
		},
	}
}

// TraceView is a slice of the event log.
type TraceView struct {
	Events []engine.Event `json:"events"`
}

func (v TraceView) String() string {
	if len(v.Events) == 0 {
		return "No events."
	}
	lines := make([]string, len(v.Events))
	for i, ev := range v.Events {
		lines[i] = ev.String()
	}
	return strings.Join(lines, "\n")
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trace [action-id]",
		Short: "Print the event log",
		Long: `Print the event log in sequence order, or only the events of one
action when an action id is given.

Examples:
  quorum trace
  quorum trace 3 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				var (
					events []engine.Event
					err    error
				)
				if len(args) == 1 {
					id, perr := parseActionID(args[0])
					if perr != nil {
						return perr
					}
					if _, err := s.engine.Action(id); err != nil {
						return f.Fail(ExitFailure, err)
					}
					events, err = s.tx.ReadActionEvents(ctx, id)
				} else {
					events, err = s.tx.ReadEvents(ctx)
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read event log", err)
				}
				if events == nil {
					events = []engine.Event{}
				}
				return f.Success(TraceView{Events: events})
			})
		},
	}
}
