package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/store"
	"github.com/roach88/quorum/internal/testutil"
	"github.com/roach88/quorum/internal/treasury"
)

// Harness is the test execution engine.
// It runs one scenario against a real engine with a deterministic executor,
// recording every event and persisting it to an in-memory event log.
type Harness struct {
	engine   *engine.Engine
	bus      *engine.Bus
	recorder *testutil.Recorder
	store    *store.Store
	executor *tracingExecutor
	treasury *treasury.Treasury
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Build registry, executor and engine from the scenario
// 2. Execute steps, validating expect clauses
// 3. Evaluate assertions against the final state
// 4. Replay the persisted log into a fresh engine and compare state
//
// The returned error reports a scenario that could not be run at all
// (invalid registry, storage failure). Expectation mismatches are
// reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	registry, err := scenarioRegistry(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.SaveRegistry(ctx, registry); err != nil {
		return nil, fmt.Errorf("failed to save registry: %w", err)
	}

	h := &Harness{
		recorder: testutil.NewRecorder(),
		store:    st,
		logger:   logger,
	}
	h.bus = engine.NewBus(logger, h.recorder, st)

	var inner engine.Executor
	switch scenario.Executor.Kind {
	case ExecutorTreasury:
		h.treasury = treasury.New(logger)
		h.bus.Subscribe(h.treasury)
		inner = h.treasury
	default:
		inner = testutil.NewScriptedExecutor(scriptOutcomes(scenario.Executor.Outcomes)...)
	}
	h.executor = &tracingExecutor{inner: inner}

	h.engine = engine.New(registry, h.executor,
		engine.WithEmitter(h.bus),
		engine.WithLogger(logger),
	)

	if target := scenario.Executor.Reenter; target != nil {
		h.executor.reenter = func(ctx context.Context) (engine.Outcome, error) {
			return h.engine.TryExecute(ctx, engine.ActionID(*target))
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	actx := &AssertionContext{
		Engine:   h.engine,
		Executor: h.executor,
		Treasury: h.treasury,
		Events:   result.Events(),
	}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	if err := h.checkReplay(ctx, registry); err != nil {
		result.AddError(err.Error())
	}

	return result, nil
}

func scenarioRegistry(s *Scenario) (*engine.Registry, error) {
	owners := make([]engine.OwnerID, len(s.Owners))
	for i, o := range s.Owners {
		owners[i] = engine.OwnerID(o)
	}
	r, err := engine.NewRegistry(owners, s.Threshold)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return r, nil
}

func scriptOutcomes(outcomes []string) []error {
	script := make([]error, len(outcomes))
	for i, o := range outcomes {
		if o == OutcomeFail {
			script[i] = testutil.ErrScriptedFailure
		}
	}
	return script
}

// executeStep performs one step, checks its expect clause, and appends the
// step to the trace. Engine rejections are results, not errors; only event
// delivery failures abort the run.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	before := len(h.recorder.Events())
	h.executor.resetReentries()

	var (
		id      = engine.ActionID(-1)
		outcome engine.Outcome
		err     error
	)
	switch step.Op {
	case OpSubmit:
		id, outcome, err = h.engine.Submit(ctx, step.Target, parseAmount(step.Amount),
			payloadBytes(step.Payload), engine.OwnerID(step.Owner))
	case OpConfirm:
		outcome, err = h.engine.Confirm(ctx, engine.ActionID(*step.Action), engine.OwnerID(step.Owner))
	case OpRevoke:
		outcome, err = h.engine.Revoke(ctx, engine.ActionID(*step.Action), engine.OwnerID(step.Owner))
	case OpExecute:
		outcome, err = h.engine.TryExecute(ctx, engine.ActionID(*step.Action))
	case OpDeposit:
		err = h.engine.Deposit(step.Sender, parseAmount(step.Amount))
	}

	if flushErr := h.bus.Flush(ctx); flushErr != nil {
		return fmt.Errorf("deliver events: %w", flushErr)
	}

	entry := TraceEvent{
		Step:      index + 1,
		Op:        step.Op,
		Args:      formatArgs(step),
		Result:    formatResult(step.Op, id, outcome, err),
		Events:    h.recorder.Events()[before:],
		Reentries: h.executor.takeReentries(),
	}
	result.Trace = append(result.Trace, entry)

	for _, msg := range checkExpect(step, id, outcome, err) {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: %s", index, step.Op, entry.Args, msg))
	}
	for _, msg := range h.executor.takeReentryErrors() {
		result.AddError(fmt.Sprintf("steps[%d] reentry: %s", index, msg))
	}

	h.logger.Debug("step completed",
		"step", index+1,
		"op", step.Op,
		"result", entry.Result,
		"events", len(entry.Events),
	)
	return nil
}

// checkExpect compares a step's result with its expect clause.
func checkExpect(step Step, id engine.ActionID, outcome engine.Outcome, err error) []string {
	exp := step.Expect
	if err != nil {
		got := errorLabel(err)
		switch {
		case exp == nil || exp.Error == "":
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		case exp.Error != got:
			return []string{fmt.Sprintf("expected error %s, got %s", exp.Error, got)}
		}
		return nil
	}

	if exp == nil {
		return nil
	}

	var msgs []string
	if exp.Error != "" {
		msgs = append(msgs, fmt.Sprintf("expected error %s, got none", exp.Error))
	}
	if exp.Status != "" && string(outcome.Status) != exp.Status {
		msgs = append(msgs, fmt.Sprintf("expected status %s, got %s", exp.Status, outcome.Status))
	}
	if exp.Action != nil && int64(id) != *exp.Action {
		msgs = append(msgs, fmt.Sprintf("expected action %d, got %d", *exp.Action, id))
	}
	return msgs
}

// checkReplay rebuilds engine state from the persisted log and compares it
// with the live engine.
func (h *Harness) checkReplay(ctx context.Context, registry *engine.Registry) error {
	events, err := h.store.ReadEvents(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	replayed := engine.New(registry, h.executor, engine.WithLogger(h.logger))
	if err := replayed.Replay(events); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	if got, want := replayed.ActionCount(), h.engine.ActionCount(); got != want {
		return fmt.Errorf("replay: %d actions, live engine has %d", got, want)
	}
	for _, live := range h.engine.Actions() {
		rebuilt, err := replayed.Action(live.ID)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if rebuilt.Executed != live.Executed {
			return fmt.Errorf("replay: action %d executed=%t, live engine has %t",
				live.ID, rebuilt.Executed, live.Executed)
		}
		a, _ := replayed.Confirmers(live.ID)
		b, _ := h.engine.Confirmers(live.ID)
		if fmt.Sprint(a) != fmt.Sprint(b) {
			return fmt.Errorf("replay: action %d confirmers %v, live engine has %v", live.ID, a, b)
		}
	}
	return nil
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	// Validated at load time.
	return decimal.RequireFromString(s)
}

func payloadBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func formatArgs(step Step) string {
	var parts []string
	add := func(k, v string) {
		parts = append(parts, k+"="+v)
	}
	if step.Action != nil {
		add("action", fmt.Sprint(*step.Action))
	}
	switch step.Op {
	case OpSubmit:
		add("owner", step.Owner)
		add("target", step.Target)
		add("amount", parseAmount(step.Amount).String())
		if step.Payload != "" {
			add("payload", step.Payload)
		}
	case OpConfirm, OpRevoke:
		add("owner", step.Owner)
	case OpDeposit:
		add("sender", step.Sender)
		add("amount", parseAmount(step.Amount).String())
	}
	return strings.Join(parts, " ")
}

func formatResult(op string, id engine.ActionID, outcome engine.Outcome, err error) string {
	switch {
	case err != nil:
		return "error " + errorLabel(err)
	case op == OpDeposit:
		return "ok"
	case op == OpSubmit:
		return fmt.Sprintf("action=%d %s", id, outcome.Status)
	}
	return string(outcome.Status)
}

// errorLabel is the engine error code, or the message for foreign errors.
func errorLabel(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}

// tracingExecutor counts calls to the wrapped executor and optionally
// re-enters the engine from inside the first call.
type tracingExecutor struct {
	inner   engine.Executor
	reenter func(ctx context.Context) (engine.Outcome, error)

	mu         sync.Mutex
	calls      int
	reentered  bool
	reentries  []engine.Outcome
	reentryErr []string
}

// Execute implements engine.Executor.
func (x *tracingExecutor) Execute(ctx context.Context, target string, amount decimal.Decimal, payload []byte) error {
	x.mu.Lock()
	x.calls++
	fire := x.reenter != nil && !x.reentered
	x.reentered = x.reentered || fire
	x.mu.Unlock()

	if fire {
		out, err := x.reenter(ctx)
		x.mu.Lock()
		if err != nil {
			x.reentryErr = append(x.reentryErr, err.Error())
		} else {
			x.reentries = append(x.reentries, out)
		}
		x.mu.Unlock()
	}

	return x.inner.Execute(ctx, target, amount, payload)
}

// Calls returns how many times the executor was invoked.
func (x *tracingExecutor) Calls() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls
}

func (x *tracingExecutor) resetReentries() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.reentries = nil
	x.reentryErr = nil
}

func (x *tracingExecutor) takeReentries() []engine.Outcome {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := x.reentries
	x.reentries = nil
	return out
}

func (x *tracingExecutor) takeReentryErrors() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := x.reentryErr
	x.reentryErr = nil
	return out
}
