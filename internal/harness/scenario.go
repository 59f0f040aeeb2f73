package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/quorum/internal/engine"
)

// Scenario defines a conformance test scenario.
// A scenario configures an engine, drives it through a sequence of steps,
// and asserts on the final state and the emitted events.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Owners and Threshold configure the owner registry.
	Owners    []string `yaml:"owners"`
	Threshold int      `yaml:"threshold"`

	// Executor selects and scripts the action executor.
	Executor ExecutorSpec `yaml:"executor,omitempty"`

	// Steps are the operations to perform, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final engine state and event log.
	Assertions []Assertion `yaml:"assertions"`
}

// ExecutorSpec configures the executor used for a scenario.
type ExecutorSpec struct {
	// Kind is "script" (default) or "treasury".
	Kind string `yaml:"kind,omitempty"`

	// Outcomes scripts the first attempts of a script executor: "ok" or
	// "fail". Attempts beyond the list succeed.
	Outcomes []string `yaml:"outcomes,omitempty"`

	// Reenter, if set, makes the first executor call try to execute this
	// action again from inside the call.
	Reenter *int64 `yaml:"reenter,omitempty"`
}

// Executor kinds.
const (
	ExecutorScript   = "script"
	ExecutorTreasury = "treasury"
)

// Script outcomes.
const (
	OutcomeOK   = "ok"
	OutcomeFail = "fail"
)

// Step is one engine operation.
//
// Which fields apply depends on Op:
//
//	submit    owner, target, amount, payload
//	confirm   action, owner
//	revoke    action, owner
//	execute   action
//	deposit   sender, amount
type Step struct {
	Op      string `yaml:"op"`
	Owner   string `yaml:"owner,omitempty"`
	Action  *int64 `yaml:"action,omitempty"`
	Target  string `yaml:"target,omitempty"`
	Amount  string `yaml:"amount,omitempty"`
	Payload string `yaml:"payload,omitempty"`
	Sender  string `yaml:"sender,omitempty"`

	// Expect, if set, checks the step's result. A step without Expect must
	// succeed without a precondition error.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpSubmit  = "submit"
	OpConfirm = "confirm"
	OpRevoke  = "revoke"
	OpExecute = "execute"
	OpDeposit = "deposit"
)

// Expect specifies the expected result of a step.
type Expect struct {
	// Status is the expected attempt status (below_threshold,
	// already_executed, executed, failed).
	Status string `yaml:"status,omitempty"`

	// Error is the expected engine error code, e.g. UNAUTHORIZED.
	Error string `yaml:"error,omitempty"`

	// Action is the expected ID assigned by a submit.
	Action *int64 `yaml:"action,omitempty"`
}

// Assertion validates final engine state.
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	Action *int64 `yaml:"action,omitempty"`
	Owner  string `yaml:"owner,omitempty"`
	Kind   string `yaml:"kind,omitempty"`
	Value  *bool  `yaml:"value,omitempty"`
	Count  *int   `yaml:"count,omitempty"`
	Amount string `yaml:"amount,omitempty"`
}

// Assertion type constants.
const (
	AssertExecuted      = "executed"       // action, value
	AssertConfirmations = "confirmations"  // action, count
	AssertConfirmedBy   = "confirmed_by"   // action, owner, value
	AssertExecutorCalls = "executor_calls" // count
	AssertEventCount    = "event_count"    // count, optional kind
	AssertActionCount   = "action_count"   // count
	AssertBalance       = "balance"        // amount (treasury only)
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml/.yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
// Registry rules (threshold range, duplicates) are left to engine.NewRegistry.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Owners) == 0 {
		return fmt.Errorf("owners list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := validateExecutor(&s.Executor); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s.Executor.Kind); err != nil {
			return err
		}
	}

	return nil
}

func validateExecutor(x *ExecutorSpec) error {
	switch x.Kind {
	case "":
		x.Kind = ExecutorScript
	case ExecutorScript, ExecutorTreasury:
	default:
		return fmt.Errorf("executor: unknown kind %q", x.Kind)
	}

	if x.Kind == ExecutorTreasury && len(x.Outcomes) > 0 {
		return fmt.Errorf("executor: outcomes apply to the script executor only")
	}
	for i, o := range x.Outcomes {
		if o != OutcomeOK && o != OutcomeFail {
			return fmt.Errorf("executor.outcomes[%d]: want %q or %q, got %q", i, OutcomeOK, OutcomeFail, o)
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	requireAction := func() error {
		if s.Action == nil {
			return fmt.Errorf("steps[%d]: action is required for %s", index, s.Op)
		}
		return nil
	}
	requireOwner := func() error {
		if s.Owner == "" {
			return fmt.Errorf("steps[%d]: owner is required for %s", index, s.Op)
		}
		return nil
	}

	switch s.Op {
	case OpSubmit:
		if err := requireOwner(); err != nil {
			return err
		}
		if err := validateAmount(index, s.Amount); err != nil {
			return err
		}
	case OpConfirm, OpRevoke:
		if err := requireAction(); err != nil {
			return err
		}
		if err := requireOwner(); err != nil {
			return err
		}
	case OpExecute:
		if err := requireAction(); err != nil {
			return err
		}
	case OpDeposit:
		if s.Amount == "" {
			return fmt.Errorf("steps[%d]: amount is required for deposit", index)
		}
		if err := validateAmount(index, s.Amount); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}

	if s.Expect != nil {
		if s.Expect.Status != "" && s.Expect.Error != "" {
			return fmt.Errorf("steps[%d].expect: status and error are mutually exclusive", index)
		}
		if s.Expect.Status != "" && s.Op == OpDeposit {
			return fmt.Errorf("steps[%d].expect: deposit has no status", index)
		}
		if s.Expect.Action != nil && s.Op != OpSubmit {
			return fmt.Errorf("steps[%d].expect: action applies to submit only", index)
		}
	}
	return nil
}

// validateAmount accepts an empty amount (zero) or a decimal string.
// Negative amounts are left for the engine to reject.
func validateAmount(index int, amount string) error {
	if amount == "" {
		return nil
	}
	if _, err := decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("steps[%d]: invalid amount %q: %w", index, amount, err)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, executorKind string) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	missing := func(field string) error {
		return fmt.Errorf("assertions[%d]: %s is required for %s", index, field, a.Type)
	}

	switch a.Type {
	case AssertExecuted, AssertConfirmations, AssertConfirmedBy:
		if a.Action == nil {
			return missing("action")
		}
	}

	switch a.Type {
	case AssertExecuted:
		if a.Value == nil {
			return missing("value")
		}
	case AssertConfirmedBy:
		if a.Owner == "" {
			return missing("owner")
		}
		if a.Value == nil {
			return missing("value")
		}
	case AssertConfirmations, AssertExecutorCalls, AssertActionCount:
		if a.Count == nil {
			return missing("count")
		}
	case AssertEventCount:
		if a.Count == nil {
			return missing("count")
		}
		if a.Kind != "" && !knownKind(engine.EventKind(a.Kind)) {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
	case AssertBalance:
		if a.Amount == "" {
			return missing("amount")
		}
		if executorKind != ExecutorTreasury {
			return fmt.Errorf("assertions[%d]: balance requires the treasury executor", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownKind(k engine.EventKind) bool {
	switch k {
	case engine.EventDeposited, engine.EventSubmitted, engine.EventConfirmed,
		engine.EventRevoked, engine.EventExecuted, engine.EventExecutionFailed:
		return true
	}
	return false
}
