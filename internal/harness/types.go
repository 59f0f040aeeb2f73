package harness

import "github.com/roach88/quorum/internal/engine"

// TraceEvent records one executed step: what was asked, what the engine
// answered, and the events it emitted while doing it.
type TraceEvent struct {
	Step   int    `json:"step"` // 1-indexed
	Op     string `json:"op"`
	Args   string `json:"args"`
	Result string `json:"result"`

	Events []engine.Event `json:"events,omitempty"`

	// Reentries are the outcomes of attempts made from inside the executor.
	Reentries []engine.Outcome `json:"reentries,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one entry per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns every event in the trace, in emission order.
func (r *Result) Events() []engine.Event {
	var events []engine.Event
	for _, t := range r.Trace {
		events = append(events, t.Events...)
	}
	return events
}
