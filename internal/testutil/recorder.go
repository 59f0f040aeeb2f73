package testutil

import (
	"context"
	"sync"

	"github.com/roach88/quorum/internal/engine"
)

// Recorder is an engine.Emitter that keeps every event in memory.
//
// Unlike engine.Bus, Recorder stores events synchronously, so tests can
// inspect them right after the engine call returns.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []engine.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements engine.Emitter.
func (r *Recorder) Emit(ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Handle implements engine.Sink, so a Recorder can also sit behind a Bus.
func (r *Recorder) Handle(_ context.Context, ev engine.Event) error {
	r.Emit(ev)
	return nil
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in emission order.
func (r *Recorder) Kinds() []engine.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Count returns how many events of the given kind were recorded.
func (r *Recorder) Count(kind engine.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
