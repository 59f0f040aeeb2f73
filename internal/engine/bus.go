package engine

import (
	"context"
	"log/slog"
	"sync"
)

// Bus is an Emitter that buffers events and delivers them to sinks.
//
// Emit only appends to an unbounded FIFO queue, so the engine never blocks
// on delivery. Events are delivered to every sink in Seq order, either by a
// long-running Run loop or by an explicit Flush.
//
// Thread-safety model:
//   - Emit(), Subscribe(): safe from any goroutine
//   - Run() / Flush(): deliveries are serialized; at most one runs at a time
//
// ERROR HANDLING: a failing sink is logged and delivery continues with the
// next sink and the next event. Observability must never stall the engine.
type Bus struct {
	queue  *eventQueue
	logger *slog.Logger

	mu    sync.RWMutex
	sinks []Sink

	deliver sync.Mutex // serializes delivery between Run and Flush
}

// NewBus creates a bus delivering to the given sinks.
func NewBus(logger *slog.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		queue:  newEventQueue(),
		logger: logger,
		sinks:  append([]Sink(nil), sinks...),
	}
}

// Subscribe adds a sink. It receives events emitted after delivery resumes.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Emit implements Emitter. Events emitted after Close are dropped.
func (b *Bus) Emit(ev Event) {
	if !b.queue.push(ev) {
		b.logger.Warn("event dropped: bus closed", "seq", ev.Seq, "kind", ev.Kind)
	}
}

// Pending returns the number of undelivered events.
func (b *Bus) Pending() int {
	return b.queue.len()
}

// Flush delivers every queued event from the calling goroutine.
// Returns ctx.Err() if the context is cancelled before the queue drains.
func (b *Bus) Flush(ctx context.Context) error {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := b.queue.pop()
		if !ok {
			b.queue.settle()
			return nil
		}
		b.dispatch(ctx, ev)
	}
}

// Run delivers events until ctx is cancelled or Close is called and the
// queue has drained.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (b *Bus) Run(ctx context.Context) error {
	b.logger.Info("event bus starting")

	for {
		if err := b.Flush(ctx); err != nil {
			b.logger.Info("event bus stopping: context cancelled")
			return err
		}

		select {
		case <-ctx.Done():
			b.logger.Info("event bus stopping: context cancelled")
			return ctx.Err()
		case <-b.queue.drained:
			b.logger.Info("event bus stopping: closed")
			return nil
		case <-b.queue.wake:
		}
	}
}

// Close stops accepting events. Already queued events can still be
// delivered by Run or Flush; Drained reports when they have been.
func (b *Bus) Close() {
	b.queue.close()
}

// Drained returns a channel that is closed once the bus is closed and
// every accepted event has been handed to the sinks.
func (b *Bus) Drained() <-chan struct{} {
	return b.queue.drained
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Handle(ctx, ev); err != nil {
			b.logger.Error("event delivery failed",
				"seq", ev.Seq,
				"kind", ev.Kind,
				"action_id", ev.ActionID,
				"error", err,
			)
		}
	}
}
