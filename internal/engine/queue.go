package engine

import "sync"

// eventQueue holds the events a Bus has accepted but not yet delivered.
//
// Emit runs under the engine lock, so push never blocks and the backlog is
// unbounded. Two channels let a delivery loop sleep without polling: wake
// fires when events arrive or the queue is closed, and drained closes when
// a delivery pass finds the closed queue empty. After drained no event
// will ever be handed out again.
type eventQueue struct {
	mu      sync.Mutex
	backlog []Event
	closed  bool

	wake    chan struct{} // one slot; coalesces bursts of pushes
	drained chan struct{}
	once    sync.Once
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		backlog: make([]Event, 0, 64),
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
}

// push appends ev unless the queue is closed.
func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.backlog = append(q.backlog, ev)
	q.notify()
	return true
}

// pop removes the oldest event.
func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.backlog) == 0 {
		return Event{}, false
	}
	ev := q.backlog[0]
	q.backlog[0] = Event{} // release the payload
	if len(q.backlog) > 1 {
		q.backlog = q.backlog[1:]
		return ev, true
	}
	q.backlog = q.backlog[:0]
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// close refuses further pushes and wakes the delivery loop.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notify()
}

// settle is called by a delivery pass that found the queue empty, once the
// events it popped have been dispatched. It closes drained if the queue is
// closed.
func (q *eventQueue) settle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed && len(q.backlog) == 0 {
		q.once.Do(func() { close(q.drained) })
	}
}

func (q *eventQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
