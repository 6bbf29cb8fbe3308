package ingest

import (
	"context"
	"errors"
	"sync"
)

// DefaultQueueCapacity bounds the in-memory event queue when no explicit
// capacity is configured.
const DefaultQueueCapacity = 10000

// ErrQueueFull is returned by TryPut when the queue is at capacity. It never
// reaches an HTTP client directly; the endpoint reports it through the
// accepted count instead.
var ErrQueueFull = errors.New("event queue full")

// Queue is a fixed-capacity FIFO between ingest handlers (producers) and the
// consumer pool. Inserts never block, removals do. The queue is the only
// synchronization point between the two sides; callers need no locking of
// their own.
//
// Each accepted event carries a pending-completion mark: TryPut raises it,
// MarkDone lowers it, Drain waits for all of them. Only shutdown uses this.
type Queue struct {
	items   chan Event
	pending sync.WaitGroup
}

// NewQueue creates a queue holding at most capacity events. Non-positive
// capacities fall back to DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{items: make(chan Event, capacity)}
}

// TryPut appends e without blocking. Returns ErrQueueFull when at capacity;
// the queue never exceeds its capacity.
func (q *Queue) TryPut(e Event) error {
	q.pending.Add(1)
	select {
	case q.items <- e:
		return nil
	default:
		q.pending.Done()
		return ErrQueueFull
	}
}

// Get removes the oldest event, blocking until one is available or ctx is
// cancelled.
func (q *Queue) Get(ctx context.Context) (Event, error) {
	select {
	case e := <-q.items:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MarkDone records that a previously removed event has been fully processed.
func (q *Queue) MarkDone() {
	q.pending.Done()
}

// Drain blocks until every accepted event has been marked done.
func (q *Queue) Drain() {
	q.pending.Wait()
}

// Depth is a snapshot of the number of queued events.
func (q *Queue) Depth() int {
	return len(q.items)
}

// Capacity is the fixed maximum depth.
func (q *Queue) Capacity() int {
	return cap(q.items)
}
