package queue

import (
	"context"
	"sync"
)

// compactThreshold is the number of consumed slots after which the backing
// slice is reallocated to release memory.
const compactThreshold = 1024

// Queue is an unbounded, mutex-protected FIFO.
//
// The zero value is not usable; create queues with New.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int

	// unfinished counts pushed items not yet acknowledged with TaskDone.
	unfinished int
	closed     bool

	// ready holds at most one wake-up token. It is refilled after every Pop
	// that leaves items behind, so no waiter sleeps while the queue is non-empty.
	ready chan struct{}
	done  chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends v to the tail of the queue. It never blocks.
// Items pushed after Close are dropped.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.unfinished++
	q.mu.Unlock()

	q.signal()
}

// Pop removes and returns the head of the queue, waiting until an item is
// available.
//
// Returns:
//   - T: The oldest item
//   - error: ctx.Err() when the context ends first, or ErrClosed when the
//     queue is closed and empty
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.done:
		case <-q.ready:
		}
	}
}

// TryPop removes and returns the head of the queue without waiting.
// ok is false when the queue is empty.
func (q *Queue[T]) TryPop() (v T, ok bool) {
	q.mu.Lock()
	if q.head == len(q.items) {
		q.mu.Unlock()
		return v, false
	}

	v = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	q.compactLocked()
	remaining := len(q.items) - q.head
	q.mu.Unlock()

	if remaining > 0 {
		q.signal()
	}
	return v, true
}

// Flush discards every queued item and returns how many were dropped.
// Discarded items count as done.
func (q *Queue[T]) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items) - q.head
	q.items = nil
	q.head = 0
	q.unfinished -= n
	if q.unfinished < 0 {
		q.unfinished = 0
	}
	return n
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// TaskDone acknowledges that a popped item has been fully handled.
func (q *Queue[T]) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished > 0 {
		q.unfinished--
	}
}

// Unfinished returns the number of items pushed but not yet acknowledged,
// whether still queued or popped and in progress.
func (q *Queue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Close wakes every waiting Pop. Items already queued can still be popped.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// signal leaves a wake-up token for one waiter, if none is pending.
func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// compactLocked drops consumed slots once enough have accumulated.
// Caller must hold q.mu.
func (q *Queue[T]) compactLocked() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head >= compactThreshold && q.head*2 >= len(q.items) {
		remaining := make([]T, len(q.items)-q.head)
		copy(remaining, q.items[q.head:])
		q.items = remaining
		q.head = 0
	}
}
