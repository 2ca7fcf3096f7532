// Package tsqueue provides a thread-safe multi-producer FIFO queue with
// blocking consumers and close-to-wake semantics.
package tsqueue

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Push after the queue has been closed.
// Closure is the normal end-of-life signal for consumers, not an error.
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO queue safe for concurrent producers and consumers.
// The zero value is not usable; use New.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

// New creates an empty open queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. It never blocks; after Close it fails fast
// with ErrClosed.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return nil
}

// Pop blocks until an item is available or the queue is closed and
// drained. The second return value is false only on closure.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.popLocked()
}

// PopTimeout behaves like Pop but gives up after d, returning false
// without closing the queue.
func (q *Queue[T]) PopTimeout(d time.Duration) (T, bool) {
	deadline := time.Now().Add(d)

	// sync.Cond has no timed wait; poke waiters when the deadline fires.
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		if !time.Now().Before(deadline) {
			var zero T
			return zero, false
		}
		q.cond.Wait()
	}
	return q.popLocked()
}

// Close marks the queue closed and wakes all blocked consumers.
// Items already queued can still be drained with Pop.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) popLocked() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}
