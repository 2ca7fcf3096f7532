package pairing

import (
	"context"
	"sync"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
)

// Promise is a single-assignment future. The producer resolves it
// exactly once; every Await call observes the same outcome. Cancelling
// wakes waiters with domain.ErrPairingAborted.
type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolve sets the value. Only the first Resolve or Cancel wins.
func (p *Promise[T]) Resolve(value T) bool {
	resolved := false
	p.once.Do(func() {
		p.value = value
		resolved = true
		close(p.done)
	})
	return resolved
}

// Cancel settles the promise with an error, waking all waiters.
func (p *Promise[T]) Cancel(err error) bool {
	cancelled := false
	p.once.Do(func() {
		if err == nil {
			err = domain.ErrPairingAborted
		}
		p.err = err
		cancelled = true
		close(p.done)
	})
	return cancelled
}

// Await blocks until the promise settles or ctx is done.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the promise has been resolved or cancelled.
func (p *Promise[T]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
