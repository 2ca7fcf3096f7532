// Package circuitbreaker guards calls against a dependency that can go
// away for extended periods, such as the container engine socket. Once
// enough consecutive calls fail the breaker opens and rejects further
// calls immediately, then probes the dependency with a limited number
// of trial calls before closing again.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without trying it.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive trial successes that
	// closes a half-open breaker.
	SuccessThreshold int
	// OpenTimeout is how long an open breaker rejects calls before
	// allowing trial calls through.
	OpenTimeout time.Duration
	// HalfOpenMax caps the trial calls in flight while half-open.
	HalfOpenMax int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		HalfOpenMax:      3,
	}
}

type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	changedAt time.Time
}

func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:       cfg,
		state:     StateClosed,
		changedAt: time.Now(),
	}
}

// Do runs fn unless the breaker is open. The fn error is passed through
// unchanged; a rejected call fails with ErrOpen.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.settle(err == nil)
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.changedAt) < b.cfg.OpenTimeout {
			return fmt.Errorf("%w for %s", ErrOpen, time.Since(b.changedAt).Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
		b.inFlight = 1
		return nil
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenMax {
			return fmt.Errorf("%w: half-open trial budget exhausted", ErrOpen)
		}
		b.inFlight++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) settle(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}

	if !ok {
		b.failures++
		b.successes = 0
		// Any half-open failure reopens; closed trips on the threshold.
		if b.state == StateHalfOpen ||
			(b.state == StateClosed && b.failures >= b.cfg.FailureThreshold) {
			b.transition(StateOpen)
		}
		return
	}

	b.failures = 0
	b.successes++
	if b.state == StateHalfOpen && b.successes >= b.cfg.SuccessThreshold {
		b.transition(StateClosed)
	}
}

// transition is called with mu held.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.state = next
	b.changedAt = time.Now()
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
}
