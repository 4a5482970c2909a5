// Package breaker is a small circuit breaker used to stop hammering a failing
// dependency, such as the blob store during a publication tick.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker
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
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpenState is returned when the CircuitBreaker rejects a call.
var ErrOpenState = errors.New("circuit breaker is open")

// Settings configures the CircuitBreaker
type Settings struct {
	Name        string
	MaxRequests uint32        // probes allowed while half-open
	Timeout     time.Duration // open period before probing
	ReadyToTrip func(counts Counts) bool
	// IsFailure decides which errors count against the breaker; nil counts
	// every error except context cancellation.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from State, to State)
}

// Counts holds the numbers of requests and their results in the current
// generation.
type Counts struct {
	Requests             uint32
	TotalFailures        uint32
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
}

func (c *Counts) onSuccess() {
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker is a closed/open/half-open state machine.
type CircuitBreaker struct {
	st  Settings
	now func() time.Time

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// NewCircuitBreaker creates a new CircuitBreaker
func NewCircuitBreaker(st Settings) *CircuitBreaker {
	if st.MaxRequests == 0 {
		st.MaxRequests = 1
	}
	if st.Timeout == 0 {
		st.Timeout = 30 * time.Second
	}
	if st.ReadyToTrip == nil {
		st.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	if st.IsFailure == nil {
		st.IsFailure = defaultIsFailure
	}
	return &CircuitBreaker{st: st, now: time.Now}
}

// WithClock replaces the breaker's time source.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

func (cb *CircuitBreaker) Name() string {
	return cb.st.Name
}

// State returns the current state of the CircuitBreaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(cb.now())
}

func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && !now.Before(cb.expiry) {
		cb.setState(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) setState(to State, now time.Time) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.counts = Counts{}
	if to == StateOpen {
		cb.expiry = now.Add(cb.st.Timeout)
	}
	if cb.st.OnStateChange != nil {
		cb.st.OnStateChange(cb.st.Name, from, to)
	}
}

// before admits or rejects a call.
func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.currentState(cb.now()) {
	case StateOpen:
		return ErrOpenState
	case StateHalfOpen:
		if cb.counts.Requests >= cb.st.MaxRequests {
			return ErrOpenState
		}
	}
	cb.counts.Requests++
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.now()
	if err != nil && cb.st.IsFailure(err) {
		cb.counts.onFailure()
		switch cb.state {
		case StateClosed:
			if cb.st.ReadyToTrip(cb.counts) {
				cb.setState(StateOpen, now)
			}
		case StateHalfOpen:
			cb.setState(StateOpen, now)
		}
		return
	}
	cb.counts.onSuccess()
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed, now)
	}
}

// Do runs fn unless the breaker is open, and records its outcome.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.after(err)
	return err
}
