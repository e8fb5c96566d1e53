package scraper

import (
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed - requests pass through, failures are counted.
	StateClosed State = iota
	// StateOpen - requests fail fast until the cool-down elapses.
	StateOpen
	// StateHalfOpen - probing whether the source recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig is immutable once the breaker is built.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	Timeout          time.Duration
	SuccessThreshold int
}

// BreakerMetrics is a point-in-time copy of the breaker's counters.
type BreakerMetrics struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	LastStateChange time.Time `json:"last_state_change"`
}

// BreakerOption customises a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// CircuitBreaker isolates one upstream source.
type CircuitBreaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	openedAt        time.Time
	lastFailure     time.Time
	lastStateChange time.Time
}

// NewCircuitBreaker creates a breaker in the CLOSED state. Thresholds below 1 are raised to 1.
func NewCircuitBreaker(cfg BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}

	cb := &CircuitBreaker{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.lastStateChange = cb.now()
	return cb
}

// Name returns the configured breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// Config returns the breaker configuration.
func (cb *CircuitBreaker) Config() BreakerConfig {
	return cb.cfg
}

// CanAttempt reports whether a call may proceed.
// An expired OPEN breaker moves to HALF_OPEN here and admits the caller.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Timeout {
			return false
		}
		cb.setState(StateHalfOpen)
		return true
	default:
		return true
	}
}

// RecordSuccess records one successful attempt sequence.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure records one failed attempt sequence.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.lastFailure = now

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.trip(now)
		}
	case StateHalfOpen:
		cb.failures++
		cb.trip(now)
	case StateOpen:
		// a late result from a call admitted before the breaker opened
		cb.failures++
	}
}

// State returns the current state without evaluating the cool-down.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the failures counted since the last reset.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the breaker back to CLOSED and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.lastFailure = time.Time{}
}

// Metrics returns a copy of the breaker's counters.
func (cb *CircuitBreaker) Metrics() BreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerMetrics{
		Name:            cb.cfg.Name,
		State:           cb.state,
		FailureCount:    cb.failures,
		SuccessCount:    cb.successes,
		LastFailureTime: cb.lastFailure,
		LastStateChange: cb.lastStateChange,
	}
}

func (cb *CircuitBreaker) trip(now time.Time) {
	cb.setState(StateOpen)
	cb.openedAt = now
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(s State) {
	switch s {
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
	case StateHalfOpen:
		cb.successes = 0
	}
	cb.state = s
	cb.lastStateChange = cb.now()
}
