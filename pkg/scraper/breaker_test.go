package scraper

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfig{
		Name:             "bcv",
		FailureThreshold: 3,
		Timeout:          time.Minute,
		SuccessThreshold: 2,
	}, WithClock(clock.Now))
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State())
		assert.True(t, cb.CanAttempt())
	}
	assert.Equal(t, 2, cb.FailureCount())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanAttempt())

	clock.Advance(59 * time.Second)
	assert.False(t, cb.CanAttempt())
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCountWhenClosed(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.FailureCount())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	clock.Advance(time.Minute)
	assert.True(t, cb.CanAttempt())
	assert.Equal(t, StateHalfOpen, cb.State())

	// repeated checks do not move counters
	failures := cb.FailureCount()
	assert.True(t, cb.CanAttempt())
	assert.True(t, cb.CanAttempt())
	assert.Equal(t, failures, cb.FailureCount())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.Advance(time.Minute)
	assert.True(t, cb.CanAttempt())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanAttempt())

	// the cool-down restarts from the half-open failure
	clock.Advance(30 * time.Second)
	assert.False(t, cb.CanAttempt())
	clock.Advance(30 * time.Second)
	assert.True(t, cb.CanAttempt())
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.Advance(time.Minute)
	assert.True(t, cb.CanAttempt())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
	assert.Equal(t, 0, cb.Metrics().SuccessCount)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newTestBreaker(newFakeClock())
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
	assert.True(t, cb.CanAttempt())
	assert.True(t, cb.Metrics().LastFailureTime.IsZero())
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	cb.RecordFailure()
	m := cb.Metrics()

	assert.Equal(t, "bcv", m.Name)
	assert.Equal(t, StateClosed, m.State)
	assert.Equal(t, 1, m.FailureCount)
	assert.Equal(t, clock.Now(), m.LastFailureTime)
}

func TestCircuitBreaker_ClampsThresholds(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "x"})
	assert.Equal(t, 1, cb.Config().FailureThreshold)
	assert.Equal(t, 1, cb.Config().SuccessThreshold)

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	// zero timeout probes immediately
	assert.True(t, cb.CanAttempt())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_ConcurrentUse(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "p2p", FailureThreshold: 1000, Timeout: time.Minute, SuccessThreshold: 1})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				cb.CanAttempt()
				cb.RecordFailure()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, cb.FailureCount())
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN(9)", State(9).String())
}
