package scraper

import (
	"sort"
	"sync"
	"time"
)

const (
	defaultUnhealthyAfter = 5
	defaultResponseWindow = 100
)

// HealthStatus is the ops view of one scraper.
type HealthStatus struct {
	Name                string        `json:"name"`
	Healthy             bool          `json:"healthy"`
	CircuitState        State         `json:"circuit_state"`
	TotalRequests       int64         `json:"total_requests"`
	TotalFailures       int64         `json:"total_failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	SuccessRate         float64       `json:"success_rate"`
	AverageResponseTime time.Duration `json:"average_response_time_ns"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastFailure         time.Time     `json:"last_failure,omitempty"`
}

// HealthOption customises a HealthMonitor.
type HealthOption func(*HealthMonitor)

// WithUnhealthyAfter sets the consecutive-failure streak that marks a source unhealthy.
func WithUnhealthyAfter(n int) HealthOption {
	return func(m *HealthMonitor) {
		if n > 0 {
			m.unhealthyAfter = n
		}
	}
}

// WithResponseWindow sets how many recent response times feed the average.
func WithResponseWindow(n int) HealthOption {
	return func(m *HealthMonitor) {
		if n > 0 {
			m.window = n
		}
	}
}

type sourceStats struct {
	total       int64
	failures    int64
	consecutive int
	samples     []time.Duration
	next        int
	lastSuccess time.Time
	lastFailure time.Time
}

func (s *sourceStats) addSample(d time.Duration, window int) {
	if len(s.samples) < window {
		s.samples = append(s.samples, d)
		return
	}
	s.samples[s.next] = d
	s.next = (s.next + 1) % window
}

func (s *sourceStats) average() time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range s.samples {
		sum += d
	}
	return sum / time.Duration(len(s.samples))
}

// HealthMonitor aggregates scrape outcomes per source name.
// It is a passive recorder and safe for concurrent use.
type HealthMonitor struct {
	unhealthyAfter int
	window         int

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	stats    map[string]*sourceStats
}

// NewHealthMonitor creates an empty monitor.
func NewHealthMonitor(opts ...HealthOption) *HealthMonitor {
	m := &HealthMonitor{
		unhealthyAfter: defaultUnhealthyAfter,
		window:         defaultResponseWindow,
		breakers:       make(map[string]*CircuitBreaker),
		stats:          make(map[string]*sourceStats),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterScraper binds name to cb. A second registration replaces the breaker and keeps the counters.
func (m *HealthMonitor) RegisterScraper(name string, cb *CircuitBreaker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[name] = cb
	if _, ok := m.stats[name]; !ok {
		m.stats[name] = &sourceStats{}
	}
}

// Breaker returns the breaker registered under name.
func (m *HealthMonitor) Breaker(name string) (*CircuitBreaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cb, ok := m.breakers[name]
	return cb, ok
}

// RecordSuccess records one successful scrape.
func (m *HealthMonitor) RecordSuccess(name string, responseTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.statsFor(name)
	s.total++
	s.consecutive = 0
	s.lastSuccess = time.Now()
	s.addSample(responseTime, m.window)
}

// RecordFailure records one failed scrape.
func (m *HealthMonitor) RecordFailure(name string, responseTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.statsFor(name)
	s.total++
	s.failures++
	s.consecutive++
	s.lastFailure = time.Now()
	s.addSample(responseTime, m.window)
}

// HealthStatus returns nil when name was never registered.
func (m *HealthMonitor) HealthStatus(name string) *HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cb, ok := m.breakers[name]
	if !ok {
		return nil
	}
	status := m.build(name, cb)
	return &status
}

// AllHealthStatuses returns a snapshot of every registered source.
func (m *HealthMonitor) AllHealthStatuses() map[string]HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]HealthStatus, len(m.breakers))
	for name, cb := range m.breakers {
		out[name] = m.build(name, cb)
	}
	return out
}

// AllHealthy is true iff every registered source is healthy.
func (m *HealthMonitor) AllHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, cb := range m.breakers {
		if !m.build(name, cb).Healthy {
			return false
		}
	}
	return true
}

// Names returns the registered source names in sorted order.
func (m *HealthMonitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// statsFor must be called with mu held for writing.
func (m *HealthMonitor) statsFor(name string) *sourceStats {
	s, ok := m.stats[name]
	if !ok {
		s = &sourceStats{}
		m.stats[name] = s
	}
	return s
}

func (m *HealthMonitor) build(name string, cb *CircuitBreaker) HealthStatus {
	s, ok := m.stats[name]
	if !ok {
		s = &sourceStats{}
	}

	state := cb.State()
	rate := 1.0
	if s.total > 0 {
		rate = float64(s.total-s.failures) / float64(s.total)
	}

	return HealthStatus{
		Name:                name,
		Healthy:             state != StateOpen && s.consecutive < m.unhealthyAfter,
		CircuitState:        state,
		TotalRequests:       s.total,
		TotalFailures:       s.failures,
		ConsecutiveFailures: s.consecutive,
		SuccessRate:         rate,
		AverageResponseTime: s.average(),
		LastSuccess:         s.lastSuccess,
		LastFailure:         s.lastFailure,
	}
}
