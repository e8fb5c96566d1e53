package metrics

import (
	"RateLane/pkg/scraper"

	"github.com/prometheus/client_golang/prometheus"
)

// HealthSource is satisfied by *scraper.HealthMonitor.
type HealthSource interface {
	AllHealthStatuses() map[string]scraper.HealthStatus
}

// HealthCollector reads the monitor on every scrape of /metrics.
type HealthCollector struct {
	source HealthSource

	healthy     *prometheus.Desc
	state       *prometheus.Desc
	consecutive *prometheus.Desc
	successRate *prometheus.Desc
	avgLatency  *prometheus.Desc
	requests    *prometheus.Desc
}

// NewHealthCollector creates a collector over source.
func NewHealthCollector(source HealthSource) *HealthCollector {
	labels := []string{"source"}
	return &HealthCollector{
		source:      source,
		healthy:     prometheus.NewDesc(namespace+"_source_healthy", "1 when the source is healthy", labels, nil),
		state:       prometheus.NewDesc(namespace+"_breaker_state", "Breaker state: 0=closed, 1=open, 2=half-open", labels, nil),
		consecutive: prometheus.NewDesc(namespace+"_source_consecutive_failures", "Current failure streak", labels, nil),
		successRate: prometheus.NewDesc(namespace+"_source_success_rate", "Lifetime success ratio", labels, nil),
		avgLatency:  prometheus.NewDesc(namespace+"_source_avg_response_seconds", "Mean of recent response times", labels, nil),
		requests:    prometheus.NewDesc(namespace+"_source_requests_total", "Recorded scrape outcomes", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *HealthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.healthy
	ch <- c.state
	ch <- c.consecutive
	ch <- c.successRate
	ch <- c.avgLatency
	ch <- c.requests
}

// Collect implements prometheus.Collector.
func (c *HealthCollector) Collect(ch chan<- prometheus.Metric) {
	for name, st := range c.source.AllHealthStatuses() {
		healthy := 0.0
		if st.Healthy {
			healthy = 1
		}
		ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy, name)
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(st.CircuitState), name)
		ch <- prometheus.MustNewConstMetric(c.consecutive, prometheus.GaugeValue, float64(st.ConsecutiveFailures), name)
		ch <- prometheus.MustNewConstMetric(c.successRate, prometheus.GaugeValue, st.SuccessRate, name)
		ch <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, st.AverageResponseTime.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(st.TotalRequests), name)
	}
}
