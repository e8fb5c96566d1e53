// Package metrics exposes Prometheus instrumentation for scrapes, fallbacks and source health.
package metrics

import (
	"time"

	pkgerrors "RateLane/pkg/errors"
	"RateLane/pkg/scraper"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ratelane"

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// RateMetrics holds the counters fed by the rate usecases.
// A nil *RateMetrics is valid and records nothing.
type RateMetrics struct {
	ScrapesTotal       *prometheus.CounterVec
	ScrapeDuration     *prometheus.HistogramVec
	SnapshotsTotal     *prometheus.CounterVec
	HistoryWritesTotal *prometheus.CounterVec
}

// NewRateMetrics registers the rate metrics on reg.
func NewRateMetrics(reg prometheus.Registerer) *RateMetrics {
	factory := promauto.With(reg)
	return &RateMetrics{
		ScrapesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scrapes_total",
				Help:      "Scrape calls by source, outcome and error kind",
			},
			[]string{"source", "outcome", "kind"},
		),
		ScrapeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scrape_duration_seconds",
				Help:      "Wall time of a scrape including retries",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"source"},
		),
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "Snapshots served by source and origin (live, cached, cache, history, static)",
			},
			[]string{"source", "origin"},
		),
		HistoryWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_writes_total",
				Help:      "Durable history writes by source and outcome (success, transient, failure)",
			},
			[]string{"source", "outcome"},
		),
	}
}

// ObserveScrape records one Scrape result.
func (m *RateMetrics) ObserveScrape(source string, success bool, kind string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
		if kind == scraper.KindCircuitOpen.String() {
			outcome = "rejected"
		}
	}
	m.ScrapesTotal.WithLabelValues(source, outcome, kind).Inc()
	if outcome != "rejected" {
		m.ScrapeDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

// ObserveSnapshot records where a served snapshot came from.
func (m *RateMetrics) ObserveSnapshot(source, origin string) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(source, origin).Inc()
}

// ObserveHistoryWrite records a durable history write. Failures a later
// write may get past (deadlocks, lost connections, timeouts) are labelled
// "transient".
func (m *RateMetrics) ObserveHistoryWrite(source string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case pkgerrors.IsTransient(err):
		outcome = "transient"
	case err != nil:
		outcome = "failure"
	}
	m.HistoryWritesTotal.WithLabelValues(source, outcome).Inc()
}
