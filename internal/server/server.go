// Package server builds the Kratos HTTP and gRPC servers.
package server

import (
	"RateLane/pkg/metrics"
	"RateLane/pkg/scraper"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(
	NewHTTPServer,
	NewGRPCServer,
	NewHealthReporter,
	NewMetricsRegistry,
	metrics.NewRateMetrics,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
)

// NewMetricsRegistry creates the registry served on /metrics, with the
// scraper health collector attached.
func NewMetricsRegistry(monitor *scraper.HealthMonitor) *prometheus.Registry {
	reg := metrics.NewRegistry()
	reg.MustRegister(metrics.NewHealthCollector(monitor))
	return reg
}
