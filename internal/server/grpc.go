package server

import (
	"RateLane/internal/conf"
	"RateLane/pkg/scraper"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter mirrors the scraper health monitor into the standard gRPC
// health service. The empty service name carries the aggregate status.
type HealthReporter struct {
	server  *health.Server
	monitor *scraper.HealthMonitor
	logger  *log.Helper
}

// NewHealthReporter creates a reporter and publishes the initial status.
func NewHealthReporter(monitor *scraper.HealthMonitor, logger log.Logger) *HealthReporter {
	r := &HealthReporter{
		server:  health.NewServer(),
		monitor: monitor,
		logger:  log.NewHelper(log.With(logger, "module", "server/health")),
	}
	r.Update()
	return r
}

// Update publishes the current status of every source.
func (r *HealthReporter) Update() {
	for name, st := range r.monitor.AllHealthStatuses() {
		r.server.SetServingStatus(name, servingStatus(st.Healthy))
	}
	all := r.monitor.AllHealthy()
	r.server.SetServingStatus("", servingStatus(all))
	if !all {
		r.logger.Warnw("msg", "not all sources healthy")
	}
}

// Shutdown marks every service NOT_SERVING.
func (r *HealthReporter) Shutdown() {
	r.server.Shutdown()
}

func servingStatus(healthy bool) healthpb.HealthCheckResponse_ServingStatus {
	if healthy {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// NewGRPCServer new a gRPC server exposing only the health service.
func NewGRPCServer(c *conf.Server, reporter *HealthReporter) *grpc.Server {
	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
		),
		grpc.CustomHealth(),
	}
	if c != nil && c.Grpc != nil {
		if c.Grpc.Network != "" {
			opts = append(opts, grpc.Network(c.Grpc.Network))
		}
		if c.Grpc.Addr != "" {
			opts = append(opts, grpc.Address(c.Grpc.Addr))
		}
		if c.Grpc.Timeout > 0 {
			opts = append(opts, grpc.Timeout(c.Grpc.Timeout))
		}
	}
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, reporter.server)
	return srv
}
