package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"booking-reconciler/internal/api/grpc/interceptor"
	"booking-reconciler/internal/logger"
)

// ServiceName is the health-check service name probes ask about. The empty
// name reports overall server health and follows it.
const ServiceName = "reconciler.v1.Reconciler"

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// HealthMonitor keeps the gRPC health status in line with the store.
type HealthMonitor struct {
	server   *health.Server
	ping     Pinger
	interval time.Duration
	timeout  time.Duration
}

func NewHealthMonitor(ping Pinger, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthMonitor{
		server:   health.NewServer(),
		ping:     ping,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Check pings once and publishes the result.
func (m *HealthMonitor) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if m.ping != nil {
		pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		if err := m.ping(pingCtx); err != nil {
			logger.Warn("Health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(ServiceName, status)
	return status
}

// Run re-checks on every tick until ctx is done, then marks the server as
// shutting down.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// NewServer builds the gRPC server exposing health and reflection.
func NewServer(monitor *HealthMonitor) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(interceptor.Unary()),
	)
	healthpb.RegisterHealthServer(s, monitor.server)

	// Register reflection service for grpcurl
	reflection.Register(s)
	return s
}
