package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the billing core.
const ServiceName = "course.billing.Payment"

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// HealthHandler keeps the gRPC health status in line with the store and
// processor dependencies.
type HealthHandler struct {
	server  *health.Server
	checks  map[string]Check
	timeout time.Duration
	logger  *zap.Logger
}

func NewHealthHandler(server *health.Server, checks map[string]Check, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		server:  server,
		checks:  checks,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Update runs every check once and publishes the combined status.
func (h *HealthHandler) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			h.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	return status
}

// Run updates the status every interval until ctx is done.
func (h *HealthHandler) Run(ctx context.Context, interval time.Duration) {
	h.Update(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Update(ctx)
		}
	}
}
