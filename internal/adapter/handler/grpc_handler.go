package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall status.
const ServiceName = "slotinventory.Inventory"

// GRPCHealthHandler reports SERVING while the store answers pings.
type GRPCHealthHandler struct {
	server   *health.Server
	store    pinger
	interval time.Duration
	logger   *zap.Logger
}

func NewGRPCHealthHandler(store pinger, interval time.Duration, logger *zap.Logger) *GRPCHealthHandler {
	return &GRPCHealthHandler{
		server:   health.NewServer(),
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

func (h *GRPCHealthHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Run probes the store every interval until ctx is done, then marks the service
// NOT_SERVING so that in-flight health watchers see the shutdown.
func (h *GRPCHealthHandler) Run(ctx context.Context) {
	h.check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *GRPCHealthHandler) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(pingCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.logger.Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
