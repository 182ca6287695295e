// Package grpcserver exposes the standard gRPC health service for the auth server.
package grpcserver

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-checked service name besides the empty overall name.
const ServiceName = "ips.auth"

// Health is a gRPC server carrying only grpc.health.v1.Health.
type Health struct {
	srv *grpc.Server
	hs  *health.Server
	log *zap.Logger
}

// NewHealth builds the server. Both names start NOT_SERVING.
func NewHealth(log *zap.Logger) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
		grpc.ChainStreamInterceptor(RecoverStream(log)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return &Health{srv: s, hs: hs, log: log}
}

// SetServing flips both names between SERVING and NOT_SERVING.
func (h *Health) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Serve blocks serving on lis until Stop.
func (h *Health) Serve(lis net.Listener) error {
	h.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	return h.srv.Serve(lis)
}

// Stop reports NOT_SERVING, then stops gracefully, forcing a stop when ctx ends first.
func (h *Health) Stop(ctx context.Context) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.srv.Stop()
	}
}
