// Package server builds the gRPC server that exposes grpc.health.v1.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "dsodesk/internal/health/handler"
	"dsodesk/internal/server/interceptors"
)

// healthCheckMethod is logged only on failure; orchestrators call it constantly.
const healthCheckMethod = "/grpc.health.v1.Health/Check"

// NewGRPCServer returns a gRPC server with tracing, logging and panic recovery that serves the given
// health checker. The caller owns Serve and GracefulStop.
func NewGRPCServer(health *healthhandler.Server, log *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryUnary(log),
			interceptors.LoggingUnary(log, map[string]bool{healthCheckMethod: true}),
		),
	)
	RegisterServices(s, health)
	return s
}

// RegisterServices registers every gRPC service with s.
func RegisterServices(s grpc.ServiceRegistrar, health *healthhandler.Server) {
	healthpb.RegisterHealthServer(s, health)
}
