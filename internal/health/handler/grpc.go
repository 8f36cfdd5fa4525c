// Package handler reports readiness over grpc.health.v1 and to the HTTP health endpoint.
package handler

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the grpc.health.v1 service name answered besides the empty (whole server) name.
const ServiceName = "dsodesk"

const checkTimeout = 2 * time.Second

// Pinger checks the store is reachable (store.Store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks the policy engine evaluates (engine.OPAAuthorizer).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health. Watch and List are left unimplemented.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger Pinger
	policy PolicyChecker
}

// NewServer returns a health server. Either dependency may be nil; its check is then skipped.
func NewServer(pinger Pinger, policy PolicyChecker) *Server {
	return &Server{pinger: pinger, policy: policy}
}

// Ready runs every readiness check and returns the first failure.
func (s *Server) Ready(ctx context.Context) error {
	if s.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if s.policy != nil {
		policyCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.policy.HealthCheck(policyCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("policy engine: %w", err)
		}
	}
	return nil
}

// Check answers SERVING when Ready passes and NOT_SERVING otherwise. Unknown services are NotFound.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if err := s.Ready(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
