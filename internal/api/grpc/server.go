// Package grpcapi serves gRPC health and reflection for the hub.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"dispatch-copilot-service/internal/observability"
	"dispatch-copilot-service/internal/observability/metrics"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "dispatch.copilot.Hub"

// Server wraps the gRPC server and its health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a gRPC server with health checks, reflection and logging interceptors.
func New(m *metrics.Metrics) *Server {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	return &Server{grpc: server, health: healthServer}
}

// SetServing flips the health status of the overall server and the hub service.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
	return s.grpc.Serve(lis)
}

// Stop marks the server not serving and drains in-flight calls.
func (s *Server) Stop() {
	log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
