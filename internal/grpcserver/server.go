// Package grpcserver runs the gRPC listener that exposes service health.
package grpcserver

import (
	"log"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"chat-core/internal/observability"
)

// Server wraps a grpc.Server with the standard health service.
type Server struct {
	srv     *grpc.Server
	health  *health.Server
	service string
}

// New builds a server that reports service as SERVING until Stop.
func New(service string) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	return &Server{srv: srv, health: hs, service: service}
}

// Serve blocks accepting connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	log.Printf("grpc: listening on %s", lis.Addr())
	return s.srv.Serve(lis)
}

// Stop flips health to NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
