// Package api exposes the live engine to its supervisor over gRPC. Only the
// standard health service is served: SERVING while a trading session runs,
// NOT_SERVING otherwise.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the trading engine.
const ServiceName = "kitetrader.Engine"

// Server hosts the gRPC health service.
type Server struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	log    *slog.Logger

	mu      sync.Mutex
	serving bool
}

// NewServer creates a Server that will listen on addr. Both the overall and
// the engine service start as NOT_SERVING.
func NewServer(addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		addr:   addr,
		grpc:   gs,
		health: hs,
		log:    log.With("component", "api"),
	}
}

// SetServing updates the reported status.
func (s *Server) SetServing(serving bool) {
	s.mu.Lock()
	s.serving = serving
	s.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	s.log.Info("health status", "status", status.String())
}

// Serving reports the last status set.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}

// Start listens on the configured address and serves in the background
// until ctx is cancelled. It returns the bound address.
func (s *Server) Start(ctx context.Context) (net.Addr, error) {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			s.log.Error("grpc serve", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	s.log.Info("health service listening", "addr", lis.Addr().String())
	return lis.Addr(), nil
}
