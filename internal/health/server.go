// Package health reports runner liveness over the standard gRPC health
// protocol.
package health

import (
	"context"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/stagingmanager/internal/logging"
)

// Server tracks one status per runner. The overall ("") status is serving
// only while every runner is.
type Server struct {
	address string
	logger  logging.Logger
	hs      *health.Server

	mu       sync.Mutex
	services map[string]bool
}

func NewServer(address string, l logging.Logger, services ...string) *Server {
	s := &Server{
		address:  address,
		logger:   l.With("module", "health_server"),
		hs:       health.NewServer(),
		services: make(map[string]bool, len(services)),
	}
	for _, name := range services {
		s.services[name] = false
		s.hs.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	s.hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func status(serving bool) healthpb.HealthCheckResponse_ServingStatus {
	if serving {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// SetServing records the state of one service and updates the overall status.
func (s *Server) SetServing(service string, serving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.services[service] = serving
	s.hs.SetServingStatus(service, status(serving))
	s.hs.SetServingStatus("", status(s.servingLocked()))
}

// Serving reports the overall status.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servingLocked()
}

func (s *Server) servingLocked() bool {
	if len(s.services) == 0 {
		return false
	}
	for _, ok := range s.services {
		if !ok {
			return false
		}
	}
	return true
}

// Check answers a health request without going through the network.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func (s *Server) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.hs)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC health server...")
		s.hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC health server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
