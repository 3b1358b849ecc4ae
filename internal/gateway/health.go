// ABOUTME: gRPC health service reporting overall and per-service status
// ABOUTME: Also provides the client-side probe used by the health CLI command

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/coven-keep/internal/service"
)

const healthRefreshInterval = 5 * time.Second

// HealthService serves grpc.health.v1 on its own listener. The empty
// service name reports the process; each supervised service is reported
// under its own name.
type HealthService struct {
	gw   *Gateway
	addr string

	mu     sync.Mutex
	server *grpc.Server
	health *health.Server
	addrLn net.Addr
	stop   chan struct{}
	done   chan struct{}
}

var _ service.Service = (*HealthService)(nil)

// NewHealthService creates the health service for addr.
func NewHealthService(gw *Gateway, addr string) *HealthService {
	return &HealthService{gw: gw, addr: addr}
}

// Name returns the service name.
func (s *HealthService) Name() string { return ServiceHealth }

// Running reports whether the gRPC server is serving.
func (s *HealthService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Addr returns the bound address, or nil when stopped.
func (s *HealthService) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrLn
}

// Start begins serving health checks. The health listener is always
// plain TCP so local probes work in tailnet mode.
func (s *HealthService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return service.ErrAlreadyRunning
	}

	ln, err := s.gw.listenTCP(s.addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.server = grpc.NewServer()
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)
	s.addrLn = ln.Addr()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	server, hs, stop, done := s.server, s.health, s.stop, s.done
	s.mu.Unlock()

	// refresh reads Running of every service, this one included
	s.refresh(hs)

	s.gw.logger.Info("health server started", "addr", ln.Addr().String())
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.gw.logger.Error("health server failed", "error", err)
		}
	}()
	go func() {
		defer close(done)
		ticker := time.NewTicker(healthRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.refresh(hs)
			}
		}
	}()
	return nil
}

// refresh copies the supervisor's view into the health server.
func (s *HealthService) refresh(hs *health.Server) {
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, st := range s.gw.supervisor.List() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if st.Running {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus(st.Name, status)
	}
	// the health service is running by definition while it answers
	hs.SetServingStatus(ServiceHealth, healthpb.HealthCheckResponse_SERVING)
}

// Stop marks everything NOT_SERVING and stops the gRPC server.
func (s *HealthService) Stop(ctx context.Context) error {
	s.mu.Lock()
	server, hs, stop, done := s.server, s.health, s.stop, s.done
	s.server = nil
	s.health = nil
	s.addrLn = nil
	s.mu.Unlock()

	if server == nil {
		return service.ErrNotRunning
	}

	close(stop)
	hs.Shutdown()

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		server.Stop()
	}
	<-done
	s.gw.logger.Info("health server stopped")
	return nil
}

// ProbeHealth asks the health server at addr for the status of name
// ("" for the whole process).
func ProbeHealth(ctx context.Context, addr, name string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: name})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}
