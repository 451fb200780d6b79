// Package health exposes liveness and readiness for voicedoc.
//
// Docker and Kubernetes probe /healthz and /readyz over HTTP. Clients that
// speak gRPC can use the standard grpc.health.v1 service instead; both report
// the same readiness flag.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the pipeline.
const ServiceName = "voicedoc.Consultation"

// Server serves /healthz, /readyz and the gRPC health service.
type Server struct {
	port     int
	grpcPort int
	ready    atomic.Bool
	started  time.Time

	server     *http.Server
	grpcHealth *grpchealth.Server
	grpcServer *grpc.Server
}

// New creates a new health check server. A zero grpcPort disables the gRPC
// health service.
func New(port, grpcPort int) *Server {
	s := &Server{
		port:       port,
		grpcPort:   grpcPort,
		started:    time.Now(),
		grpcHealth: grpchealth.NewServer(),
	}
	s.SetReady(false)
	return s
}

// SetReady marks the daemon as ready to accept consultations.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
	s.grpcHealth.SetServingStatus(ServiceName, status)
}

// Handler returns the HTTP probe handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness only fails when the process cannot answer at all.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	return mux
}

func writeStatus(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// ListenAndServe starts the HTTP probe server and, if configured, the gRPC
// health service. It blocks until the context is cancelled or either server
// fails; a failure stops the other server before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.grpcPort > 0 {
		g.Go(func() error { return s.serveGRPC(ctx) })
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	})

	g.Go(func() error {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) serveGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}
	return s.ServeGRPC(ctx, lis)
}

// ServeGRPC serves the gRPC health service on lis until ctx is cancelled.
func (s *Server) ServeGRPC(ctx context.Context, lis net.Listener) error {
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.grpcHealth)

	slog.Info("grpc health service listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("grpc health service shutting down")
		s.grpcHealth.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health serve: %w", err)
	}
	return nil
}
