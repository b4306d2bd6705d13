package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Config holds serve configuration.
type Config struct {
	// Port is the TCP port on which the gRPC server listens.
	// Default: 50051
	Port int

	// GracefulTimeout is the maximum duration to wait for active requests
	// to complete during graceful shutdown.
	// Default: 30 seconds
	GracefulTimeout time.Duration

	// CheckInterval is how often plugin health is re-evaluated.
	// Default: 30 seconds
	CheckInterval time.Duration

	// TLSCertFile is the path to the TLS certificate file.
	// If empty, TLS is disabled.
	TLSCertFile string

	// TLSKeyFile is the path to the TLS private key file.
	// If empty, TLS is disabled.
	TLSKeyFile string

	// Listener, when set, is used instead of listening on Port.
	Listener net.Listener

	// Logger receives lifecycle events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns default serve configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:            50051,
		GracefulTimeout: 30 * time.Second,
		CheckInterval:   30 * time.Second,
	}
}

// Server wraps a gRPC server exposing the standard health service.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	config       *Config
	healthServer *grpchealth.Server
	logger       *slog.Logger
}

// NewServer creates a new gRPC server with the provided configuration and
// registers the health check service.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	listener := cfg.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return nil, fmt.Errorf("failed to listen on port %d: %w", cfg.Port, err)
		}
	}

	var opts []grpc.ServerOption
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(opts...)
	healthServer := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		grpcServer:   grpcServer,
		listener:     listener,
		config:       cfg,
		healthServer: healthServer,
		logger:       logger,
	}, nil
}

// GRPCServer returns the underlying gRPC server.
// This allows callers to register additional services.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// HealthServer returns the health check server.
func (s *Server) HealthServer() *grpchealth.Server {
	return s.healthServer
}

// Serve starts the gRPC server and blocks until shutdown.
// It handles graceful shutdown on SIGINT/SIGTERM signals.
// The context can be used to initiate shutdown programmatically.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	s.logger.Info("health server listening", "addr", s.listener.Addr().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return ctx.Err()
	case sig := <-sigCh:
		s.logger.Info("received signal, shutting down gracefully", "signal", sig.String())
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop immediately stops the gRPC server.
// Active RPCs will be terminated abruptly.
func (s *Server) Stop() {
	s.healthServer.Shutdown()
	s.grpcServer.Stop()
}

// GracefulStop stops accepting new connections and waits for active RPCs
// to complete within the configured timeout, then forces the stop.
func (s *Server) GracefulStop() {
	s.healthServer.Shutdown()

	timeout := s.config.GracefulTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().GracefulTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timeout, forcing stop")
		s.grpcServer.Stop()
	}
}

// Port returns the port the server is listening on.
// This is useful when using port 0 to get an available port.
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}
