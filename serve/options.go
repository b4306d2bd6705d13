package serve

import (
	"log/slog"
	"net"
	"time"
)

// Option is a functional option for configuring a Server.
type Option func(*Config)

// WithPort sets the TCP port for the gRPC server.
// Use port 0 to automatically select an available port.
func WithPort(port int) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// WithGracefulShutdown sets the maximum duration to wait for active
// requests to complete during graceful shutdown.
func WithGracefulShutdown(timeout time.Duration) Option {
	return func(c *Config) {
		c.GracefulTimeout = timeout
	}
}

// WithCheckInterval sets how often plugin health is re-evaluated.
func WithCheckInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.CheckInterval = interval
		}
	}
}

// WithTLS enables TLS encryption for the gRPC server.
// If either path is empty, TLS will be disabled.
//
//	serve.Plugins(ctx, plugins, serve.WithTLS("/etc/certs/server.crt", "/etc/certs/server.key"))
func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) {
		c.TLSCertFile = certFile
		c.TLSKeyFile = keyFile
	}
}

// WithListener serves on lis instead of a TCP port.
func WithListener(lis net.Listener) Option {
	return func(c *Config) {
		c.Listener = lis
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
