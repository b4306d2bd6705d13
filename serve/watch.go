package serve

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/membase-hub/plugin-membase/health"
	"github.com/membase-hub/plugin-membase/plugin"
)

// CheckPlugins evaluates the health of every plugin once and publishes it:
// each plugin under a service named after it, and the aggregate under the
// empty service name. Degraded plugins keep serving.
func (s *Server) CheckPlugins(ctx context.Context, plugins []plugin.Plugin) health.Status {
	statuses := make([]health.Status, 0, len(plugins))

	for _, p := range plugins {
		status := p.Health(ctx)
		statuses = append(statuses, status)
		s.healthServer.SetServingStatus(p.Name(), servingStatus(status))

		if !status.IsHealthy() {
			s.logger.Warn("plugin not healthy",
				"plugin", p.Name(),
				"status", status.Status,
				"message", status.Message,
				"details", status.Details)
		}
	}

	overall := health.Combine(statuses...)
	s.healthServer.SetServingStatus("", servingStatus(overall))
	return overall
}

// WatchPlugins runs CheckPlugins immediately and then every interval until
// ctx is done. A non-positive interval uses the configured CheckInterval.
func (s *Server) WatchPlugins(ctx context.Context, plugins []plugin.Plugin, interval time.Duration) {
	if interval <= 0 {
		interval = s.config.CheckInterval
	}
	if interval <= 0 {
		interval = DefaultConfig().CheckInterval
	}

	s.CheckPlugins(ctx, plugins)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckPlugins(ctx, plugins)
		}
	}
}

// Plugins serves plugin health until ctx is done or the process is
// signalled. Plugins must already be initialized.
func Plugins(ctx context.Context, plugins []plugin.Plugin, opts ...Option) error {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv.logger.Info("serving plugin health", "plugins", len(plugins), "port", srv.Port())

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.WatchPlugins(watchCtx, plugins, cfg.CheckInterval)

	return srv.Serve(ctx)
}

func servingStatus(status health.Status) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if status.IsUnhealthy() {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}
