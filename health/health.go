// Package health provides health checks for the Membase plugin and the hub it
// uploads to.
//
// Checks return a Status value rather than an error so that several of them
// can be aggregated with Combine and reported through the plugin's Health
// method or the gRPC health service in package serve.
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	status := health.Combine(
//	    health.SettingsCheck(settings, "MEMBASE_HUB", "MEMBASE_ACCOUNT"),
//	    health.HubCheck(ctx, "https://testnet.hub.membase.io"),
//	)
package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SettingsGetter looks up a configuration value by key.
type SettingsGetter interface {
	GetSetting(key string) string
}

// NetworkCheck verifies TCP connectivity to a host and port.
// It uses the provided context for timeout and cancellation control.
func NetworkCheck(ctx context.Context, host string, port int) Status {
	if host == "" {
		return Unhealthy("host cannot be empty", nil)
	}

	if port <= 0 || port > 65535 {
		return Unhealthy(
			fmt.Sprintf("invalid port number: %d", port),
			map[string]any{"port": port},
		)
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to connect to %s", address),
			map[string]any{
				"host":  host,
				"port":  port,
				"error": err.Error(),
			},
		)
	}
	conn.Close()

	return Healthy(fmt.Sprintf("successfully connected to %s", address))
}

// HubCheck verifies that the hub behind baseURL accepts TCP connections.
// A URL without a port is probed on 443, the port of the forced https scheme.
func HubCheck(ctx context.Context, baseURL string) Status {
	if strings.TrimSpace(baseURL) == "" {
		return Unhealthy("hub URL cannot be empty", nil)
	}

	raw := baseURL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("invalid hub URL %q", baseURL),
			map[string]any{"error": err.Error()},
		)
	}

	port := 443
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Unhealthy(
				fmt.Sprintf("invalid hub port %q", p),
				map[string]any{"url": baseURL},
			)
		}
	}

	status := NetworkCheck(ctx, u.Hostname(), port)
	if status.Details == nil {
		status.Details = map[string]any{}
	}
	status.Details["hub"] = baseURL
	return status
}

// SettingsCheck reports unhealthy when any of keys resolves to an empty value.
func SettingsCheck(settings SettingsGetter, keys ...string) Status {
	if settings == nil {
		return Unhealthy("no settings available", nil)
	}

	var missing []string
	for _, key := range keys {
		if settings.GetSetting(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return Unhealthy(
			fmt.Sprintf("missing required settings: %s", strings.Join(missing, ", ")),
			map[string]any{"missing": missing},
		)
	}

	return Healthy(fmt.Sprintf("%d required setting(s) present", len(keys)))
}

// Combine folds checks into one status: unhealthy if any check is
// unhealthy, otherwise degraded if any is degraded, otherwise healthy.
// Details lists the messages of the checks behind a non-healthy result under
// "failed_checks" or "degraded_checks".
func Combine(checks ...Status) Status {
	var failed, degraded []string
	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch {
		case check.IsUnhealthy():
			failed = append(failed, msg)
		case check.IsDegraded():
			degraded = append(degraded, msg)
		}
	}

	switch {
	case len(failed) > 0:
		return Unhealthy(fmt.Sprintf("%d check(s) failed", len(failed)),
			map[string]any{"failed_checks": failed})
	case len(degraded) > 0:
		return Degraded(fmt.Sprintf("%d check(s) degraded", len(degraded)),
			map[string]any{"degraded_checks": degraded})
	default:
		return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
	}
}
