package hub

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/membase-hub/plugin-membase/queue"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Default timings for the upload worker.
const (
	// DefaultCooldown is the pause after each processed task. It caps steady
	// state throughput at one upload per cooldown plus request latency.
	DefaultCooldown = 100 * time.Millisecond

	// DefaultDrainInterval is how often WaitForQueueDrain re-reads the queue length.
	DefaultDrainInterval = 100 * time.Millisecond

	// DefaultRequestTimeout bounds every request, including the worker's
	// transmit step, so a hung call cannot block the queue forever.
	DefaultRequestTimeout = 30 * time.Second
)

// Option configures a Client.
type Option func(*config)

type config struct {
	logger             *slog.Logger
	queue              queue.Queue
	httpClient         *http.Client
	tlsConfig          *tls.Config
	insecureSkipVerify bool
	requestTimeout     time.Duration
	cooldown           time.Duration
	drainInterval      time.Duration
	tracerProvider     trace.TracerProvider
	meterProvider      metric.MeterProvider
}

func defaultConfig() *config {
	return &config{
		insecureSkipVerify: true,
		requestTimeout:     DefaultRequestTimeout,
		cooldown:           DefaultCooldown,
		drainInterval:      DefaultDrainInterval,
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithQueue replaces the in-memory task queue, e.g. with a queue.RedisQueue.
// The caller keeps ownership of q and must close it after the client.
// Clients may share q when it implements queue.Completer; a client then
// resolves its waiters from outcomes published by the others.
func WithQueue(q queue.Queue) Option {
	return func(c *config) {
		c.queue = q
	}
}

// WithHTTPClient sets the HTTP client used for every request. When set, the
// TLS options below are ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithTLSConfig sets the TLS configuration of the default transport.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) {
		c.tlsConfig = cfg
	}
}

// WithInsecureSkipVerify controls certificate verification of the default
// transport. Verification is skipped unless this is set to false: the hub is
// treated as a trusted but unauthenticated endpoint.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *config) {
		c.insecureSkipVerify = skip
	}
}

// WithRequestTimeout bounds each request to the hub.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithCooldown sets the pause after each processed task. Zero disables it.
func WithCooldown(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.cooldown = d
		}
	}
}

// WithDrainInterval sets the polling interval of WaitForQueueDrain.
func WithDrainInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.drainInterval = d
		}
	}
}

// WithTracerProvider enables OpenTelemetry spans for hub requests.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider enables OpenTelemetry metrics for the upload queue.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

func (c *config) tracer() trace.Tracer {
	tp := c.tracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

func (c *config) meter() metric.Meter {
	mp := c.meterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	return mp.Meter(instrumentationName)
}

func (c *config) client() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}

	tlsConfig := c.tlsConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: c.insecureSkipVerify, //nolint:gosec // hub certificates are not verified unless configured
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport}
}
