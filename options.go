package membase

import (
	"context"
	"log/slog"
	"time"

	"github.com/membase-hub/plugin-membase/hub"
)

// Uploader is the part of the hub client the upload action needs.
type Uploader interface {
	EnqueueUpload(ctx context.Context, owner, filename, message string, wait bool) (*hub.UploadResult, error)
	Close(ctx context.Context) error
}

// ClientFactory builds an Uploader for a hub base URL.
type ClientFactory func(baseURL string) (Uploader, error)

// Option configures the upload action and the plugin.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	factory       ClientFactory
	hubOptions    []hub.Option
	defaultHub    string
	closeTimeout  time.Duration
	healthTimeout time.Duration
}

const (
	defaultCloseTimeout  = 5 * time.Second
	defaultHealthTimeout = 5 * time.Second
)

func defaultOptions() *options {
	return &options{
		logger:        slog.Default(),
		defaultHub:    DefaultHubURL,
		closeTimeout:  defaultCloseTimeout,
		healthTimeout: defaultHealthTimeout,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.factory == nil {
		o.factory = o.newHubClient
	}
	return o
}

func (o *options) newHubClient(baseURL string) (Uploader, error) {
	opts := append([]hub.Option{hub.WithLogger(o.logger)}, o.hubOptions...)
	client, err := hub.New(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// WithLogger sets the logger used by the action, the plugin and the hub
// clients they create.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClientFactory replaces the hub client constructor. WithHubOptions is
// ignored when a factory is set.
func WithClientFactory(factory ClientFactory) Option {
	return func(o *options) {
		o.factory = factory
	}
}

// WithHubOptions passes options to every hub client the action creates,
// e.g. hub.WithQueue or hub.WithInsecureSkipVerify.
func WithHubOptions(opts ...hub.Option) Option {
	return func(o *options) {
		o.hubOptions = append(o.hubOptions, opts...)
	}
}

// WithDefaultHub sets the hub used when MEMBASE_HUB is not set.
func WithDefaultHub(baseURL string) Option {
	return func(o *options) {
		if baseURL != "" {
			o.defaultHub = baseURL
		}
	}
}

// WithCloseTimeout bounds how long the action waits for its hub client to
// shut down.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

// WithHealthTimeout bounds the hub connectivity probe of the plugin's
// health check.
func WithHealthTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.healthTimeout = d
		}
	}
}
