package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/membase-hub/plugin-membase/agent"
	"github.com/membase-hub/plugin-membase/health"
)

// InitFunc is called to initialize the plugin with the host's settings.
type InitFunc func(ctx context.Context, settings agent.Settings) error

// ShutdownFunc is called to gracefully shutdown the plugin.
type ShutdownFunc func(ctx context.Context) error

// HealthFunc reports the health of an initialized plugin.
type HealthFunc func(ctx context.Context, settings agent.Settings) health.Status

// Config holds the configuration for building a plugin.
// Use NewConfig to create a new configuration, then use the setter methods
// to configure the plugin before calling New to build it.
type Config struct {
	name         string
	version      string
	description  string
	actions      []agent.Action
	evaluators   []agent.Evaluator
	providers    []agent.Provider
	initFunc     InitFunc
	shutdownFunc ShutdownFunc
	healthFunc   HealthFunc
}

// NewConfig creates a new plugin configuration with default values.
func NewConfig() *Config {
	return &Config{
		actions: make([]agent.Action, 0),
		initFunc: func(ctx context.Context, settings agent.Settings) error {
			return nil
		},
		shutdownFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// SetName sets the plugin name.
func (c *Config) SetName(name string) {
	c.name = name
}

// SetVersion sets the plugin version.
func (c *Config) SetVersion(version string) {
	c.version = version
}

// SetDescription sets the plugin description.
func (c *Config) SetDescription(desc string) {
	c.description = desc
}

// AddAction registers an action with the plugin.
func (c *Config) AddAction(action agent.Action) {
	c.actions = append(c.actions, action)
}

// AddEvaluator registers an evaluator with the plugin.
func (c *Config) AddEvaluator(evaluator agent.Evaluator) {
	c.evaluators = append(c.evaluators, evaluator)
}

// AddProvider registers a provider with the plugin.
func (c *Config) AddProvider(provider agent.Provider) {
	c.providers = append(c.providers, provider)
}

// SetInitFunc sets the initialization function.
func (c *Config) SetInitFunc(fn InitFunc) {
	c.initFunc = fn
}

// SetShutdownFunc sets the shutdown function.
func (c *Config) SetShutdownFunc(fn ShutdownFunc) {
	c.shutdownFunc = fn
}

// SetHealthFunc sets the health check run once the plugin is initialized.
// Without one an initialized plugin always reports healthy.
func (c *Config) SetHealthFunc(fn HealthFunc) {
	c.healthFunc = fn
}

// New creates a new Plugin from the configuration.
// Returns an error if the configuration is invalid.
func New(cfg *Config) (Plugin, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.name == "" {
		return nil, fmt.Errorf("plugin name is required")
	}

	if cfg.version == "" {
		return nil, fmt.Errorf("plugin version is required")
	}

	seen := make(map[string]struct{}, len(cfg.actions))
	for _, action := range cfg.actions {
		if action.Name == "" {
			return nil, fmt.Errorf("action name cannot be empty")
		}
		if _, exists := seen[action.Name]; exists {
			return nil, fmt.Errorf("duplicate action name: %s", action.Name)
		}
		if action.Handler == nil {
			return nil, fmt.Errorf("action %s has no handler", action.Name)
		}
		seen[action.Name] = struct{}{}
	}

	return &sdkPlugin{
		name:         cfg.name,
		version:      cfg.version,
		description:  cfg.description,
		actions:      cfg.actions,
		evaluators:   cfg.evaluators,
		providers:    cfg.providers,
		initFunc:     cfg.initFunc,
		shutdownFunc: cfg.shutdownFunc,
		healthFunc:   cfg.healthFunc,
	}, nil
}

// sdkPlugin is the private implementation of the Plugin interface.
type sdkPlugin struct {
	name         string
	version      string
	description  string
	actions      []agent.Action
	evaluators   []agent.Evaluator
	providers    []agent.Provider
	initFunc     InitFunc
	shutdownFunc ShutdownFunc
	healthFunc   HealthFunc

	mu          sync.RWMutex
	initialized bool
	settings    agent.Settings
}

func (p *sdkPlugin) Name() string {
	return p.name
}

func (p *sdkPlugin) Version() string {
	return p.version
}

func (p *sdkPlugin) Description() string {
	return p.description
}

func (p *sdkPlugin) Actions() []agent.Action {
	return append([]agent.Action(nil), p.actions...)
}

func (p *sdkPlugin) Evaluators() []agent.Evaluator {
	return append([]agent.Evaluator(nil), p.evaluators...)
}

func (p *sdkPlugin) Providers() []agent.Provider {
	return append([]agent.Provider(nil), p.providers...)
}

func (p *sdkPlugin) Action(name string) (*agent.Action, bool) {
	return agent.FindAction(p.actions, name)
}

// Initialize prepares the plugin for use.
func (p *sdkPlugin) Initialize(ctx context.Context, settings agent.Settings) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("plugin already initialized")
	}
	if settings == nil {
		settings = agent.MapSettings{}
	}

	if err := p.initFunc(ctx, settings); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	p.settings = settings
	p.initialized = true
	return nil
}

// Shutdown gracefully shuts down the plugin.
func (p *sdkPlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return fmt.Errorf("plugin not initialized")
	}

	if err := p.shutdownFunc(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	p.initialized = false
	p.settings = nil
	return nil
}

// Health returns the current health status of the plugin.
func (p *sdkPlugin) Health(ctx context.Context) health.Status {
	p.mu.RLock()
	initialized, settings := p.initialized, p.settings
	p.mu.RUnlock()

	if !initialized {
		return health.Unhealthy("plugin not initialized", nil)
	}
	if p.healthFunc == nil {
		return health.Healthy("plugin operational")
	}
	return p.healthFunc(ctx, settings)
}
