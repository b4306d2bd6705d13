package plugin

import (
	"context"

	"github.com/membase-hub/plugin-membase/agent"
	"github.com/membase-hub/plugin-membase/health"
)

// Plugin is a bundle of actions, evaluators and providers contributed to an
// agent runtime. Plugins support initialization, shutdown and health checks.
type Plugin interface {
	// Name returns the unique identifier for the plugin.
	Name() string

	// Version returns the semantic version of the plugin.
	Version() string

	// Description returns a human-readable description of the plugin's purpose.
	Description() string

	// Actions returns the actions the plugin contributes.
	Actions() []agent.Action

	// Evaluators returns the evaluators the plugin contributes.
	Evaluators() []agent.Evaluator

	// Providers returns the providers the plugin contributes.
	Providers() []agent.Provider

	// Action looks up an action by name or simile.
	Action(name string) (*agent.Action, bool)

	// Initialize prepares the plugin for use with the host's settings.
	// This is called once before the plugin's actions run.
	Initialize(ctx context.Context, settings agent.Settings) error

	// Shutdown gracefully shuts down the plugin and releases any resources.
	Shutdown(ctx context.Context) error

	// Health returns the current health status of the plugin.
	Health(ctx context.Context) health.Status
}

// Descriptor is a plugin's metadata.
type Descriptor struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Evaluators  []string `json:"evaluators,omitempty"`
	Providers   []string `json:"providers,omitempty"`
}

// ToDescriptor converts a Plugin to its Descriptor.
func ToDescriptor(p Plugin) Descriptor {
	d := Descriptor{
		Name:        p.Name(),
		Version:     p.Version(),
		Description: p.Description(),
		Actions:     []string{},
	}
	for _, a := range p.Actions() {
		d.Actions = append(d.Actions, a.Name)
	}
	for _, e := range p.Evaluators() {
		d.Evaluators = append(d.Evaluators, e.Name)
	}
	for _, pr := range p.Providers() {
		d.Providers = append(d.Providers, pr.Name)
	}
	return d
}
