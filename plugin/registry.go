package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/membase-hub/plugin-membase/agent"
)

// ErrPluginNotFound is returned when a name has no registered plugin.
var ErrPluginNotFound = errors.New("plugin not found")

// Registry is a static table of plugins, keyed by case-insensitive name.
// Plugins are added explicitly at startup; nothing is discovered.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	aliases map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		aliases: make(map[string]string),
	}
}

// Register adds p under its name and any extra aliases, such as a package
// path a character file may use to refer to it.
func (r *Registry) Register(p Plugin, aliases ...string) error {
	if p == nil {
		return fmt.Errorf("plugin cannot be nil")
	}

	key := registryKey(p.Name())
	if key == "" {
		return fmt.Errorf("plugin name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[key]; exists {
		return fmt.Errorf("plugin already registered: %s", p.Name())
	}
	for _, alias := range aliases {
		a := registryKey(alias)
		if a == "" {
			continue
		}
		if _, exists := r.plugins[a]; exists {
			return fmt.Errorf("alias %q shadows plugin %s", alias, a)
		}
		if owner, exists := r.aliases[a]; exists {
			return fmt.Errorf("alias %q already registered for %s", alias, owner)
		}
	}

	r.plugins[key] = p
	for _, alias := range aliases {
		if a := registryKey(alias); a != "" {
			r.aliases[a] = key
		}
	}
	return nil
}

// Lookup returns the plugin registered under name or one of its aliases.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	key := registryKey(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[key]; ok {
		key = target
	}
	p, ok := r.plugins[key]
	return p, ok
}

// Resolve looks up every name in order. It fails on the first unknown name.
func (r *Registry) Resolve(names []string) ([]Plugin, error) {
	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		p, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

// RuntimeOptions registers the actions, evaluators and providers of plugins
// with an agent.LocalRuntime.
func RuntimeOptions(plugins ...Plugin) []agent.RuntimeOption {
	var opts []agent.RuntimeOption
	for _, p := range plugins {
		opts = append(opts,
			agent.WithActions(p.Actions()...),
			agent.WithEvaluators(p.Evaluators()...),
			agent.WithProviders(p.Providers()...),
		)
	}
	return opts
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
