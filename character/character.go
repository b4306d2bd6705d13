// Package character loads agent character files: the agent's name, persona
// and the plugins it runs with, plus per-character settings and secrets.
//
// Characters are authored as JSON, JSONC (JSON with comments and trailing
// commas) or YAML:
//
//	{
//	  "name": "Eliza",
//	  "plugins": ["membase"],      // resolved through a plugin.Registry
//	  "bio": "Keeps notes on Membase.",
//	  "settings": {
//	    "MEMBASE_HUB": "https://testnet.hub.membase.io",
//	    "secrets": {"MEMBASE_ACCOUNT": "alice"},
//	  },
//	}
package character

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/membase-hub/plugin-membase/agent"
)

// Character is one agent persona.
type Character struct {
	Name          string   `json:"name" yaml:"name"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Plugins       []string `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Clients       []string `json:"clients,omitempty" yaml:"clients,omitempty"`
	ModelProvider string   `json:"modelProvider,omitempty" yaml:"modelProvider,omitempty"`
	Bio           Lines    `json:"bio,omitempty" yaml:"bio,omitempty"`
	Lore          Lines    `json:"lore,omitempty" yaml:"lore,omitempty"`

	// Settings holds string settings and a nested "secrets" map.
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Path is the file the character was loaded from.
	Path string `json:"-" yaml:"-"`
}

// Lines is a list of text lines that may also be written as a single string.
type Lines []string

func (l *Lines) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = Lines{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

func (l *Lines) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*l = Lines{single}
		return nil
	}

	var many []string
	if err := value.Decode(&many); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

// String joins the lines with spaces.
func (l Lines) String() string {
	return strings.Join(l, " ")
}

// Default is used when no character file is given.
func Default() *Character {
	return &Character{
		Name:    "Eliza",
		Plugins: []string{"membase"},
		Bio:     Lines{"A helpful agent that keeps conversation notes on Membase."},
	}
}

// Load reads a character from a .json, .jsonc, .yaml or .yml file and
// validates it.
func Load(path string) (*Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read character file: %w", err)
	}

	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a character in the format named by ext (".json", ".jsonc",
// ".yaml" or ".yml"). It does not validate the result.
func Parse(data []byte, ext string) (*Character, error) {
	var c Character

	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &c); err != nil {
			return nil, fmt.Errorf("failed to parse character: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse character: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported character format %q", ext)
	}

	return &c, nil
}

// LoadAll loads every path in order. With no paths it returns the default
// character.
func LoadAll(paths []string) ([]*Character, error) {
	var characters []*Character
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		c, err := Load(path)
		if err != nil {
			return nil, err
		}
		characters = append(characters, c)
	}

	if len(characters) == 0 {
		characters = append(characters, Default())
	}
	return characters, nil
}

// Validate checks that the character has a name and that every plugin entry
// is a non-empty name.
func (c *Character) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("character name is required"))
	}
	for i, p := range c.Plugins {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("plugins[%d]: plugin name cannot be empty", i))
		}
	}
	return errors.Join(errs...)
}

// Secrets returns the string values of settings.secrets.
func (c *Character) Secrets() agent.MapSettings {
	out := agent.MapSettings{}
	raw, ok := c.Settings["secrets"].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Values returns the top-level string values of settings.
func (c *Character) Values() agent.MapSettings {
	out := agent.MapSettings{}
	for k, v := range c.Settings {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// SettingsChain resolves settings from the character's secrets, then its
// settings, then the process environment.
func (c *Character) SettingsChain() agent.Settings {
	return agent.ChainSettings{c.Secrets(), c.Values(), agent.EnvSettings{}}
}

// SettingKeys lists every key the character defines, secrets included,
// sorted. Values are not exposed.
func (c *Character) SettingKeys() []string {
	seen := map[string]struct{}{}
	for k := range c.Secrets() {
		seen[k] = struct{}{}
	}
	for k := range c.Values() {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RuntimeOptions configures an agent.LocalRuntime with the character's
// persona.
func (c *Character) RuntimeOptions() []agent.RuntimeOption {
	return []agent.RuntimeOption{
		agent.WithCharacter(c.Name, c.Bio.String(), c.Lore.String()),
	}
}
