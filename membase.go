package membase

import (
	"context"

	"github.com/membase-hub/plugin-membase/agent"
	"github.com/membase-hub/plugin-membase/health"
	"github.com/membase-hub/plugin-membase/plugin"
)

// Plugin metadata.
const (
	PluginName        = "Membase"
	PluginDescription = "Membase Plugin for Eliza"
	Version           = "0.1.0"
)

// PluginAliases are the other names character files use for the plugin.
var PluginAliases = []string{"@elizaos/plugin-membase", "plugin-membase"}

// New builds the Membase plugin. It contributes the upload action and no
// evaluators or providers.
func New(opts ...Option) (plugin.Plugin, error) {
	o := applyOptions(opts)
	upload := &UploadAction{opts: o}

	cfg := plugin.NewConfig()
	cfg.SetName(PluginName)
	cfg.SetVersion(Version)
	cfg.SetDescription(PluginDescription)
	cfg.AddAction(upload.Action())
	cfg.SetInitFunc(func(ctx context.Context, settings agent.Settings) error {
		o.logger.Info("membase plugin initialized",
			"hub", hubOrDefault(settings, o.defaultHub),
			"has_account", settings.GetSetting(SettingAccount) != "")
		return nil
	})
	cfg.SetHealthFunc(func(ctx context.Context, settings agent.Settings) health.Status {
		ctx, cancel := context.WithTimeout(ctx, o.healthTimeout)
		defer cancel()

		return health.Combine(
			health.SettingsCheck(settings, SettingHub, SettingAccount),
			health.HubCheck(ctx, hubOrDefault(settings, o.defaultHub)),
		)
	})

	return plugin.New(cfg)
}

// Register builds the plugin and adds it to reg under its name and aliases.
func Register(reg *plugin.Registry, opts ...Option) error {
	p, err := New(opts...)
	if err != nil {
		return err
	}
	return reg.Register(p, PluginAliases...)
}

func hubOrDefault(settings agent.Settings, fallback string) string {
	if hub := settings.GetSetting(SettingHub); hub != "" {
		return hub
	}
	return fallback
}
