// Package plugin bundles agent actions, evaluators and providers into named,
// versioned plugins, and keeps a static registry of them.
//
// # Creating a Plugin
//
// Plugins are created using the builder pattern with the Config type:
//
//	cfg := plugin.NewConfig()
//	cfg.SetName("Membase")
//	cfg.SetVersion("1.0.0")
//	cfg.SetDescription("Membase Plugin for Eliza")
//	cfg.AddAction(uploadAction)
//
//	p, err := plugin.New(cfg)
//	if err != nil {
//	    return err
//	}
//
// New rejects a configuration without name or version, and actions with an
// empty or duplicate name.
//
// # Lifecycle
//
// A plugin must be initialized with the host's settings before its health
// can be reported:
//
//	if err := p.Initialize(ctx, settings); err != nil {
//	    return err
//	}
//	defer p.Shutdown(ctx)
//
//	status := p.Health(ctx)
//
// # Registry
//
// The Registry maps the plugin names found in character files to plugin
// values registered at startup. There is no import-path or filesystem
// discovery:
//
//	reg := plugin.NewRegistry()
//	if err := reg.Register(p, "@elizaos/plugin-membase"); err != nil {
//	    return err
//	}
//	plugins, err := reg.Resolve(character.Plugins)
package plugin
