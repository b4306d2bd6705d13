// Package membase is a plugin that lets an agent store conversation messages
// on a Membase hub.
//
// # Plugin
//
// The plugin is registered explicitly with a static registry and contributes
// one action, MEMBASE_UPLOAD:
//
//	reg := plugin.NewRegistry()
//	if err := membase.Register(reg, membase.WithLogger(logger)); err != nil {
//		return err
//	}
//
// # Upload Action
//
// The action runs when a message names MEMBASE_UPLOAD or one of its similes
// (for example SAVE_MEMORY_TO_MEMBASE). It requires two settings:
//
//   - MEMBASE_HUB: base URL of the hub, always contacted over https
//   - MEMBASE_ACCOUNT: owner the message is stored for
//
// The handler serializes the whole message to JSON, uploads it under
// "eliza_<message id>" through a hub.Client and waits for the hub to store
// it. Failures are logged and reported as agent.OutcomeFailure; the handler
// never panics and never returns an error to the host.
//
// # Errors
//
// Internal failures are wrapped in *Error, which carries the failing
// operation and a Kind:
//
//	var merr *membase.Error
//	if errors.As(err, &merr) && merr.Kind == membase.KindNetwork {
//		// hub unreachable or answered non-2xx
//	}
package membase
