// Package agent defines the host-side model that plugins are written
// against: messages, state, settings, actions and the runtime that ties them
// together.
//
// # Messages and State
//
// A Memory is one message in a room. The runtime keeps the recent messages of
// each room and renders them into a State before an action runs:
//
//	state, err := rt.ComposeState(ctx, msg)
//
// Actions that receive an existing State refresh it instead:
//
//	state, err = rt.UpdateRecentMessageState(ctx, state)
//
// # Actions
//
// An Action is selected by the Content.Action field of a message, matching
// either its Name or one of its Similes. Validate gates the action, Handler
// runs it and reports an Outcome:
//
//	action := agent.Action{
//	    Name:     "ECHO",
//	    Validate: func(ctx context.Context, rt agent.Runtime, msg *agent.Memory) bool { return true },
//	    Handler: func(ctx context.Context, rt agent.Runtime, msg *agent.Memory, state *agent.State) agent.Outcome {
//	        return agent.OutcomeSuccess
//	    },
//	}
//
// # Settings
//
// Settings are plain string lookups. ChainSettings composes several sources,
// the first non-empty value wins, which is how character secrets override
// character settings and both override the environment.
//
// # LocalRuntime
//
// LocalRuntime is an in-process Runtime used by the membase command and by
// tests. It stores messages in memory, runs providers while composing state,
// and dispatches actions and evaluators.
package agent
