package agent

import (
	"context"
	"strings"
)

// Outcome reports how an action handler finished.
type Outcome int

const (
	// OutcomeNone means the handler finished without reporting a result.
	// Hosts treat it as success.
	OutcomeNone Outcome = iota

	// OutcomeSuccess means the handler explicitly reported success.
	OutcomeSuccess

	// OutcomeFailure means the handler failed.
	OutcomeFailure
)

// Failed reports whether o is OutcomeFailure.
func (o Outcome) Failed() bool {
	return o == OutcomeFailure
}

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Validator decides whether an action may run for msg.
type Validator func(ctx context.Context, rt Runtime, msg *Memory) bool

// Handler runs an action. state may be nil, in which case the handler is
// expected to compose one from the runtime.
type Handler func(ctx context.Context, rt Runtime, msg *Memory, state *State) Outcome

// ActionExample is one turn of an example conversation.
type ActionExample struct {
	User    string  `json:"user"`
	Content Content `json:"content"`
}

// Action is a named capability a plugin contributes to the agent.
type Action struct {
	Name        string
	Similes     []string
	Description string
	Validate    Validator
	Handler     Handler

	// Examples are sample conversations that trigger the action.
	Examples [][]ActionExample
}

// Matches reports whether name refers to the action, either by its name or
// by one of its similes. Comparison ignores case, spaces and underscores.
func (a *Action) Matches(name string) bool {
	key := normalizeActionName(name)
	if key == "" {
		return false
	}
	if normalizeActionName(a.Name) == key {
		return true
	}
	for _, simile := range a.Similes {
		if normalizeActionName(simile) == key {
			return true
		}
	}
	return false
}

// FindAction returns the first action in actions matching name.
func FindAction(actions []Action, name string) (*Action, bool) {
	for i := range actions {
		if actions[i].Matches(name) {
			return &actions[i], true
		}
	}
	return nil, false
}

func normalizeActionName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "", " ", "").Replace(name)
}

// Evaluator runs after actions to derive facts from a message.
type Evaluator struct {
	Name        string
	Description string
	Similes     []string

	// AlwaysRun evaluates every message, bypassing Validate.
	AlwaysRun bool

	Validate Validator
	Handler  func(ctx context.Context, rt Runtime, msg *Memory, state *State) error
}

// Provider contributes text to the state of every message.
type Provider struct {
	Name string
	Get  func(ctx context.Context, rt Runtime, msg *Memory, state *State) (string, error)
}
