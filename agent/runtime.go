package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Runtime is the host surface available to actions.
type Runtime interface {
	Settings

	// ComposeState builds a fresh State for msg.
	ComposeState(ctx context.Context, msg *Memory) (*State, error)

	// UpdateRecentMessageState refreshes the recent messages of state.
	UpdateRecentMessageState(ctx context.Context, state *State) (*State, error)
}

var (
	// ErrNoAction is returned when a message does not name an action.
	ErrNoAction = errors.New("agent: message names no action")

	// ErrUnknownAction is returned when no registered action matches.
	ErrUnknownAction = errors.New("agent: unknown action")

	// ErrActionRejected is returned when an action's validator refuses the message.
	ErrActionRejected = errors.New("agent: action rejected by validator")
)

// DefaultRecentMessageLimit is how many messages per room a LocalRuntime keeps.
const DefaultRecentMessageLimit = 32

// RuntimeOption configures a LocalRuntime.
type RuntimeOption func(*LocalRuntime)

// WithAgentID sets the agent's ID. A random ID is used otherwise.
func WithAgentID(id uuid.UUID) RuntimeOption {
	return func(r *LocalRuntime) {
		r.agentID = id
	}
}

// WithCharacter sets the agent's name, bio and lore.
func WithCharacter(name, bio, lore string) RuntimeOption {
	return func(r *LocalRuntime) {
		r.name = name
		r.bio = bio
		r.lore = lore
	}
}

// WithRuntimeLogger sets the logger. slog.Default() is used otherwise.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(r *LocalRuntime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithActions registers actions.
func WithActions(actions ...Action) RuntimeOption {
	return func(r *LocalRuntime) {
		r.actions = append(r.actions, actions...)
	}
}

// WithEvaluators registers evaluators.
func WithEvaluators(evaluators ...Evaluator) RuntimeOption {
	return func(r *LocalRuntime) {
		r.evaluators = append(r.evaluators, evaluators...)
	}
}

// WithProviders registers providers.
func WithProviders(providers ...Provider) RuntimeOption {
	return func(r *LocalRuntime) {
		r.providers = append(r.providers, providers...)
	}
}

// WithRecentMessageLimit bounds the number of messages kept per room.
func WithRecentMessageLimit(n int) RuntimeOption {
	return func(r *LocalRuntime) {
		if n > 0 {
			r.recentLimit = n
		}
	}
}

// LocalRuntime is an in-process Runtime. It is safe for concurrent use.
type LocalRuntime struct {
	agentID     uuid.UUID
	name        string
	bio         string
	lore        string
	settings    Settings
	logger      *slog.Logger
	actions     []Action
	evaluators  []Evaluator
	providers   []Provider
	recentLimit int

	mu    sync.RWMutex
	rooms map[uuid.UUID][]Memory
}

// NewLocalRuntime creates a runtime resolving settings through settings.
func NewLocalRuntime(settings Settings, opts ...RuntimeOption) *LocalRuntime {
	if settings == nil {
		settings = MapSettings{}
	}

	r := &LocalRuntime{
		agentID:     uuid.New(),
		name:        "agent",
		settings:    settings,
		logger:      slog.Default(),
		recentLimit: DefaultRecentMessageLimit,
		rooms:       make(map[uuid.UUID][]Memory),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AgentID returns the agent's ID.
func (r *LocalRuntime) AgentID() uuid.UUID {
	return r.agentID
}

// AgentName returns the agent's name.
func (r *LocalRuntime) AgentName() string {
	return r.name
}

// Actions returns the registered actions.
func (r *LocalRuntime) Actions() []Action {
	return r.actions
}

func (r *LocalRuntime) GetSetting(key string) string {
	return r.settings.GetSetting(key)
}

// Remember appends msg to its room, dropping the oldest messages beyond the
// recent message limit.
func (r *LocalRuntime) Remember(msg Memory) {
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room := append(r.rooms[msg.RoomID], msg)
	if over := len(room) - r.recentLimit; over > 0 {
		room = append([]Memory(nil), room[over:]...)
	}
	r.rooms[msg.RoomID] = room
}

// RecentMessages returns a copy of the messages kept for roomID, oldest first.
func (r *LocalRuntime) RecentMessages(roomID uuid.UUID) []Memory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Memory(nil), r.rooms[roomID]...)
}

func (r *LocalRuntime) ComposeState(ctx context.Context, msg *Memory) (*State, error) {
	if msg == nil {
		return nil, fmt.Errorf("agent: compose state: nil message")
	}

	names := make([]string, 0, len(r.actions))
	for _, a := range r.actions {
		names = append(names, a.Name)
	}

	recent := r.RecentMessages(msg.RoomID)
	state := &State{
		AgentID:            r.agentID,
		AgentName:          r.name,
		Bio:                r.bio,
		Lore:               r.lore,
		RoomID:             msg.RoomID,
		RecentMessages:     r.formatMessages(recent),
		RecentMessagesData: recent,
		ActionNames:        strings.Join(names, ", "),
		Values:             map[string]any{},
	}

	var parts []string
	for _, p := range r.providers {
		if p.Get == nil {
			continue
		}
		text, err := p.Get(ctx, r, msg, state)
		if err != nil {
			return nil, fmt.Errorf("agent: provider %s: %w", p.Name, err)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	state.Providers = strings.Join(parts, "\n")

	return state, nil
}

func (r *LocalRuntime) UpdateRecentMessageState(ctx context.Context, state *State) (*State, error) {
	if state == nil {
		return nil, fmt.Errorf("agent: update state: nil state")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recent := r.RecentMessages(state.RoomID)
	updated := *state
	updated.RecentMessagesData = recent
	updated.RecentMessages = r.formatMessages(recent)
	return &updated, nil
}

// ProcessActions runs the action named by msg.Content.Action. state may be
// nil; the action then composes its own.
func (r *LocalRuntime) ProcessActions(ctx context.Context, msg *Memory, state *State) (Outcome, error) {
	if msg == nil || strings.TrimSpace(msg.Content.Action) == "" {
		return OutcomeNone, ErrNoAction
	}

	action, ok := FindAction(r.actions, msg.Content.Action)
	if !ok {
		return OutcomeNone, fmt.Errorf("%w: %s", ErrUnknownAction, msg.Content.Action)
	}

	if action.Validate != nil && !action.Validate(ctx, r, msg) {
		r.logger.Warn("action rejected", "action", action.Name, "message_id", msg.ID)
		return OutcomeNone, fmt.Errorf("%w: %s", ErrActionRejected, action.Name)
	}
	if action.Handler == nil {
		return OutcomeNone, nil
	}

	r.logger.Debug("running action", "action", action.Name, "message_id", msg.ID)
	outcome := action.Handler(ctx, r, msg, state)
	if outcome.Failed() {
		r.logger.Warn("action failed", "action", action.Name, "message_id", msg.ID)
	}
	return outcome, nil
}

// Evaluate runs every evaluator that always runs or accepts msg. It stops at
// the first evaluator error.
func (r *LocalRuntime) Evaluate(ctx context.Context, msg *Memory, state *State) ([]string, error) {
	var ran []string
	for _, e := range r.evaluators {
		if e.Handler == nil {
			continue
		}
		if !e.AlwaysRun && (e.Validate == nil || !e.Validate(ctx, r, msg)) {
			continue
		}
		if err := e.Handler(ctx, r, msg, state); err != nil {
			return ran, fmt.Errorf("agent: evaluator %s: %w", e.Name, err)
		}
		ran = append(ran, e.Name)
	}
	return ran, nil
}

func (r *LocalRuntime) formatMessages(msgs []Memory) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := "user"
		if m.UserID == r.agentID {
			speaker = r.name
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Content.Text)
		if m.Content.Action != "" {
			b.WriteString(" (")
			b.WriteString(m.Content.Action)
			b.WriteByte(')')
		}
	}
	return b.String()
}
