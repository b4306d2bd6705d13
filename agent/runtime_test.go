package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(opts ...RuntimeOption) *LocalRuntime {
	opts = append([]RuntimeOption{
		WithRuntimeLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCharacter("Eliza", "helpful", "from the hub"),
	}, opts...)
	return NewLocalRuntime(MapSettings{"MEMBASE_ACCOUNT": "alice"}, opts...)
}

func TestLocalRuntime_GetSetting(t *testing.T) {
	rt := newTestRuntime()
	assert.Equal(t, "alice", rt.GetSetting("MEMBASE_ACCOUNT"))
	assert.Empty(t, rt.GetSetting("MEMBASE_HUB"))

	rt = NewLocalRuntime(nil)
	assert.Empty(t, rt.GetSetting("anything"))
}

func TestLocalRuntime_RememberKeepsRecentLimit(t *testing.T) {
	rt := newTestRuntime(WithRecentMessageLimit(3))
	room := uuid.New()
	other := uuid.New()

	for _, text := range []string{"one", "two", "three", "four"} {
		rt.Remember(Memory{ID: uuid.New(), RoomID: room, Content: Content{Text: text}})
	}
	rt.Remember(Memory{ID: uuid.New(), RoomID: other, Content: Content{Text: "elsewhere"}})

	recent := rt.RecentMessages(room)
	require.Len(t, recent, 3)
	assert.Equal(t, "two", recent[0].Content.Text)
	assert.Equal(t, "four", recent[2].Content.Text)
	assert.NotZero(t, recent[0].CreatedAt)

	assert.Len(t, rt.RecentMessages(other), 1)
}

func TestLocalRuntime_ComposeState(t *testing.T) {
	provider := Provider{
		Name: "time",
		Get: func(ctx context.Context, rt Runtime, msg *Memory, state *State) (string, error) {
			return "it is noon", nil
		},
	}
	rt := newTestRuntime(
		WithProviders(provider, Provider{Name: "empty"}),
		WithActions(Action{Name: "ECHO"}, Action{Name: "MEMBASE_UPLOAD"}),
	)

	room := uuid.New()
	user := uuid.New()
	rt.Remember(Memory{ID: uuid.New(), UserID: user, RoomID: room, Content: Content{Text: "hi"}})
	rt.Remember(Memory{ID: uuid.New(), UserID: rt.AgentID(), RoomID: room, Content: Content{Text: "hello", Action: "ECHO"}})

	msg := Memory{ID: uuid.New(), UserID: user, RoomID: room, Content: Content{Text: "save this"}}
	state, err := rt.ComposeState(context.Background(), &msg)
	require.NoError(t, err)

	assert.Equal(t, rt.AgentID(), state.AgentID)
	assert.Equal(t, "Eliza", state.AgentName)
	assert.Equal(t, "helpful", state.Bio)
	assert.Equal(t, "from the hub", state.Lore)
	assert.Equal(t, room, state.RoomID)
	assert.Equal(t, "user: hi\nEliza: hello (ECHO)", state.RecentMessages)
	assert.Len(t, state.RecentMessagesData, 2)
	assert.Equal(t, "ECHO, MEMBASE_UPLOAD", state.ActionNames)
	assert.Equal(t, "it is noon", state.Providers)
}

func TestLocalRuntime_ComposeStateErrors(t *testing.T) {
	rt := newTestRuntime(WithProviders(Provider{
		Name: "broken",
		Get: func(ctx context.Context, rt Runtime, msg *Memory, state *State) (string, error) {
			return "", errors.New("boom")
		},
	}))

	_, err := rt.ComposeState(context.Background(), nil)
	assert.Error(t, err)

	msg := Memory{ID: uuid.New()}
	_, err = rt.ComposeState(context.Background(), &msg)
	assert.ErrorContains(t, err, "provider broken: boom")
}

func TestLocalRuntime_UpdateRecentMessageState(t *testing.T) {
	rt := newTestRuntime()
	room := uuid.New()
	msg := Memory{ID: uuid.New(), RoomID: room, Content: Content{Text: "first"}}
	rt.Remember(msg)

	state, err := rt.ComposeState(context.Background(), &msg)
	require.NoError(t, err)
	require.Len(t, state.RecentMessagesData, 1)

	rt.Remember(Memory{ID: uuid.New(), RoomID: room, Content: Content{Text: "second"}})

	updated, err := rt.UpdateRecentMessageState(context.Background(), state)
	require.NoError(t, err)
	assert.Len(t, updated.RecentMessagesData, 2)
	assert.Equal(t, "user: first\nuser: second", updated.RecentMessages)
	assert.Len(t, state.RecentMessagesData, 1, "original state is not mutated")

	_, err = rt.UpdateRecentMessageState(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rt.UpdateRecentMessageState(ctx, state)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalRuntime_ProcessActions(t *testing.T) {
	var (
		mu       sync.Mutex
		received *State
		calls    int
	)
	upload := Action{
		Name:    "MEMBASE_UPLOAD",
		Similes: []string{"SAVE_MEMORY_TO_MEMBASE"},
		Validate: func(ctx context.Context, rt Runtime, msg *Memory) bool {
			return rt.GetSetting("MEMBASE_ACCOUNT") != ""
		},
		Handler: func(ctx context.Context, rt Runtime, msg *Memory, state *State) Outcome {
			mu.Lock()
			defer mu.Unlock()
			calls++
			received = state
			return OutcomeNone
		},
	}
	failing := Action{
		Name: "FAIL",
		Handler: func(ctx context.Context, rt Runtime, msg *Memory, state *State) Outcome {
			return OutcomeFailure
		},
	}
	rt := newTestRuntime(WithActions(upload, failing))
	ctx := context.Background()

	tests := []struct {
		name    string
		action  string
		want    Outcome
		wantErr error
	}{
		{name: "by name", action: "MEMBASE_UPLOAD", want: OutcomeNone},
		{name: "by simile", action: "SAVE_MEMORY_TO_MEMBASE", want: OutcomeNone},
		{name: "loose spelling", action: "save memory to membase", want: OutcomeNone},
		{name: "failure outcome", action: "FAIL", want: OutcomeFailure},
		{name: "no action", action: "", want: OutcomeNone, wantErr: ErrNoAction},
		{name: "unknown", action: "NOPE", want: OutcomeNone, wantErr: ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Memory{ID: uuid.New(), Content: Content{Text: "x", Action: tt.action}}
			got, err := rt.ProcessActions(ctx, &msg, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	mu.Lock()
	assert.Equal(t, 3, calls)
	assert.Nil(t, received)
	mu.Unlock()

	rejecting := NewLocalRuntime(MapSettings{}, WithActions(upload),
		WithRuntimeLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	msg := Memory{ID: uuid.New(), Content: Content{Action: "MEMBASE_UPLOAD"}}
	_, err := rejecting.ProcessActions(ctx, &msg, nil)
	assert.ErrorIs(t, err, ErrActionRejected)
}

func TestLocalRuntime_Evaluate(t *testing.T) {
	var seen []string
	handler := func(name string) func(context.Context, Runtime, *Memory, *State) error {
		return func(ctx context.Context, rt Runtime, msg *Memory, state *State) error {
			seen = append(seen, name)
			return nil
		}
	}
	accept := func(ctx context.Context, rt Runtime, msg *Memory) bool { return true }
	reject := func(ctx context.Context, rt Runtime, msg *Memory) bool { return false }

	rt := newTestRuntime(WithEvaluators(
		Evaluator{Name: "always", AlwaysRun: true, Handler: handler("always")},
		Evaluator{Name: "accepted", Validate: accept, Handler: handler("accepted")},
		Evaluator{Name: "rejected", Validate: reject, Handler: handler("rejected")},
		Evaluator{Name: "no-validator", Handler: handler("no-validator")},
	))

	msg := Memory{ID: uuid.New()}
	ran, err := rt.Evaluate(context.Background(), &msg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"always", "accepted"}, ran)
	assert.Equal(t, []string{"always", "accepted"}, seen)

	broken := newTestRuntime(WithEvaluators(Evaluator{
		Name:      "broken",
		AlwaysRun: true,
		Handler: func(ctx context.Context, rt Runtime, msg *Memory, state *State) error {
			return errors.New("bad fact")
		},
	}))
	_, err = broken.Evaluate(context.Background(), &msg, nil)
	assert.ErrorContains(t, err, "evaluator broken: bad fact")
}
