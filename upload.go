package membase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/membase-hub/plugin-membase/agent"
)

// ActionName is the name the upload action is selected by.
const ActionName = "MEMBASE_UPLOAD"

// Settings read by the upload action.
const (
	SettingHub     = "MEMBASE_HUB"
	SettingAccount = "MEMBASE_ACCOUNT"
)

// DefaultHubURL is used when MEMBASE_HUB is not set.
const DefaultHubURL = "https://testnet.hub.membase.io"

// FilenamePrefix is prepended to the message ID to name the uploaded record.
const FilenamePrefix = "eliza_"

var actionSimiles = []string{
	"UPLOAD_MEMORY_TO_MEMBASE",
	"STORE_MEMORY_ON_MEMBASE",
	"SAVE_MEMORY_TO_MEMBASE",
	"PUBLISH_MEMORY_TO_MEMBASE",
	"UPLOAD_MESSAGE_TO_MEMBASE",
	"STORE_MESSAGE_ON_MEMBASE",
	"SAVE_MESSAGE_TO_MEMBASE",
	"PUBLISH_MESSAGE_TO_MEMBASE",
}

var actionExamples = [][]agent.ActionExample{
	{{User: "{{user1}}", Content: agent.Content{Text: "upload my resume.pdf file", Action: ActionName}}},
	{{User: "{{user1}}", Content: agent.Content{Text: "can you help me upload this document.docx?", Action: ActionName}}},
	{{User: "{{user1}}", Content: agent.Content{Text: "I need to upload an image file image.png", Action: ActionName}}},
}

// UploadAction stores conversation messages on a Membase hub.
type UploadAction struct {
	opts *options
}

// NewUploadAction creates the upload action.
func NewUploadAction(opts ...Option) *UploadAction {
	return &UploadAction{opts: applyOptions(opts)}
}

// Action returns the action descriptor registered with a runtime.
func (u *UploadAction) Action() agent.Action {
	return agent.Action{
		Name:        ActionName,
		Similes:     append([]string(nil), actionSimiles...),
		Description: "Store data using membase protocol",
		Validate:    u.Validate,
		Handler:     u.Handle,
		Examples:    actionExamples,
	}
}

// Validate reports whether the hub and account settings are both present.
func (u *UploadAction) Validate(ctx context.Context, rt agent.Runtime, msg *agent.Memory) bool {
	logger := u.messageLogger(msg)
	logger.Debug("starting membase validation")

	if rt == nil {
		logger.Error("error validating MEMBASE_UPLOAD settings", "error", ErrMissingRuntime)
		return false
	}

	hubURL := rt.GetSetting(SettingHub)
	account := rt.GetSetting(SettingAccount)
	logger.Debug("checking membase settings",
		"has_hub", hubURL != "",
		"has_account", account != "")

	var missing []string
	if hubURL == "" {
		missing = append(missing, SettingHub)
	}
	if account == "" {
		missing = append(missing, SettingAccount)
	}
	if len(missing) > 0 {
		logger.Error("missing required membase settings", "missing_settings", missing)
		return false
	}

	return true
}

// Handle uploads msg, serialized as JSON, under "eliza_<id>" for the
// configured account and waits for the hub to store it. It returns
// OutcomeFailure when the upload fails and OutcomeNone otherwise.
func (u *UploadAction) Handle(ctx context.Context, rt agent.Runtime, msg *agent.Memory, state *agent.State) agent.Outcome {
	logger := u.messageLogger(msg)
	logger.Info("MEMBASE_UPLOAD action started", "has_state", state != nil)

	if err := u.upload(ctx, rt, msg, state, logger); err != nil {
		logger.Error("unexpected error during memory upload",
			"error", err.Error(),
			"stack", string(debug.Stack()))
		return agent.OutcomeFailure
	}
	return agent.OutcomeNone
}

func (u *UploadAction) upload(ctx context.Context, rt agent.Runtime, msg *agent.Memory, state *agent.State, logger *slog.Logger) error {
	const op = "UploadAction.Handle"

	if rt == nil {
		return NewValidationError(op, ErrMissingRuntime)
	}
	if msg == nil {
		return NewValidationError(op, ErrMissingMessage)
	}

	hubURL := rt.GetSetting(SettingHub)
	if hubURL == "" {
		hubURL = u.opts.defaultHub
	}

	client, err := u.opts.factory(hubURL)
	if err != nil {
		return NewConfigurationError(op, fmt.Errorf("create hub client: %w", err))
	}
	defer u.closeClient(ctx, client, logger)

	if state == nil {
		logger.Debug("no state provided, composing new state")
		state, err = rt.ComposeState(ctx, msg)
	} else {
		logger.Debug("updating existing state")
		state, err = rt.UpdateRecentMessageState(ctx, state)
	}
	if err != nil {
		return NewExecutionError(op, fmt.Errorf("prepare state: %w", err))
	}
	if state != nil {
		logger.Debug("state ready", "recent_messages", len(state.RecentMessagesData))
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return NewExecutionError(op, fmt.Errorf("serialize message: %w", err))
	}

	owner := rt.GetSetting(SettingAccount)
	filename := FilenamePrefix + msg.ID.String()

	result, err := client.EnqueueUpload(ctx, owner, filename, string(payload), true)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewTimeoutError(op, err)
		}
		return NewNetworkError(op, err)
	}
	if result == nil {
		return NewNetworkError(op, ErrNoResult)
	}

	agent.LogSuccess(ctx, logger, "upload successful",
		"result", result.Message,
		"filename", filename,
		"room_id", msg.RoomID)
	return nil
}

func (u *UploadAction) closeClient(ctx context.Context, client Uploader, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.opts.closeTimeout)
	defer cancel()

	if err := client.Close(ctx); err != nil {
		logger.Warn("failed to close hub client", "error", err)
	}
}

func (u *UploadAction) messageLogger(msg *agent.Memory) *slog.Logger {
	if msg == nil {
		return u.opts.logger
	}
	return u.opts.logger.With("message_id", msg.ID)
}
