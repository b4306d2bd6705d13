package agent

import (
	"context"
	"log/slog"
)

// LevelSuccess sits between Info and Warn. Hosts use it to report completed
// work such as a stored upload.
const LevelSuccess = slog.Level(2)

// LogSuccess logs msg at LevelSuccess.
func LogSuccess(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, LevelSuccess, msg, args...)
}

// ReplaceLevelName renders LevelSuccess as "SUCCESS". Use it as the
// ReplaceAttr of a slog.HandlerOptions.
func ReplaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelSuccess {
		a.Value = slog.StringValue("SUCCESS")
	}
	return a
}
