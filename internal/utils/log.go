package utils

import (
	"context"
	"log/slog"
)

// DebugErr records a best-effort cleanup failure at Debug. A nil err logs
// nothing.
func DebugErr(logger *slog.Logger, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), slog.LevelDebug, msg, append(args, "error", err)...)
}
