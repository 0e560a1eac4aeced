package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"cloudpico-probe/internal/config"
)

// New builds the process logger. Every record carries a run_id that is also
// stamped on archived objects, so a log line can be matched to its upload.
func New(cfg config.Base, version string, appName string) (*slog.Logger, string) {
	runID := uuid.NewString()

	if version == "dev" {
		h := tint.NewHandler(os.Stdout, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName, "run_id", runID), runID
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"run_id", runID,
	), runID
}
