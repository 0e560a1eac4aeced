package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloudpico-probe/internal/app"
	"cloudpico-probe/internal/config"
	"cloudpico-probe/internal/logging"
)

var version = "dev"
var appName = "cloudpico-probe"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, runID := logging.New(cfg.Base, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, app.Options{Logger: logger, RunID: runID}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "error", err)
		stop()
		os.Exit(1)
	}

	slog.Info("shutting down")
}
