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
var appName = "cloudpico-viewer"

func main() {
	cfg, err := config.LoadViewerFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, _ := logging.New(cfg.Base, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunViewer(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "error", err)
		stop()
		os.Exit(1)
	}

	slog.Info("shutting down")
}
