package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"cloudpico-probe/internal/archive"
	"cloudpico-probe/internal/config"
	"cloudpico-probe/internal/httpapi"
	"cloudpico-probe/internal/viewer"
)

// RunViewer serves the latest archived reading until ctx is done.
func RunViewer(ctx context.Context, cfg config.ViewerConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"app_env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"bucket", cfg.Bucket,
		"s3_endpoint", cfg.S3Endpoint,
	)

	client, err := archive.NewS3Client(ctx, cfg.S3Endpoint)
	if err != nil {
		return err
	}
	mux, err := viewer.NewMux(viewer.NewStore(client, cfg.Bucket), logger)
	if err != nil {
		return err
	}
	srv := httpapi.NewServer(cfg.HTTPAddr, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

