package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"cloudpico-probe/internal/archive"
	"cloudpico-probe/internal/bluez"
	"cloudpico-probe/internal/config"
	"cloudpico-probe/internal/db"
	"cloudpico-probe/internal/db/migrate"
	"cloudpico-probe/internal/httpapi"
	"cloudpico-probe/internal/journal"
	"cloudpico-probe/internal/mqtt"
	"cloudpico-probe/internal/probe"
	"cloudpico-probe/internal/sim"
	"cloudpico-probe/internal/status"
)

const shutdownTimeout = 10 * time.Second

// Options overrides collaborators that Run would otherwise build from cfg.
type Options struct {
	Logger   *slog.Logger
	RunID    string
	Adapter  probe.Adapter
	Store    archive.ObjectStore
	Status   *status.Cell
	Listener net.Listener
	Now      func() time.Time
}

// Run starts the status responder, the polling loop and the reading consumer
// and blocks until ctx is done or one of them fails. A clean shutdown returns
// nil; cancellation before a probe was found returns probe.ErrCancelled.
func Run(ctx context.Context, cfg config.Config, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cell := opts.Status
	if cell == nil {
		cell = status.New()
	}

	logger.Info("config loaded",
		"app_env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"status_format", cfg.StatusFormat,
		"adapter", cfg.Adapter,
		"poll_interval", cfg.PollInterval,
		"settle_delay", cfg.SettleDelay,
		"bucket", cfg.Bucket,
		"s3_endpoint", cfg.S3Endpoint,
		"batch_size", cfg.BatchSize,
		"mqtt_broker", cfg.MQTTBroker,
		"sqlite_path", cfg.SQLitePath,
	)

	adapter := opts.Adapter
	if adapter == nil {
		a, err := newAdapter(cfg, logger)
		if err != nil {
			return err
		}
		adapter = a
	}

	store := opts.Store
	if store == nil && cfg.Bucket != "" {
		client, err := archive.NewS3Client(ctx, cfg.S3Endpoint)
		if err != nil {
			return err
		}
		store = archive.NewS3Store(client, cfg.Bucket, opts.RunID)
	}
	if store == nil {
		logger.Warn("archival disabled (no bucket configured)")
	}

	prefix := now().UTC().Format(archive.TimestampLayout)
	uploader := archive.NewUploader(store, prefix, archive.Options{
		BatchSize: cfg.BatchSize,
		Status:    cell,
		Logger:    logger,
		Now:       now,
	})
	sinks := []archive.Sink{uploader}
	if uploader.Enabled() {
		logger.Info("archival enabled", "bucket", cfg.Bucket, "prefix", prefix)
	}

	var readings httpapi.ReadingsReader
	if cfg.SQLitePath != "" {
		conn, err := db.Open(db.Options{
			Path:     cfg.SQLitePath,
			TraceSQL: cfg.LogLevel <= slog.LevelDebug,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(conn); err != nil {
				logger.Error("db close", "error", err)
			}
		}()
		if _, err := migrate.Run(ctx, conn, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		j := journal.New(journal.NewRepository(conn), cfg.ProbeID, opts.RunID)
		sinks = append(sinks, j)
		readings = j
	}

	if cfg.MQTTBroker != "" {
		pub := mqtt.NewPublisher(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: clientID(cfg.MQTTClientID, opts.RunID),
			Topic:    cfg.MQTTTopic,
			ProbeID:  cfg.ProbeID,
			RunID:    opts.RunID,
		}, logger)

		// Short initial timeout so a missing broker does not delay startup;
		// paho keeps retrying in the background.
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := pub.Connect(connectCtx); err != nil {
			logger.Warn("mqtt connection failed (continuing, will retry)", "error", err)
		}
		cancel()
		defer pub.Disconnect()
		sinks = append(sinks, pub)
	}

	ln := opts.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	mux := httpapi.NewMux(gctx, cell, httpapi.Options{
		Format:   cfg.StatusFormat,
		Readings: readings,
		Logger:   logger,
	})
	srv := httpapi.NewServer(cfg.HTTPAddr, mux, logger)

	g.Go(func() error {
		logger.Info("http listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	out := make(chan probe.Reading, probe.ReadingsBuffer)
	poller := probe.NewPoller(adapter, cell, out, probe.Options{
		Interval: cfg.PollInterval,
		Settle:   cfg.SettleDelay,
		Logger:   logger,
		Now:      now,
	})
	g.Go(func() error {
		defer close(out)
		return poller.Run(gctx)
	})
	// The consumer outlives gctx until the poller closes out, so queued
	// readings and an upload already in flight still complete on shutdown.
	g.Go(func() error {
		return archive.Consume(gctx, out, logger, sinks...)
	})

	return g.Wait()
}

func newAdapter(cfg config.Config, logger *slog.Logger) (probe.Adapter, error) {
	if cfg.Adapter == "sim" {
		return sim.New(sim.Options{
			Seed:            cfg.SimSeed,
			ConnectFailures: cfg.SimConnectFailures,
			Logger:          logger,
		}), nil
	}
	a, err := bluez.New(bluez.Options{AdapterID: cfg.BLEAdapterID, Logger: logger})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// clientID suffixes base with the run id prefix so restarts do not collide
// with a lingering session on the broker.
func clientID(base, runID string) string {
	if len(runID) >= 8 {
		return base + "-" + runID[:8]
	}
	return base
}
