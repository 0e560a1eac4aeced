package archive

import (
	"context"
	"log/slog"

	"cloudpico-probe/internal/probe"
)

// Sink receives each reading in capture order.
type Sink interface {
	Name() string
	Push(ctx context.Context, r probe.Reading) error
}

// Consume drains in, handing every reading to each sink in turn. Sink errors
// are logged and do not stop the loop. It returns only once in is closed:
// cancelling ctx neither aborts a push in flight nor drops readings still
// queued, so the producer must close in when it stops.
func Consume(ctx context.Context, in <-chan probe.Reading, logger *slog.Logger, sinks ...Sink) error {
	if logger == nil {
		logger = slog.Default()
	}
	pushCtx := context.WithoutCancel(ctx)

	drained := 0
	for r := range in {
		if ctx.Err() != nil {
			drained++
		}
		for _, s := range sinks {
			if err := s.Push(pushCtx, r); err != nil {
				logger.Warn("sink push failed", "sink", s.Name(), "error", err)
			}
		}
	}

	logger.Info("consumer stopped (readings closed)", "drained_after_cancel", drained)
	return nil
}
