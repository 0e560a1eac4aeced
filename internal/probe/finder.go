package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Finder scans for the probe and returns the first peripheral advertising
// VendorID.
type Finder struct {
	adapter Adapter
	settle  time.Duration
	logger  *slog.Logger
}

func NewFinder(adapter Adapter, settle time.Duration, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{adapter: adapter, settle: settle, logger: logger}
}

// Discover blocks until a matching peripheral is found, the scan ends
// (ErrDiscoveryFailed) or ctx is cancelled (ErrCancelled). The adapter must
// already be powered on.
func (f *Finder) Discover(ctx context.Context) (Handle, error) {
	if ctx.Err() != nil {
		return Handle{}, ErrCancelled
	}

	scanCtx, stop := context.WithCancel(ctx)
	defer stop()

	found, err := f.adapter.Scan(scanCtx)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: start scan: %w", ErrDiscoveryFailed, err)
	}

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("discovery: got done signal")
			return Handle{}, ErrCancelled
		case addr, ok := <-found:
			if !ok {
				if ctx.Err() != nil {
					return Handle{}, ErrCancelled
				}
				return Handle{}, fmt.Errorf("%w: scan ended without a match", ErrDiscoveryFailed)
			}
			h, match, err := f.inspect(ctx, addr)
			if err != nil {
				return Handle{}, err
			}
			if match {
				f.logger.Info("discovery: found probe",
					"addr", h.Address,
					"name", h.LocalName,
					"rssi", h.RSSI,
				)
				return h, nil
			}
		}
	}
}

// inspect waits out the settle delay and then checks the advertisement. A
// peripheral that vanished from the adapter is a non-match, not an error.
func (f *Finder) inspect(ctx context.Context, addr string) (Handle, bool, error) {
	if err := sleep(ctx, f.settle); err != nil {
		return Handle{}, false, ErrCancelled
	}
	h, err := f.adapter.Inspect(addr)
	if err != nil {
		f.logger.Debug("discovery: inspect failed", "addr", addr, "error", err)
		return Handle{}, false, nil
	}
	f.logger.Debug("discovery: peripheral",
		"addr", h.Address,
		"service_uuids", h.ServiceUUIDs,
		"manufacturer_ids", manufacturerIDs(h),
	)
	return h, h.HasVendor(), nil
}

func manufacturerIDs(h Handle) []string {
	ids := make([]string, 0, len(h.ManufacturerData))
	for id := range h.ManufacturerData {
		ids = append(ids, fmt.Sprintf("0x%04X", id))
	}
	return ids
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
