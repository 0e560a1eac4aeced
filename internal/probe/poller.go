package probe

import (
	"context"
	"log/slog"
	"time"

	"cloudpico-probe/internal/status"
)

// StatusWriter is the slice of the status cell the polling loop writes.
type StatusWriter interface {
	SetState(status.State)
	SetTemperature(celsius float64)
}

type Options struct {
	Interval time.Duration
	Settle   time.Duration
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Poller drives the probe lifecycle: discover, connect, then read on every
// tick and forward each reading to out.
type Poller struct {
	finder    *Finder
	connector *ConnectionManager
	status    StatusWriter
	out       chan<- Reading
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewPoller(adapter Adapter, st StatusWriter, out chan<- Reading, opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		finder:    NewFinder(adapter, opts.Settle, logger),
		connector: NewConnectionManager(adapter, opts.Settle, logger),
		status:    st,
		out:       out,
		interval:  opts.Interval,
		now:       now,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled (returns nil) or a fatal discovery or
// connection error occurs. The session is closed on the way out.
func (p *Poller) Run(ctx context.Context) error {
	p.status.SetState(status.Discovering)
	p.logger.Info("discovering devices")
	h, err := p.finder.Discover(ctx)
	if err != nil {
		return err
	}

	p.status.SetState(status.Connecting)
	p.logger.Info("connecting to device", "addr", h.Address)
	session, err := p.connector.Connect(h)
	if err != nil {
		return err
	}
	defer p.connector.Close(session)

	p.status.SetState(status.Connected)
	return p.poll(ctx, session)
}

func (p *Poller) poll(ctx context.Context, session *Session) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("polling stopped")
			return nil
		case <-ticker.C:
			reading, ok := p.read(session)
			if !ok {
				continue
			}
			p.status.SetTemperature(reading.Celsius)
			p.status.SetState(status.Running)

			select {
			case p.out <- reading:
			case <-ctx.Done():
				p.logger.Info("polling stopped")
				return nil
			}
		}
	}
}

// read performs one characteristic read. Failures are soft: logged, and the
// loop moves on to the next tick.
func (p *Poller) read(session *Session) (Reading, bool) {
	raw, err := session.ReadStatus()
	if err != nil {
		p.logger.Warn("probe status read failed", "addr", session.handle.Address, "error", err)
		return Reading{}, false
	}
	sample, err := Decode(raw)
	if err != nil {
		p.logger.Warn("probe status decode failed", "addr", session.handle.Address, "error", err)
		return Reading{}, false
	}
	p.logger.Debug("probe status",
		"min", sample.Min,
		"max", sample.Max,
		"raw", sample.Raw,
		"t1_c", sample.Celsius,
		"t1_f", Fahrenheit(sample.Celsius),
	)
	return Reading{Celsius: sample.Celsius, CapturedAt: p.now().UTC()}, true
}
