// Package sim is a stand-in probe for hosts without a Bluetooth adapter. It
// advertises one peripheral with the probe vendor id and serves probe status
// payloads whose temperature follows a seeded random walk.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"cloudpico-probe/internal/probe"
)

const (
	Address   = "C0:FF:EE:09:C7:01"
	LocalName = "CP Sim"

	DefaultStep = 2 * time.Second
)

type Options struct {
	Seed int64
	// Step is how often the temperature drifts. Defaults to DefaultStep.
	Step time.Duration
	// ConnectFailures makes the first N connection attempts fail.
	ConnectFailures int
	Logger          *slog.Logger
}

// Adapter implements probe.Adapter.
type Adapter struct {
	step   time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	temp      float64
	seq       uint32
	failures  int
	connected bool
	stop      chan struct{}
}

func New(opts Options) *Adapter {
	step := opts.Step
	if step <= 0 {
		step = DefaultStep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	return &Adapter{
		step:     step,
		logger:   logger,
		rng:      rng,
		temp:     rng.Float64()*10 + 20,
		failures: opts.ConnectFailures,
	}
}

func (a *Adapter) Scan(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 1)
	ch <- Address
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (a *Adapter) Inspect(addr string) (probe.Handle, error) {
	if addr != Address {
		return probe.Handle{}, fmt.Errorf("sim: unknown device %s", addr)
	}
	return probe.Handle{
		Address:          Address,
		LocalName:        LocalName,
		RSSI:             -48,
		ManufacturerData: map[uint16][]byte{probe.VendorID: {0x01, 0x00, 0x53, 0x49, 0x4d}},
		ServiceUUIDs:     []string{probe.ProbeStatusServiceUUID},
	}, nil
}

func (a *Adapter) IsConnected(probe.Handle) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected, nil
}

func (a *Adapter) Connect(h probe.Handle) (probe.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h.Address != Address {
		return nil, fmt.Errorf("sim: unknown device %s", h.Address)
	}
	if a.failures > 0 {
		a.failures--
		return nil, errors.New("sim: le-connection-abort-by-local")
	}
	if !a.connected {
		a.connected = true
		a.stop = make(chan struct{})
		go a.drift(a.stop)
	}
	return &device{a: a}, nil
}

func (a *Adapter) Forget(probe.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return errors.New("sim: device still connected")
	}
	return nil
}

// Temperature returns the current simulated temperature in Celsius.
func (a *Adapter) Temperature() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.temp
}

// drift moves the temperature by a delta in [-1, 1) every step until stop
// is closed.
func (a *Adapter) drift(stop <-chan struct{}) {
	ticker := time.NewTicker(a.step)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.mu.Lock()
			a.temp += a.rng.Float64()*2 - 1
			a.mu.Unlock()
		}
	}
}

func (a *Adapter) payload() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	s := probe.Sample{Min: 0, Max: a.seq}
	raw := probe.CelsiusToRaw(a.temp)
	for i := range s.Raw {
		s.Raw[i] = raw
	}
	return probe.Encode(s)
}

func (a *Adapter) disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return errors.New("sim: not connected")
	}
	a.connected = false
	close(a.stop)
	return nil
}

type device struct {
	a *Adapter
}

func (d *device) Services() ([]probe.Service, error) {
	return []probe.Service{
		&service{uuid: "00001801-0000-1000-8000-00805f9b34fb"},
		&service{uuid: probe.ProbeStatusServiceUUID, read: d.a.payload},
		&service{uuid: probe.UARTServiceUUID},
	}, nil
}

func (d *device) Disconnect() error {
	d.a.logger.Debug("sim: disconnect", "addr", Address)
	return d.a.disconnect()
}

type service struct {
	uuid string
	read func() []byte
}

func (s *service) UUID() string { return s.uuid }

func (s *service) Read() ([]byte, error) {
	if s.read == nil {
		return nil, fmt.Errorf("sim: service %s has no readable characteristic", s.uuid)
	}
	return s.read(), nil
}
