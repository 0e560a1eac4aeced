//go:build linux

// Package bluez is the probe.Adapter backed by the host Bluetooth stack
// (tinygo.org/x/bluetooth on BlueZ).
package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"

	"cloudpico-probe/internal/probe"
	"cloudpico-probe/internal/utils"
)

// maxAttributeLen is the largest value a GATT read can return.
const maxAttributeLen = 512

type Adapter struct {
	id      string
	adapter *bluetooth.Adapter
	cache   deviceCache
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]bluetooth.ScanResult
}

// New enables the adapter. It fails when the Bluetooth stack is unavailable.
func New(opts Options) (*Adapter, error) {
	opts = opts.withDefaults()

	a := &Adapter{
		id:      opts.AdapterID,
		adapter: bluetooth.NewAdapter(opts.AdapterID),
		cache:   deviceCache{adapterID: opts.AdapterID},
		logger:  opts.Logger,
		seen:    make(map[string]bluetooth.ScanResult),
	}

	a.logger.Info("ble: enabling adapter", "adapter", a.id)
	if err := a.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble enable (%s): %w", a.id, err)
	}
	a.logger.Info("ble: adapter enabled", "adapter", a.id)
	return a, nil
}

func (a *Adapter) Scan(ctx context.Context) (<-chan string, error) {
	found := make(chan string, 16)

	go func() {
		<-ctx.Done()
		utils.DebugErr(a.logger, "ble: stop scan", a.adapter.StopScan(), "adapter", a.id)
	}()

	go func() {
		defer close(found)
		a.logger.Info("ble: scanning started", "adapter", a.id)

		// adapter.Scan blocks until StopScan() or error.
		err := a.adapter.Scan(func(ad *bluetooth.Adapter, r bluetooth.ScanResult) {
			if ctx.Err() != nil {
				utils.DebugErr(a.logger, "ble: stop scan from callback", ad.StopScan(), "adapter", a.id)
				return
			}
			addr := r.Address.String()

			a.mu.Lock()
			_, known := a.seen[addr]
			a.seen[addr] = r
			a.mu.Unlock()

			if known {
				return
			}
			a.logger.Debug("ble: device added", "addr", addr, "rssi", r.RSSI, "name", r.LocalName())
			select {
			case found <- addr:
			case <-ctx.Done():
			}
		})

		if ctx.Err() != nil {
			a.logger.Info("ble: scanning stopped (context canceled)")
			return
		}
		if err != nil {
			a.logger.Warn("ble: scan failed", "error", err)
			return
		}
		a.logger.Info("ble: scanning stopped")
	}()

	return found, nil
}

func (a *Adapter) Inspect(addr string) (probe.Handle, error) {
	a.mu.Lock()
	r, ok := a.seen[addr]
	a.mu.Unlock()
	if !ok {
		return probe.Handle{}, fmt.Errorf("ble: device %s not seen", addr)
	}

	h := probe.Handle{
		Address:   addr,
		LocalName: r.LocalName(),
		RSSI:      r.RSSI,
	}
	for _, md := range r.ManufacturerData() {
		if h.ManufacturerData == nil {
			h.ManufacturerData = make(map[uint16][]byte)
		}
		h.ManufacturerData[md.CompanyID] = append([]byte(nil), md.Data...)
		a.logger.Debug("ble: manufacturer data",
			"addr", addr,
			"company", utils.Hex4(md.CompanyID),
			"data", utils.BytesToHex(md.Data),
		)
	}
	for _, s := range requiredServices {
		if r.HasServiceUUID(s.uuid) {
			h.ServiceUUIDs = append(h.ServiceUUIDs, s.name)
		}
	}
	return h, nil
}

func (a *Adapter) IsConnected(h probe.Handle) (bool, error) {
	return a.cache.connected(h.Address)
}

func (a *Adapter) Connect(h probe.Handle) (probe.Device, error) {
	a.mu.Lock()
	r, ok := a.seen[h.Address]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ble: device %s not seen", h.Address)
	}

	dev, err := a.adapter.Connect(r.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("ble connect %s: %w", h.Address, err)
	}
	return &device{dev: dev}, nil
}

func (a *Adapter) Forget(h probe.Handle) error {
	a.mu.Lock()
	delete(a.seen, h.Address)
	a.mu.Unlock()
	return a.cache.remove(h.Address)
}

type device struct {
	dev bluetooth.Device
}

func (d *device) Services() ([]probe.Service, error) {
	services, err := d.dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	out := make([]probe.Service, 0, len(services))
	for _, s := range services {
		out = append(out, &service{svc: s})
	}
	return out, nil
}

func (d *device) Disconnect() error {
	return d.dev.Disconnect()
}

type service struct {
	svc bluetooth.DeviceService

	mu    sync.Mutex
	chars []bluetooth.DeviceCharacteristic
}

func (s *service) UUID() string { return s.svc.UUID().String() }

// Read tries each characteristic in discovery order and returns the first
// successful read.
func (s *service) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chars == nil {
		chars, err := s.svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics: %w", err)
		}
		if len(chars) == 0 {
			return nil, fmt.Errorf("service %s has no characteristics", s.UUID())
		}
		s.chars = chars
	}

	var lastErr error
	for _, c := range s.chars {
		buf := make([]byte, maxAttributeLen)
		n, err := c.Read(buf)
		if err != nil {
			lastErr = err
			continue
		}
		return buf[:n], nil
	}
	return nil, fmt.Errorf("read %s: %w", s.UUID(), lastErr)
}

var requiredServices = []struct {
	name string
	uuid bluetooth.UUID
}{
	{name: probe.ProbeStatusServiceUUID, uuid: mustParseUUID(probe.ProbeStatusServiceUUID)},
	{name: probe.UARTServiceUUID, uuid: mustParseUUID(probe.UARTServiceUUID)},
}

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("bluez: bad uuid %q: %v", s, err))
	}
	return u
}
