package probe

import (
	"fmt"
	"log/slog"
	"time"
)

// ConnectRetries is the number of extra connection attempts after the first.
const ConnectRetries = 2

// Session is a connected probe with both required services resolved. It is
// only constructed by ConnectionManager.Connect.
type Session struct {
	handle      Handle
	device      Device
	probeStatus Service
	uart        Service
}

func (s *Session) Handle() Handle { return s.handle }

// ReadStatus reads the raw probe status payload.
func (s *Session) ReadStatus() ([]byte, error) {
	return s.probeStatus.Read()
}

// UART returns the auxiliary data service.
func (s *Session) UART() Service { return s.uart }

// ConnectionManager turns a discovered Handle into a Session.
type ConnectionManager struct {
	adapter Adapter
	settle  time.Duration
	logger  *slog.Logger
}

func NewConnectionManager(adapter Adapter, settle time.Duration, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{adapter: adapter, settle: settle, logger: logger}
}

// Connect connects to h with up to ConnectRetries retries and resolves the
// probe status and UART services. It does not observe cancellation; the
// retry budget bounds it.
func (m *ConnectionManager) Connect(h Handle) (*Session, error) {
	device, err := m.dial(h)
	if err != nil {
		return nil, err
	}

	services, err := device.Services()
	if err != nil {
		m.release(h, device)
		return nil, fmt.Errorf("%w: discover services: %w", ErrServicesMissing, err)
	}

	s := &Session{handle: h, device: device}
	for _, svc := range services {
		uuid := svc.UUID()
		m.logger.Debug("connect: service", "addr", h.Address, "uuid", uuid)
		switch {
		case sameUUID(uuid, ProbeStatusServiceUUID):
			s.probeStatus = svc
		case sameUUID(uuid, UARTServiceUUID):
			s.uart = svc
		}
	}

	if s.probeStatus == nil || s.uart == nil {
		m.logger.Warn("connect: did not get all services",
			"addr", h.Address,
			"probe_status", s.probeStatus != nil,
			"uart", s.uart != nil,
		)
		m.release(h, device)
		return nil, ErrServicesMissing
	}

	m.logger.Info("connect: session ready", "addr", h.Address)
	return s, nil
}

func (m *ConnectionManager) dial(h Handle) (Device, error) {
	connected, err := m.adapter.IsConnected(h)
	if err != nil {
		m.logger.Debug("connect: connected check failed", "addr", h.Address, "error", err)
		connected = false
	}
	// ConnectRetries covers fresh connections only. Attaching to a link the
	// adapter already holds gets a single attempt.
	if connected {
		m.logger.Info("connect: already connected", "addr", h.Address)
		device, err := m.adapter.Connect(h)
		if err != nil {
			return nil, fmt.Errorf("%w: attach %s: %w", ErrConnectFailed, h.Address, err)
		}
		return device, nil
	}

	if m.settle > 0 {
		time.Sleep(m.settle)
	}

	m.logger.Info("connect: connecting", "addr", h.Address)
	var lastErr error
	for attempt := 0; attempt <= ConnectRetries; attempt++ {
		device, err := m.adapter.Connect(h)
		if err == nil {
			m.logger.Info("connect: connected", "addr", h.Address, "attempt", attempt+1)
			return device, nil
		}
		lastErr = err
		m.logger.Info("connect: connect error", "addr", h.Address, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrConnectFailed, h.Address, ConnectRetries+1, lastErr)
}

// release is the failure-path cleanup; errors are logged only.
func (m *ConnectionManager) release(h Handle, device Device) {
	if err := device.Disconnect(); err != nil {
		m.logger.Warn("connect: disconnect after failure", "addr", h.Address, "error", err)
	}
}

// Close disconnects the session and removes the peripheral from the adapter
// cache. It is best effort: failures are logged and never returned.
func (m *ConnectionManager) Close(s *Session) {
	m.logger.Info("disconnecting", "addr", s.handle.Address)
	if err := s.device.Disconnect(); err != nil {
		m.logger.Warn("failed to disconnect from device", "addr", s.handle.Address, "error", err)
	}
	if err := m.adapter.Forget(s.handle); err != nil {
		m.logger.Warn("failed to remove device from adapter", "addr", s.handle.Address, "error", err)
	}
}
