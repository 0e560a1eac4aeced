// Package probe talks to a Combustion thermal probe: it finds the probe by its
// advertised vendor id, connects with bounded retries, polls the probe status
// characteristic and decodes the packed temperature payload.
package probe

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	// VendorID is the manufacturer data key advertised by the probe.
	VendorID uint16 = 0x09C7

	ProbeStatusServiceUUID = "00000100-CAAB-3792-3D44-97AE51C1407A"
	UARTServiceUUID        = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"

	// DefaultSettleDelay is how long a newly seen peripheral needs before its
	// manufacturer data is populated.
	DefaultSettleDelay = 2 * time.Second

	// ReadingsBuffer is the capacity of the channel between the polling loop
	// and the archival consumer.
	ReadingsBuffer = 100
)

var (
	ErrDiscoveryFailed      = errors.New("discovery failed")
	ErrCancelled            = errors.New("cancelled")
	ErrConnectFailed        = errors.New("connect failed")
	ErrServicesMissing      = errors.New("required services missing")
	ErrInvalidPayloadLength = errors.New("invalid payload length")
)

// Handle is a snapshot of a discovered peripheral. It is immutable after
// discovery.
type Handle struct {
	Address          string
	LocalName        string
	RSSI             int16
	ManufacturerData map[uint16][]byte
	ServiceUUIDs     []string
}

// HasVendor reports whether the advertisement carries manufacturer data keyed
// by VendorID.
func (h Handle) HasVendor() bool {
	if h.ManufacturerData == nil {
		return false
	}
	_, ok := h.ManufacturerData[VendorID]
	return ok
}

// Reading is one calibrated temperature sample.
type Reading struct {
	Celsius    float64
	CapturedAt time.Time
}

// Adapter is the radio capability the pipeline drives. The BlueZ adapter and
// the simulator both implement it; the implementation is chosen at startup.
type Adapter interface {
	// Scan streams addresses of newly observed peripherals until ctx is done
	// or the scan ends, then closes the channel.
	Scan(ctx context.Context) (<-chan string, error)
	// Inspect returns the current advertisement snapshot for addr.
	Inspect(addr string) (Handle, error)
	IsConnected(h Handle) (bool, error)
	// Connect makes a single connection attempt. It is not cancellable.
	Connect(h Handle) (Device, error)
	// Forget removes the peripheral from the adapter's device cache.
	Forget(h Handle) error
}

// Device is a connected peripheral.
type Device interface {
	Services() ([]Service, error)
	Disconnect() error
}

// Service is a remote GATT service.
type Service interface {
	UUID() string
	// Read returns the value of the first readable characteristic.
	Read() ([]byte, error)
}

func sameUUID(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
