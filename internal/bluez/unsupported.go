//go:build !linux

package bluez

import (
	"errors"

	"cloudpico-probe/internal/probe"
)

var ErrUnsupported = errors.New("bluez: adapter requires linux")

// New always fails off Linux; use the simulator instead.
func New(Options) (probe.Adapter, error) {
	return nil, ErrUnsupported
}
