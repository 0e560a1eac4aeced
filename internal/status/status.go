// Package status holds the process-wide probe status shown by the status
// responder.
package status

import (
	"fmt"
	"sync"
)

type State int

const (
	Discovering State = iota
	Connecting
	Connected
	Running
)

var stateNames = [...]string{"discovering", "connecting", "connected", "running"}

func (s State) String() string {
	if s < Discovering || s > Running {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

type Archival int

const (
	Uninitialized Archival = iota
	Writing
	Error
)

var archivalNames = [...]string{"uninitialized", "writing", "error"}

func (a Archival) String() string {
	if a < Uninitialized || a > Error {
		return fmt.Sprintf("archival(%d)", int(a))
	}
	return archivalNames[a]
}

func (a Archival) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Archival) UnmarshalText(b []byte) error {
	for i, n := range archivalNames {
		if n == string(b) {
			*a = Archival(i)
			return nil
		}
	}
	return fmt.Errorf("unknown archival outcome %q", b)
}

// Snapshot is a consistent copy of the cell.
type Snapshot struct {
	State       State
	Temperature float64
	Archival    Archival
}

// Cell is the shared status. The lock is held only while copying scalars.
type Cell struct {
	mu       sync.RWMutex
	state    State
	temp     float64
	archival Archival
}

// New returns a cell in the Discovering state.
func New() *Cell {
	return &Cell{state: Discovering, archival: Uninitialized}
}

// SetState moves the lifecycle forward. Backward transitions are ignored.
func (c *Cell) SetState(s State) {
	c.mu.Lock()
	if s > c.state {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Cell) SetTemperature(celsius float64) {
	c.mu.Lock()
	c.temp = celsius
	c.mu.Unlock()
}

func (c *Cell) SetArchival(a Archival) {
	c.mu.Lock()
	c.archival = a
	c.mu.Unlock()
}

func (c *Cell) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{State: c.state, Temperature: c.temp, Archival: c.archival}
}
