package probe

import (
	"context"
	"errors"
	"sync"

	"cloudpico-probe/internal/status"
)

type fakeService struct {
	uuid string

	mu    sync.Mutex
	reads [][]byte
	errs  []error
	calls int
}

func (s *fakeService) UUID() string { return s.uuid }

// Read replays reads/errs in order and then repeats the last payload.
func (s *fakeService) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if len(s.reads) == 0 {
		return nil, errors.New("no payload")
	}
	if i >= len(s.reads) {
		i = len(s.reads) - 1
	}
	return s.reads[i], nil
}

type fakeDevice struct {
	services      []Service
	servicesErr   error
	disconnectErr error

	mu          sync.Mutex
	disconnects int
}

func (d *fakeDevice) Services() ([]Service, error) { return d.services, d.servicesErr }

func (d *fakeDevice) Disconnect() error {
	d.mu.Lock()
	d.disconnects++
	d.mu.Unlock()
	return d.disconnectErr
}

type fakeAdapter struct {
	addrs    []string
	handles  map[string]Handle
	keepOpen bool
	scanErr  error

	connected   bool
	connectErrs []error
	device      *fakeDevice
	forgetErr   error

	mu       sync.Mutex
	inspects []string
	attempts int
	forgets  int
}

func (a *fakeAdapter) Scan(ctx context.Context) (<-chan string, error) {
	if a.scanErr != nil {
		return nil, a.scanErr
	}
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, addr := range a.addrs {
			select {
			case ch <- addr:
			case <-ctx.Done():
				return
			}
		}
		if a.keepOpen {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (a *fakeAdapter) Inspect(addr string) (Handle, error) {
	a.mu.Lock()
	a.inspects = append(a.inspects, addr)
	a.mu.Unlock()
	h, ok := a.handles[addr]
	if !ok {
		return Handle{}, errors.New("unknown device")
	}
	return h, nil
}

func (a *fakeAdapter) IsConnected(Handle) (bool, error) { return a.connected, nil }

func (a *fakeAdapter) Connect(Handle) (Device, error) {
	a.mu.Lock()
	i := a.attempts
	a.attempts++
	a.mu.Unlock()
	if i < len(a.connectErrs) && a.connectErrs[i] != nil {
		return nil, a.connectErrs[i]
	}
	return a.device, nil
}

func (a *fakeAdapter) Forget(Handle) error {
	a.mu.Lock()
	a.forgets++
	a.mu.Unlock()
	return a.forgetErr
}

func (a *fakeAdapter) connectAttempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func probeHandle(addr string) Handle {
	return Handle{
		Address:          addr,
		ManufacturerData: map[uint16][]byte{VendorID: {0x01, 0x02}},
	}
}

func probeDevice(reads ...[]byte) *fakeDevice {
	return &fakeDevice{services: []Service{
		&fakeService{uuid: "00001800-0000-1000-8000-00805f9b34fb"},
		&fakeService{uuid: "00000100-caab-3792-3d44-97ae51c1407a", reads: reads},
		&fakeService{uuid: UARTServiceUUID},
	}}
}

func payloadFor(celsius float64) []byte {
	var s Sample
	s.Raw[0] = CelsiusToRaw(celsius)
	return Encode(s)
}

type recordingStatus struct {
	mu     sync.Mutex
	states []status.State
	temps  []float64
}

func (r *recordingStatus) SetState(s status.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n > 0 && r.states[n-1] == s {
		return
	}
	r.states = append(r.states, s)
}

func (r *recordingStatus) SetTemperature(c float64) {
	r.mu.Lock()
	r.temps = append(r.temps, c)
	r.mu.Unlock()
}

func (r *recordingStatus) snapshot() ([]status.State, []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.State(nil), r.states...), append([]float64(nil), r.temps...)
}
