package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"cloudpico-probe/internal/probe"
)

func TestSim_DiscoverableByFinder(t *testing.T) {
	a := New(Options{Seed: 1})
	h, err := probe.NewFinder(a, 0, nil).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if h.Address != Address {
		t.Errorf("Address = %q, want %q", h.Address, Address)
	}
	if !h.HasVendor() {
		t.Error("HasVendor() = false, want true")
	}
}

func TestSim_Deterministic(t *testing.T) {
	a := New(Options{Seed: 42})
	b := New(Options{Seed: 42})
	if a.Temperature() != b.Temperature() {
		t.Errorf("same seed gave %v and %v", a.Temperature(), b.Temperature())
	}
	if got := a.Temperature(); got < 20 || got >= 30 {
		t.Errorf("start temperature = %v, want in [20, 30)", got)
	}
}

func TestSim_PayloadDecodesToTemperature(t *testing.T) {
	a := New(Options{Seed: 7, Step: time.Hour})
	m := probe.NewConnectionManager(a, 0, nil)
	h, err := a.Inspect(Address)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	s, err := m.Connect(h)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer m.Close(s)

	raw, err := s.ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	sample, err := probe.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// Quantized to 0.05 degrees by the 13-bit encoding.
	if diff := math.Abs(sample.Celsius - a.Temperature()); diff > 0.026 {
		t.Errorf("decoded %v, simulator at %v", sample.Celsius, a.Temperature())
	}
	if sample.Max != 1 {
		t.Errorf("Max = %d, want 1 on first read", sample.Max)
	}
}

func TestSim_ConnectFailuresExerciseRetries(t *testing.T) {
	a := New(Options{Seed: 1, ConnectFailures: 2, Step: time.Hour})
	h, _ := a.Inspect(Address)
	m := probe.NewConnectionManager(a, 0, nil)
	s, err := m.Connect(h)
	if err != nil {
		t.Fatalf("Connect with 2 failures: %v", err)
	}
	m.Close(s)

	b := New(Options{Seed: 1, ConnectFailures: 3, Step: time.Hour})
	_, err = probe.NewConnectionManager(b, 0, nil).Connect(h)
	if !errors.Is(err, probe.ErrConnectFailed) {
		t.Fatalf("Connect with 3 failures = %v, want ErrConnectFailed", err)
	}
}

func TestSim_Drift(t *testing.T) {
	a := New(Options{Seed: 3, Step: time.Millisecond})
	start := a.Temperature()
	h, _ := a.Inspect(Address)
	d, err := a.Connect(h)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.Temperature() == start {
		if time.Now().After(deadline) {
			t.Fatal("temperature never drifted")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := d.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := d.Disconnect(); err == nil {
		t.Error("second Disconnect = nil, want error")
	}
	if err := a.Forget(h); err != nil {
		t.Errorf("Forget: %v", err)
	}
}
