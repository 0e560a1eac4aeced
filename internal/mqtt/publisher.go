// Package mqtt publishes probe telemetry to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"cloudpico-probe/internal/probe"
)

const publishTimeout = 5 * time.Second

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt client stopped")
)

type Options struct {
	Broker   string
	Port     int
	ClientID string
	// Topic may contain "{probe}", replaced by ProbeID.
	Topic   string
	ProbeID string
	RunID   string
}

type Telemetry struct {
	ProbeID    string    `json:"probe_id"`
	RunID      string    `json:"run_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Celsius    float64   `json:"temperature_c"`
	Fahrenheit float64   `json:"temperature_f"`
}

type Publisher struct {
	client paho.Client
	opts   Options
	topic  string
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(opts Options, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		opts:   opts,
		topic:  strings.ReplaceAll(opts.Topic, "{probe}", opts.ProbeID),
		logger: logger,
		stopCh: make(chan struct{}),
	}

	co := paho.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(true)

	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)

	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(_ paho.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", opts.Broker, "port", opts.Port)
	})
	co.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = paho.NewClient(co)
	return p
}

// Connect waits for the first connection. It respects ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return ErrStopped
		default:
		}
	}
}

func (p *Publisher) Name() string { return "mqtt" }

// Push publishes r as Telemetry at QoS 1.
func (p *Publisher) Push(_ context.Context, r probe.Reading) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	ts := r.CapturedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	data, err := json.Marshal(Telemetry{
		ProbeID:    p.opts.ProbeID,
		RunID:      p.opts.RunID,
		Timestamp:  ts,
		Celsius:    r.Celsius,
		Fahrenheit: probe.Fahrenheit(r.Celsius),
	})
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	token := p.client.Publish(p.topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}

	p.logger.Debug("published telemetry", "topic", p.topic, "temp_c", r.Celsius)
	return nil
}

func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect is idempotent. Connect returns ErrStopped afterwards.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
