package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Base is shared by both binaries.
type Base struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string
}

type Config struct {
	Base

	// StatusFormat selects the GET / body: "json" or "text".
	StatusFormat string

	// Adapter is "bluez" (host radio) or "sim" (simulated probe).
	Adapter            string
	BLEAdapterID       string
	PollInterval       time.Duration
	SettleDelay        time.Duration
	SimSeed            int64
	SimConnectFailures int

	// Bucket empty disables archival.
	Bucket     string
	S3Endpoint string
	BatchSize  int

	// MQTTBroker empty disables the telemetry publisher.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
	ProbeID      string

	// SQLitePath empty disables the local journal.
	SQLitePath string
}

type ViewerConfig struct {
	Base

	Bucket     string
	S3Endpoint string
}

func LoadFromEnv() (Config, error) {
	base, err := loadBase("127.0.0.1:3000")
	if err != nil {
		return Config{}, err
	}

	statusFormat := strings.ToLower(env("STATUS_FORMAT", "json"))
	switch statusFormat {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("invalid STATUS_FORMAT %q (allowed: json, text)", statusFormat)
	}

	adapter := strings.ToLower(env("PROBE_ADAPTER", "bluez"))
	switch adapter {
	case "bluez", "sim":
	default:
		return Config{}, fmt.Errorf("invalid PROBE_ADAPTER %q (allowed: bluez, sim)", adapter)
	}

	pollIntervalStr := env("POLL_INTERVAL", "2s")
	pollInterval, err := time.ParseDuration(pollIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid POLL_INTERVAL %q: %w", pollIntervalStr, err)
	}
	if pollInterval <= 0 {
		return Config{}, fmt.Errorf("POLL_INTERVAL must be positive, got %v", pollInterval)
	}

	settleDelayStr := env("SETTLE_DELAY", "2s")
	settleDelay, err := time.ParseDuration(settleDelayStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SETTLE_DELAY %q: %w", settleDelayStr, err)
	}
	if settleDelay < 0 {
		return Config{}, fmt.Errorf("SETTLE_DELAY must not be negative, got %v", settleDelay)
	}

	simSeedStr := env("SIM_SEED", "1")
	simSeed, err := strconv.ParseInt(simSeedStr, 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SIM_SEED %q: %w", simSeedStr, err)
	}

	simFailuresStr := env("SIM_CONNECT_FAILURES", "0")
	simFailures, err := strconv.Atoi(simFailuresStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SIM_CONNECT_FAILURES %q: %w", simFailuresStr, err)
	}
	if simFailures < 0 {
		return Config{}, fmt.Errorf("SIM_CONNECT_FAILURES must not be negative, got %d", simFailures)
	}

	batchSizeStr := env("BATCH_SIZE", "1000")
	batchSize, err := strconv.Atoi(batchSizeStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BATCH_SIZE %q: %w", batchSizeStr, err)
	}
	if batchSize < 0 {
		return Config{}, fmt.Errorf("BATCH_SIZE must not be negative, got %d", batchSize)
	}

	mqttPortStr := env("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttTopic := env("MQTT_TOPIC", "probes/{probe}/telemetry")
	if !strings.Contains(mqttTopic, "{probe}") {
		return Config{}, fmt.Errorf("MQTT_TOPIC %q must contain {probe}", mqttTopic)
	}

	return Config{
		Base:               base,
		StatusFormat:       statusFormat,
		Adapter:            adapter,
		BLEAdapterID:       env("BLE_ADAPTER_ID", "hci0"),
		PollInterval:       pollInterval,
		SettleDelay:        settleDelay,
		SimSeed:            simSeed,
		SimConnectFailures: simFailures,
		Bucket:             env("BUCKET", ""),
		S3Endpoint:         env("S3_ENDPOINT", ""),
		BatchSize:          batchSize,
		MQTTBroker:         env("MQTT_BROKER", ""),
		MQTTPort:           mqttPort,
		MQTTClientID:       env("MQTT_CLIENT_ID", "cloudpico-probe"),
		MQTTTopic:          mqttTopic,
		ProbeID:            env("PROBE_ID", "combustion"),
		SQLitePath:         env("SQLITE_PATH", ""),
	}, nil
}

func LoadViewerFromEnv() (ViewerConfig, error) {
	base, err := loadBase(":8080")
	if err != nil {
		return ViewerConfig{}, err
	}

	bucket := env("BUCKET", "")
	if bucket == "" {
		return ViewerConfig{}, fmt.Errorf("BUCKET is required")
	}

	return ViewerConfig{
		Base:       base,
		Bucket:     bucket,
		S3Endpoint: env("S3_ENDPOINT", ""),
	}, nil
}

func loadBase(defaultAddr string) (Base, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Base{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Base{}, err
	}

	return Base{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: env("HTTP_ADDR", defaultAddr),
	}, nil
}

// env returns the trimmed value of key, or def when unset or blank.
func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
