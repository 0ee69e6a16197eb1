// Package config centralises runtime configuration for the tradefeed daemon.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config contains the configuration tree loaded from defaults, an optional
// YAML file, and environment variable overrides (applied in that order).
type Config struct {
	Environment string          `yaml:"environment" env:"TRADEFEED_ENV"`
	Stream      StreamConfig    `yaml:"stream"`
	REST        RESTConfig      `yaml:"rest"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Log         LogConfig       `yaml:"log"`
}

// StreamConfig controls the websocket transport and reconnection policy.
type StreamConfig struct {
	URL               string        `yaml:"url" env:"TRADEFEED_STREAM_URL"`
	Token             string        `yaml:"token" env:"TRADEFEED_STREAM_TOKEN"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"TRADEFEED_HEARTBEAT_INTERVAL"`
	HandshakeTimeout  time.Duration `yaml:"handshakeTimeout" env:"TRADEFEED_HANDSHAKE_TIMEOUT"`
	Backoff           BackoffConfig `yaml:"backoff"`
	// CoalesceInterval batches price ticks before they reach the store.
	// Zero applies ticks directly.
	CoalesceInterval time.Duration `yaml:"coalesceInterval" env:"TRADEFEED_COALESCE_INTERVAL"`
}

// BackoffConfig declares the reconnect delay schedule.
type BackoffConfig struct {
	Base        time.Duration `yaml:"base" env:"TRADEFEED_BACKOFF_BASE"`
	Cap         time.Duration `yaml:"cap" env:"TRADEFEED_BACKOFF_CAP"`
	MaxAttempts int           `yaml:"maxAttempts" env:"TRADEFEED_BACKOFF_MAX_ATTEMPTS"`
}

// RESTConfig governs the collaborator REST client.
type RESTConfig struct {
	BaseURL  string        `yaml:"baseUrl" env:"TRADEFEED_REST_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"TRADEFEED_REST_TIMEOUT"`
	CacheTTL time.Duration `yaml:"cacheTtl" env:"TRADEFEED_REST_CACHE_TTL"`
}

// TelemetryConfig configures the OTLP metric exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint" env:"TRADEFEED_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"serviceName" env:"TRADEFEED_SERVICE_NAME"`
}

// LogConfig toggles log verbosity.
type LogConfig struct {
	Debug bool `yaml:"debug" env:"TRADEFEED_LOG_DEBUG"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Environment: "prod",
		Stream: StreamConfig{
			URL:               "ws://localhost:8081/ws",
			Token:             "",
			HeartbeatInterval: 30 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			Backoff: BackoffConfig{
				Base:        time.Second,
				Cap:         30 * time.Second,
				MaxAttempts: 10,
			},
			CoalesceInterval: time.Second,
		},
		REST: RESTConfig{
			BaseURL:  "http://localhost:8081",
			Timeout:  10 * time.Second,
			CacheTTL: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "tradefeed",
		},
		Log: LogConfig{Debug: false},
	}
}

// Load builds the configuration from defaults, the YAML file at path when it
// exists, and environment variables. The boolean reports whether the file was
// found.
func Load(path string) (Config, bool, error) {
	cfg := Default()

	loadedFromFile := false
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		data, err := os.ReadFile(trimmed)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, false, fmt.Errorf("parse config %s: %w", trimmed, err)
			}
			loadedFromFile = true
		case os.IsNotExist(err):
		default:
			return Config{}, false, fmt.Errorf("read config %s: %w", trimmed, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, false, fmt.Errorf("parse environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, loadedFromFile, nil
}

// Validate checks the configuration tree for values the runtime cannot work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Stream.URL) == "" {
		return fmt.Errorf("stream.url must not be empty")
	}
	if c.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream.heartbeatInterval must be positive, got %s", c.Stream.HeartbeatInterval)
	}
	if c.Stream.Backoff.Base <= 0 {
		return fmt.Errorf("stream.backoff.base must be positive, got %s", c.Stream.Backoff.Base)
	}
	if c.Stream.Backoff.Cap < c.Stream.Backoff.Base {
		return fmt.Errorf("stream.backoff.cap %s must be >= base %s", c.Stream.Backoff.Cap, c.Stream.Backoff.Base)
	}
	if c.Stream.Backoff.MaxAttempts < 1 {
		return fmt.Errorf("stream.backoff.maxAttempts must be >= 1, got %d", c.Stream.Backoff.MaxAttempts)
	}
	if c.Stream.CoalesceInterval < 0 {
		return fmt.Errorf("stream.coalesceInterval must not be negative, got %s", c.Stream.CoalesceInterval)
	}
	if strings.TrimSpace(c.REST.BaseURL) == "" {
		return fmt.Errorf("rest.baseUrl must not be empty")
	}
	if c.REST.Timeout <= 0 {
		return fmt.Errorf("rest.timeout must be positive, got %s", c.REST.Timeout)
	}
	return nil
}
