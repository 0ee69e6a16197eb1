package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, fromFile, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.False(t, fromFile)
	require.Equal(t, Default(), cfg)
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tradefeed.yaml")
	body := `
environment: staging
stream:
  url: wss://feed.example.com/ws
  heartbeatInterval: 15s
  backoff:
    base: 500ms
    cap: 10s
    maxAttempts: 5
rest:
  baseUrl: https://api.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("TRADEFEED_STREAM_URL", "wss://override.example.com/ws")

	cfg, fromFile, err := Load(path)
	require.NoError(t, err)
	require.True(t, fromFile)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, "wss://override.example.com/ws", cfg.Stream.URL)
	require.Equal(t, 15*time.Second, cfg.Stream.HeartbeatInterval)
	require.Equal(t, 500*time.Millisecond, cfg.Stream.Backoff.Base)
	require.Equal(t, 5, cfg.Stream.Backoff.MaxAttempts)
	require.Equal(t, "https://api.example.com", cfg.REST.BaseURL)
	// untouched fields keep defaults
	require.Equal(t, 10*time.Second, cfg.REST.Timeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty stream url", func(c *Config) { c.Stream.URL = " " }},
		{"zero heartbeat", func(c *Config) { c.Stream.HeartbeatInterval = 0 }},
		{"zero backoff base", func(c *Config) { c.Stream.Backoff.Base = 0 }},
		{"cap below base", func(c *Config) { c.Stream.Backoff.Cap = c.Stream.Backoff.Base / 2 }},
		{"zero max attempts", func(c *Config) { c.Stream.Backoff.MaxAttempts = 0 }},
		{"negative coalesce", func(c *Config) { c.Stream.CoalesceInterval = -time.Second }},
		{"empty rest url", func(c *Config) { c.REST.BaseURL = "" }},
		{"zero rest timeout", func(c *Config) { c.REST.Timeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
