package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, DefaultPollInterval, cfg.Poll.Interval())
	assert.Equal(t, DefaultPageSize, cfg.Messages.PageSize)
	assert.Equal(t, defaultAlertTTLSec, cfg.Display.AlertTTLSec)
}

func TestLoadConfigReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://members.example.org
  username: alice
poll:
  interval_sec: 15
messages:
  page_size: 50
metrics_addr: 127.0.0.1:9100
`), 0o600))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "https://members.example.org", cfg.API.BaseURL)
	assert.Equal(t, "alice", cfg.API.Username)
	assert.Equal(t, 15*time.Second, cfg.Poll.Interval())
	assert.Equal(t, 50, cfg.Messages.PageSize)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, defaultAlertTTLSec, cfg.Display.AlertTTLSec)
}

func TestLoadConfigNonPositiveValuesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
poll:
  interval_sec: 0
messages:
  page_size: -3
display:
  alert_ttl_sec: 0
`), 0o600))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, cfg.Poll.Interval())
	assert.Equal(t, DefaultPageSize, cfg.Messages.PageSize)
	assert.Equal(t, defaultAlertTTLSec, cfg.Display.AlertTTLSec)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unterminated"), 0o600))

	_, err := LoadConfig(path)

	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultAppConfig()
	cfg.API.BaseURL = "https://members.example.org"
	cfg.API.Username = "bob"
	cfg.Poll.IntervalSec = 30

	require.NoError(t, SaveConfig(path, cfg))
	loaded, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, cfg.API, loaded.API)
	assert.Equal(t, 30*time.Second, loaded.Poll.Interval())
	assert.Empty(t, loaded.MetricsAddr)
}

func TestPollIntervalDefault(t *testing.T) {
	assert.Equal(t, DefaultPollInterval, PollConfig{}.Interval())
	assert.Equal(t, 2*time.Second, PollConfig{IntervalSec: 2}.Interval())
}
