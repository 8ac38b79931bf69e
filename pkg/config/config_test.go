package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_isValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ws://localhost:8000/ws/camera-feed", cfg.StreamURL())
	assert.Equal(t, "http://localhost:8000/api/observation-conditions", cfg.ConditionsURL())
	assert.Equal(t, "http://localhost:8000/api/latest-shot-metadata", cfg.MetadataURL())
	assert.Equal(t, "http://localhost:8000/api/latest-shot", cfg.ImageURL())
}

func TestConfig_StreamURL_tls(t *testing.T) {
	cfg := Default()
	cfg.BackendURL = "https://tunka.example.org/"
	assert.Equal(t, "wss://tunka.example.org/ws/camera-feed", cfg.StreamURL())
}

func TestLoad_env(t *testing.T) {
	t.Setenv("TELEMETRY_BACKEND_URL", "http://camera.local:5000")
	t.Setenv("TELEMETRY_MODE", "poll")
	t.Setenv("TELEMETRY_CONDITIONS_INTERVAL", "1m")
	t.Setenv("TELEMETRY_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("TELEMETRY_ALLOW_ALL_ORIGINS", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://camera.local:5000", cfg.BackendURL)
	assert.Equal(t, "poll", cfg.Mode)
	assert.Equal(t, time.Minute, cfg.ConditionsInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.AllowAllOrigins)
}

func TestLoad_envInvalidDuration(t *testing.T) {
	t.Setenv("TELEMETRY_TICK_INTERVAL", "soon")
	_, err := Load("")
	assert.ErrorContains(t, err, "TELEMETRY_TICK_INTERVAL")
}

func TestLoad_yamlOverridesEnv(t *testing.T) {
	t.Setenv("TELEMETRY_MODE", "poll")

	path := filepath.Join(t.TempDir(), "viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: stream
site_timezone: UTC
staleness_tolerance: 5s
denied_origins:
  - http://evil.test
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stream", cfg.Mode)
	assert.Equal(t, "UTC", cfg.SiteTimezone)
	assert.Equal(t, 5*time.Second, cfg.StalenessTolerance)
	assert.Equal(t, []string{"http://evil.test"}, cfg.DeniedOrigins)
	assert.Equal(t, 30*time.Second, cfg.ConditionsInterval)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TELEMETRY_SITE_NAME=Tunka\n"), 0o600))
	t.Setenv("TELEMETRY_SITE_NAME", "")
	os.Unsetenv("TELEMETRY_SITE_NAME")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "Tunka", os.Getenv("TELEMETRY_SITE_NAME"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	cfg.BackendURL = "camera.local"
	cfg.Mode = "fax"
	cfg.TickInterval = 0
	cfg.SiteTimezone = "Mars/Olympus_Mons"
	cfg.ReconnectMaxDelay = 100 * time.Millisecond

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"backend_url", "mode", "tick_interval", "site_timezone", "reconnect_max_delay"} {
		assert.ErrorContains(t, err, want)
	}
}
