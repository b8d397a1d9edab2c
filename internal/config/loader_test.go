package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:7000/api", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "ws://localhost:7000/hubs/livehub", cfg.Hub.URL)
	assert.Equal(t, "ws://localhost:7000/socket", cfg.Socket.URL)
	assert.Equal(t, ".onde", cfg.State.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onde.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://api.onde.example.com
hub:
  url: wss://api.onde.example.com/hubs/livehub
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.onde.example.com", cfg.API.BaseURL)
	assert.Equal(t, "wss://api.onde.example.com/hubs/livehub", cfg.Hub.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, "ws://localhost:7000/socket", cfg.Socket.URL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ONDE_API_BASE_URL", "https://env.onde.example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.onde.example.com", cfg.API.BaseURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.API.BaseURL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url")

	cfg = Default()
	cfg.Hub.URL = ""
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.API.Timeout = -time.Second
	require.Error(t, cfg.Validate())
}
