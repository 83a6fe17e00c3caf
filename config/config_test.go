package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, "waboard", cfg.System.Appid)
	assert.Equal(t, 1820, cfg.Web.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 15, cfg.Hub.HeartbeatSec)
	assert.Equal(t, 5, cfg.Hub.PollSec)
	assert.Equal(t, "v24.0", cfg.WhatsApp.Version)
	assert.False(t, cfg.Backend.Insecure)
}

func TestLoadConfigFromFile(t *testing.T) {
	cfile := filepath.Join(t.TempDir(), "waboard.yml")
	content := `
web:
  host: 127.0.0.1
  port: 9090
backend:
  base_url: https://api.example.com/api/v1
  username: svc
hub:
  heartbeat_sec: 30
`
	require.NoError(t, os.WriteFile(cfile, []byte(content), 0644))

	cfg := LoadConfig(cfile)
	assert.Equal(t, "127.0.0.1", cfg.Web.Host)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.Equal(t, "https://api.example.com/api/v1", cfg.Backend.BaseURL)
	assert.Equal(t, "svc", cfg.Backend.Username)
	assert.Equal(t, 30, cfg.Hub.HeartbeatSec)
	// untouched sections keep their defaults
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("WABOARD_WEB_PORT", "2025")
	t.Setenv("WABOARD_DB_TYPE", "postgres")
	t.Setenv("EXTERNAL_API_BASE_URL", "https://env.example.com/api/v1")
	t.Setenv("EXTERNAL_API_HUB_URL", "https://env.example.com/hubs/conversations")
	t.Setenv("ALLOW_INSECURE_TLS", "on")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "EAATOKEN")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, 2025, cfg.Web.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "https://env.example.com/api/v1", cfg.Backend.BaseURL)
	assert.Equal(t, "https://env.example.com/hubs/conversations", cfg.Backend.HubURL)
	assert.True(t, cfg.Backend.Insecure)
	assert.Equal(t, "EAATOKEN", cfg.WhatsApp.Token)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	cfile := filepath.Join(t.TempDir(), "waboard.yml")
	require.NoError(t, os.WriteFile(cfile, []byte("web:\n  port: 9090\n"), 0644))
	t.Setenv("WABOARD_WEB_PORT", "7070")

	cfg := LoadConfig(cfile)
	assert.Equal(t, 7070, cfg.Web.Port)
}

func TestInitDirs(t *testing.T) {
	cfg := *DefaultAppConfig
	cfg.System.Workdir = t.TempDir()
	cfg.InitDirs()

	for _, sub := range []string{"logs", "data"} {
		info, err := os.Stat(filepath.Join(cfg.System.Workdir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
