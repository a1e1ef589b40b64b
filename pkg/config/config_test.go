package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:7777", cfg.API.BaseURL)
	assert.Equal(t, "ws://localhost:7777/ws", cfg.Socket.URL)
	assert.Equal(t, 700*time.Millisecond, cfg.Chat.SeenDelay)
	assert.Equal(t, 800*time.Millisecond, cfg.Chat.QuietWindow)
	assert.Equal(t, 3*time.Second, cfg.Chat.TypingTTL)
	assert.Equal(t, "devknot.log", cfg.Log.File)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://api.devknot.dev
chat:
  seen_delay: 250ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.devknot.dev", cfg.API.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Chat.SeenDelay)
	assert.Equal(t, 800*time.Millisecond, cfg.Chat.QuietWindow)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("DEVKNOT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
