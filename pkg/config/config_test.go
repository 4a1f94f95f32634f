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
	cfg := Default()
	assert.Equal(t, "127.0.0.1:18765", cfg.Server.Addr)
	assert.Equal(t, "http://127.0.0.1:9222", cfg.CDP.URL)
	assert.True(t, cfg.CDP.BypassProxy)
	assert.Equal(t, 3, cfg.Chat.StableThreshold)
	assert.Equal(t, "#prompt-textarea", cfg.Chat.PromptSelector)
}

func TestDurationAccessors(t *testing.T) {
	var chat ChatConfig
	assert.Equal(t, 500*time.Millisecond, chat.PollInterval())
	assert.Equal(t, 300*time.Millisecond, chat.SendDelay())
	assert.Equal(t, 60*time.Second, chat.Timeout())

	chat.PollIntervalMs = 250
	chat.TimeoutSeconds = 90
	assert.Equal(t, 250*time.Millisecond, chat.PollInterval())
	assert.Equal(t, 90*time.Second, chat.Timeout())

	var cdp CDPConfig
	assert.Equal(t, 10*time.Second, cdp.Timeout())
	cdp.TimeoutMs = 2500
	assert.Equal(t, 2500*time.Millisecond, cdp.Timeout())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chat:
  base_url: claude.ai
  conversation_url: claude.ai/chat/
  stable_threshold: 5
cdp:
  url: http://127.0.0.1:9333
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude.ai", cfg.Chat.BaseURL)
	assert.Equal(t, 5, cfg.Chat.StableThreshold)
	assert.Equal(t, "http://127.0.0.1:9333", cfg.CDP.URL)
	// Untouched fields keep their defaults.
	assert.Equal(t, "#prompt-textarea", cfg.Chat.PromptSelector)
	assert.Equal(t, "127.0.0.1:18765", cfg.Server.Addr)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
