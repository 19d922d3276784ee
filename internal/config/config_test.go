package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{"LOG_LEVEL", "NEW_LABEL", "OLD_LABEL", "URL", "USERNAME", "AVATAR_URL", "ERROR_MSG"}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEW_LABEL", "notify")
	t.Setenv("OLD_LABEL", "notified")
	t.Setenv("URL", "https://example.com/hook")
	t.Setenv("USERNAME", "Mail Bot")
	t.Setenv("AVATAR_URL", "https://example.com/a.png")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, "gmail", cfg.Provider)
	assert.Equal(t, "notify", cfg.NewLabel)
	assert.Equal(t, "notified", cfg.OldLabel)
	assert.Equal(t, "https://example.com/hook", cfg.Webhook.URL)
	assert.Equal(t, "", cfg.Webhook.ErrorMessage)
	assert.Equal(t, time.Second, cfg.Webhook.Delay())
	assert.Equal(t, time.Duration(0), cfg.PollInterval())
	assert.Equal(t, map[string]any{
		"username":   "Mail Bot",
		"avatar_url": "https://example.com/a.png",
	}, cfg.Webhook.Extra())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
log_level: debug
new_label: from-file
old_label: done
poll_interval_seconds: 300
webhook:
  url: https://example.com/file
  username: file-bot
  avatar_url: https://example.com/file.png
  delay_seconds: 0
`)
	t.Setenv("NEW_LABEL", "from-env")
	t.Setenv("ERROR_MSG", "relay broke")

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.NewLabel)
	assert.Equal(t, "done", cfg.OldLabel)
	assert.Equal(t, "relay broke", cfg.Webhook.ErrorMessage)
	assert.Equal(t, time.Duration(0), cfg.Webhook.Delay())
	assert.Equal(t, 5*time.Minute, cfg.PollInterval())
}

func TestLoad_MissingRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEW_LABEL", "notify")
	t.Setenv("OLD_LABEL", "notified")
	t.Setenv("URL", "https://example.com/hook")
	t.Setenv("USERNAME", "Mail Bot")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "AVATAR_URL")
}

func TestLoad_MissingFileRequired(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_IMAPValidation(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
provider: imap
new_label: a
old_label: b
webhook:
  url: https://example.com/hook
  username: bot
  avatar_url: https://example.com/a.png
`)
	_, err := Load(path, true)
	require.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "imap.host")

	path = writeConfig(t, `
provider: pop3
new_label: a
old_label: b
webhook:
  url: https://example.com/hook
  username: bot
  avatar_url: https://example.com/a.png
`)
	_, err = Load(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider must be gmail or imap")
}
