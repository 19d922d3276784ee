package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/labelhook/internal/config"
	"github.com/tracyhatemice/labelhook/internal/credential"
	"github.com/tracyhatemice/labelhook/internal/receiver"
)

func TestSetupLogger(t *testing.T) {
	ctx := t.Context()
	assert.True(t, setupLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, setupLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, setupLogger("warn").Enabled(ctx, slog.LevelInfo))
	assert.False(t, setupLogger("error").Enabled(ctx, slog.LevelWarn))
	assert.True(t, setupLogger("bogus").Enabled(ctx, slog.LevelInfo))
}

func TestNewTokenStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := newTokenStore(config.Gmail{TokenStore: "file", TokenFile: path})
	require.NoError(t, err)
	assert.Equal(t, credential.FileStore{Path: path}, store)
}

func TestNewReceiver_IMAP(t *testing.T) {
	cfg := &config.Config{
		Provider: "imap",
		IMAP:     config.IMAP{Host: "imap.example.com", Port: 993, Username: "u", UseTLS: true},
	}
	recv, err := newReceiver(t.Context(), cfg, setupLogger("error"))
	require.NoError(t, err)
	assert.IsType(t, &receiver.IMAPReceiver{}, recv)
	assert.NoError(t, recv.Close())
}

func TestNewReceiver_GmailMissingSecrets(t *testing.T) {
	cfg := &config.Config{
		Provider: "gmail",
		Gmail: config.Gmail{
			CredentialsFile: filepath.Join(t.TempDir(), "credentials.json"),
			TokenFile:       filepath.Join(t.TempDir(), "token.json"),
			TokenStore:      "file",
		},
	}
	_, err := newReceiver(t.Context(), cfg, setupLogger("error"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gmail credentials")
}
