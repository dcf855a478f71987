package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentials(t *testing.T) {
	t.Setenv("ZULIP_SITE", "https://chat.example.com")
	t.Setenv("ZULIP_EMAIL", "bot@example.com")
	t.Setenv("ZULIP_API_KEY", "secret")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", creds.Site)
	assert.Equal(t, "bot@example.com", creds.Email)
	assert.Equal(t, "secret", creds.APIKey)
}

func TestLoadCredentialsMissing(t *testing.T) {
	t.Setenv("ZULIP_SITE", "https://chat.example.com")
	t.Setenv("ZULIP_EMAIL", "bot@example.com")
	t.Setenv("ZULIP_API_KEY", "")

	_, err := LoadCredentials()
	assert.ErrorContains(t, err, "ZULIP_API_KEY")
}

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	mgr := NewManager(path)

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.True(t, cfg.AnonymousPosting.Enabled)
	assert.Equal(t, "anonymous", cfg.AnonymousPosting.TargetStream)
	assert.Equal(t, 7*24*60, cfg.AnonymousPosting.DeleteAfterMinutes)
	assert.Len(t, cfg.PrivateAccess.WatchRules, 2)

	// File was materialized.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := "anonymous_posting:\n  enabled: true\n  target_stream: confessions\n"
	require.NoError(t, os.WriteFile(path, []byte(partial), 0o600))

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "confessions", cfg.AnonymousPosting.TargetStream)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, "general", cfg.AnonymousPosting.TargetTopic)
	assert.Equal(t, 7*24*60, cfg.AnonymousPosting.DeleteAfterMinutes)
	assert.True(t, cfg.PrivateAccess.Enabled)
}

func TestLoadResetsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n -{broken"), 0o600))

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	mgr := NewManager(path)
	_, err := mgr.Load()
	require.NoError(t, err)

	cfg := mgr.Get()
	cfg.AnonymousPosting.TargetTopic = "late-night"
	require.NoError(t, mgr.Update(cfg))

	// A fresh manager sees the persisted change.
	reloaded, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "late-night", reloaded.AnonymousPosting.TargetTopic)
}

func TestGetReturnsSnapshot(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	_, err := mgr.Load()
	require.NoError(t, err)

	snap := mgr.Get()
	snap.PrivateAccess.WatchRules[0].Phrase = "mutated"
	snap.AnonymousPosting.TargetStream = "mutated"

	fresh := mgr.Get()
	assert.Equal(t, "Default string 1", fresh.PrivateAccess.WatchRules[0].Phrase)
	assert.Equal(t, "anonymous", fresh.AnonymousPosting.TargetStream)
}
