package miner

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/model"
)

func TestLoadSettings_FreshDirectoryWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := LoadSettings(path)
	require.NoError(t, err)

	got := store.Snapshot()
	assert.Equal(t, 1, got.ConnectionQuality)
	assert.Equal(t, 30, got.MinimumRefreshInterval)
	assert.FileExists(t, path)
}

func TestSettingsStore_ApplyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := LoadSettings(path)
	require.NoError(t, err)

	games := []string{"Rust"}
	quality := 2
	updated, gamesChanged, proxyChanged, err := store.Apply(&model.SettingsPatch{
		GamesToWatch:      &games,
		ConnectionQuality: &quality,
	})
	require.NoError(t, err)
	assert.True(t, gamesChanged)
	assert.False(t, proxyChanged)
	assert.Equal(t, []string{"Rust"}, updated.GamesToWatch)

	// a reload sees the persisted values
	reloaded, err := LoadSettings(path)
	require.NoError(t, err)
	got := reloaded.Snapshot()
	assert.Equal(t, []string{"Rust"}, got.GamesToWatch)
	assert.Equal(t, 2, got.ConnectionQuality)
}

func TestSettingsStore_ApplyProxyChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := LoadSettings(path)
	require.NoError(t, err)

	proxy := "http://127.0.0.1:8888"
	_, gamesChanged, proxyChanged, err := store.Apply(&model.SettingsPatch{Proxy: &proxy})
	require.NoError(t, err)
	assert.False(t, gamesChanged)
	assert.True(t, proxyChanged)
	assert.Equal(t, proxy, store.Snapshot().Proxy)
}

func TestSettingsStore_ApplyClampsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := LoadSettings(path)
	require.NoError(t, err)

	quality := 99
	interval := 1
	updated, _, _, err := store.Apply(&model.SettingsPatch{
		ConnectionQuality:      &quality,
		MinimumRefreshInterval: &interval,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MaxConnectionQuality, updated.ConnectionQuality)
	assert.Equal(t, model.MinRefreshIntervalMinutes, updated.MinimumRefreshInterval)
}
