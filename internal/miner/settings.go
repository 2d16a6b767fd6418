package miner

import (
	"fmt"
	"sync"

	"github.com/Guliveer/twitch-drops-go/internal/jsonutil"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// SettingsStore owns the persisted user settings. Every mutation is written
// back to settings.json before it becomes visible to readers.
type SettingsStore struct {
	mu   sync.RWMutex
	path string
	cur  *model.Settings
}

// LoadSettings reads settings.json, falling back to defaults for a fresh data
// directory. Out-of-range values are clamped on load.
func LoadSettings(path string) (*SettingsStore, error) {
	cur := model.DefaultSettings()
	ok, err := jsonutil.LoadFile(path, cur)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	cur.Normalize()
	store := &SettingsStore{path: path, cur: cur}
	if !ok {
		if err := jsonutil.SaveFile(path, cur); err != nil {
			return nil, fmt.Errorf("writing default settings: %w", err)
		}
	}
	return store, nil
}

// Snapshot returns a copy of the current settings.
func (s *SettingsStore) Snapshot() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cur
}

// Apply merges a patch, persists the result, and reports whether the wanted
// games computation or the proxy changed. The in-memory state only moves when
// the write succeeded.
func (s *SettingsStore) Apply(patch *model.SettingsPatch) (model.Settings, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur
	gamesChanged := next.Apply(patch)
	proxyChanged := next.Proxy != s.cur.Proxy

	if err := jsonutil.SaveFile(s.path, &next); err != nil {
		return *s.cur, false, false, fmt.Errorf("persisting settings: %w", err)
	}
	s.cur = &next
	return next, gamesChanged, proxyChanged, nil
}
