package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_Normalize_Clamps(t *testing.T) {
	s := &Settings{ConnectionQuality: 0, MinimumRefreshInterval: 1}
	s.Normalize()
	assert.Equal(t, MinConnectionQuality, s.ConnectionQuality)
	assert.Equal(t, MinRefreshIntervalMinutes, s.MinimumRefreshInterval)
	assert.NotNil(t, s.MiningBenefits)
	assert.NotNil(t, s.GamesToWatch)

	s.ConnectionQuality = 99
	s.Normalize()
	assert.Equal(t, MaxConnectionQuality, s.ConnectionQuality)
}

func TestSettings_GameIndex(t *testing.T) {
	s := DefaultSettings()
	s.GamesToWatch = []string{"Rust", "g2"}

	rust := &Game{ID: "g1", Name: "Rust", DisplayName: "Rust"}
	byID := &Game{ID: "g2", Name: "Other Game", DisplayName: "Other Game"}
	absent := &Game{ID: "g3", Name: "Nope", DisplayName: "Nope"}

	assert.Equal(t, 0, s.GameIndex(rust))
	assert.Equal(t, 1, s.GameIndex(byID))
	assert.Equal(t, -1, s.GameIndex(absent))
	assert.Equal(t, -1, s.GameIndex(nil))
}

func TestSettings_WantsGame_EmptyListAllowsAll(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.WantsGame(&Game{ID: "any"}))

	s.GamesToWatch = []string{"Rust"}
	assert.True(t, s.WantsGame(&Game{ID: "g1", Name: "Rust"}))
	assert.False(t, s.WantsGame(&Game{ID: "g2", Name: "Other"}))
}

func TestSettings_Apply(t *testing.T) {
	s := DefaultSettings()

	games := []string{"Rust"}
	quality := 3
	changed := s.Apply(&SettingsPatch{
		GamesToWatch:      &games,
		ConnectionQuality: &quality,
	})

	assert.True(t, changed)
	assert.Equal(t, []string{"Rust"}, s.GamesToWatch)
	assert.Equal(t, 3, s.ConnectionQuality)

	dark := false
	changed = s.Apply(&SettingsPatch{DarkMode: &dark})
	assert.False(t, changed)
	assert.False(t, s.DarkMode)
}

func TestSettings_Apply_NormalizesPatch(t *testing.T) {
	s := DefaultSettings()
	quality := 42
	s.Apply(&SettingsPatch{ConnectionQuality: &quality})
	assert.Equal(t, MaxConnectionQuality, s.ConnectionQuality)
}
