package model

import (
	"fmt"
)

// Connection quality bounds for the heartbeat divisor.
const (
	MinConnectionQuality = 1
	MaxConnectionQuality = 6
)

// MinRefreshIntervalMinutes is the floor for the periodic inventory re-fetch.
const MinRefreshIntervalMinutes = 5

// InventoryFilters are UI filter toggles persisted across restarts.
type InventoryFilters struct {
	ShowLinked   bool `json:"show_linked"`
	ShowUpcoming bool `json:"show_upcoming"`
	ShowExpired  bool `json:"show_expired"`
	ShowExcluded bool `json:"show_excluded"`
	ShowFinished bool `json:"show_finished"`
}

// Settings is the user-facing configuration persisted as settings.json in the
// data directory.
type Settings struct {
	// GamesToWatch is the mining priority list, highest priority first.
	// Empty means every active campaign's game is allowed.
	GamesToWatch []string `json:"games_to_watch"`

	Language string `json:"language"`
	DarkMode bool   `json:"dark_mode"`

	// ConnectionQuality divides the 20s heartbeat base interval.
	ConnectionQuality int `json:"connection_quality"`

	// MinimumRefreshInterval is the inventory re-fetch floor in minutes.
	MinimumRefreshInterval int `json:"minimum_refresh_interval_minutes"`

	// Proxy is an HTTP or SOCKS proxy URL, empty for a direct connection.
	Proxy string `json:"proxy"`

	InventoryFilters InventoryFilters `json:"inventory_filters"`

	// MiningBenefits gates drops by benefit type. A type missing from the
	// map is treated as wanted.
	MiningBenefits map[BenefitType]bool `json:"mining_benefits"`
}

// DefaultSettings returns settings for a fresh data directory.
func DefaultSettings() *Settings {
	return &Settings{
		GamesToWatch:           []string{},
		Language:               "English",
		DarkMode:               true,
		ConnectionQuality:      1,
		MinimumRefreshInterval: 30,
		InventoryFilters: InventoryFilters{
			ShowLinked:   true,
			ShowUpcoming: true,
		},
		MiningBenefits: map[BenefitType]bool{
			BenefitItem:  true,
			BenefitBadge: true,
			BenefitEmote: true,
			BenefitOther: true,
		},
	}
}

// Normalize clamps out-of-range values in place. Called after every load and
// merge so the rest of the miner never sees an invalid quality or interval.
func (s *Settings) Normalize() {
	if s.ConnectionQuality < MinConnectionQuality {
		s.ConnectionQuality = MinConnectionQuality
	}
	if s.ConnectionQuality > MaxConnectionQuality {
		s.ConnectionQuality = MaxConnectionQuality
	}
	if s.MinimumRefreshInterval < MinRefreshIntervalMinutes {
		s.MinimumRefreshInterval = MinRefreshIntervalMinutes
	}
	if s.MiningBenefits == nil {
		s.MiningBenefits = DefaultSettings().MiningBenefits
	}
	if s.GamesToWatch == nil {
		s.GamesToWatch = []string{}
	}
}

// GameIndex returns the position of a game in the priority list, matching by
// name or display name. Returns -1 when absent.
func (s *Settings) GameIndex(g *Game) int {
	if g == nil {
		return -1
	}
	for i, name := range s.GamesToWatch {
		if name == g.Name || name == g.DisplayName || name == g.ID {
			return i
		}
	}
	return -1
}

// WantsGame reports whether mining the game is allowed by the priority list.
func (s *Settings) WantsGame(g *Game) bool {
	if len(s.GamesToWatch) == 0 {
		return true
	}
	return s.GameIndex(g) >= 0
}

// SettingsPatch carries a partial settings update. Nil fields are untouched.
type SettingsPatch struct {
	GamesToWatch           *[]string             `json:"games_to_watch,omitempty"`
	Language               *string               `json:"language,omitempty"`
	DarkMode               *bool                 `json:"dark_mode,omitempty"`
	ConnectionQuality      *int                  `json:"connection_quality,omitempty"`
	MinimumRefreshInterval *int                  `json:"minimum_refresh_interval_minutes,omitempty"`
	Proxy                  *string               `json:"proxy,omitempty"`
	InventoryFilters       *InventoryFilters     `json:"inventory_filters,omitempty"`
	MiningBenefits         *map[BenefitType]bool `json:"mining_benefits,omitempty"`
}

// Apply merges the patch into the settings and normalizes the result. Returns
// true if the wanted-games computation is affected and a games update should
// follow.
func (s *Settings) Apply(p *SettingsPatch) bool {
	gamesChanged := false
	if p.GamesToWatch != nil {
		s.GamesToWatch = *p.GamesToWatch
		gamesChanged = true
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.DarkMode != nil {
		s.DarkMode = *p.DarkMode
	}
	if p.ConnectionQuality != nil {
		s.ConnectionQuality = *p.ConnectionQuality
	}
	if p.MinimumRefreshInterval != nil {
		s.MinimumRefreshInterval = *p.MinimumRefreshInterval
	}
	if p.Proxy != nil {
		s.Proxy = *p.Proxy
	}
	if p.InventoryFilters != nil {
		s.InventoryFilters = *p.InventoryFilters
	}
	if p.MiningBenefits != nil {
		s.MiningBenefits = *p.MiningBenefits
		gamesChanged = true
	}
	s.Normalize()
	return gamesChanged
}

// String returns a short summary of the settings.
func (s *Settings) String() string {
	return fmt.Sprintf("Settings(games=%d, quality=%d, refresh=%dm)",
		len(s.GamesToWatch), s.ConnectionQuality, s.MinimumRefreshInterval)
}
