package miner

import (
	"context"
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/channels"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/inventory"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// The methods in this file form the control surface the HTTP server drives.

// Status returns a snapshot of the session for /api/status and the periodic
// status_update event.
func (m *Miner) Status() map[string]any {
	var watching any
	if ch := m.watch.Current(); ch != nil {
		view := channels.View(ch)
		watching = view
	}

	return map[string]any{
		"state":              m.State().String(),
		"username":           m.auth.Username(),
		"logged_in":          m.auth.LoggedIn(),
		"watching":           watching,
		"manual_mode":        m.manualTarget() != "",
		"channels":           m.channels.Count(),
		"campaigns":          len(m.inv.Campaigns()),
		"pubsub_connections": m.pool.ConnectionCount(),
		"pubsub_topics":      m.pool.TotalTopicCount(),
		"uptime_seconds":     int(time.Since(m.startedAt).Seconds()),
	}
}

// InitialState is the full snapshot replayed to a fresh WebSocket client.
func (m *Miner) InitialState() map[string]any {
	return map[string]any{
		"status":    m.Status(),
		"settings":  m.settings.Snapshot(),
		"channels":  m.channels.Views(),
		"campaigns": m.inv.CampaignSnapshots(),
		"wanted":    m.inv.WantedItems(),
	}
}

// Channels returns the registry snapshot in priority order.
func (m *Miner) Channels() []channels.ChannelView {
	return m.channels.Views()
}

// Campaigns returns the inventory snapshot in priority order.
func (m *Miner) Campaigns() []inventory.CampaignSnapshot {
	return m.inv.CampaignSnapshots()
}

// Settings returns the current user settings.
func (m *Miner) Settings() model.Settings {
	return m.settings.Snapshot()
}

// UpdateSettings merges and persists a settings patch. A changed games or
// benefits selection reruns the games update; a changed proxy is applied to
// the HTTP stack immediately.
func (m *Miner) UpdateSettings(patch model.SettingsPatch) (model.Settings, error) {
	darkBefore := m.settings.Snapshot().DarkMode
	updated, gamesChanged, proxyChanged, err := m.settings.Apply(&patch)
	if err != nil {
		return updated, err
	}

	if proxyChanged {
		if perr := m.gq.SetProxy(updated.Proxy); perr != nil {
			m.log.Warn("Proxy change rejected", "proxy", updated.Proxy, "error", perr)
		}
	}

	m.bus.Emit(events.SettingsUpdated, updated)
	if updated.DarkMode != darkBefore {
		m.bus.Emit(events.ThemeChange, map[string]any{"dark_mode": updated.DarkMode})
	}
	m.log.Info("Settings updated", "settings", updated.String())

	if gamesChanged {
		m.requestState(StateGamesUpdate)
	}
	return updated, nil
}

// SelectChannel switches to manual mode targeting the given channel.
func (m *Miner) SelectChannel(id string) error {
	ch := m.channels.Get(id)
	if ch == nil {
		return channels.ErrNotFound
	}
	if !ch.Online() {
		return channels.ErrOffline
	}

	m.log.Info("Manual channel selected", "channel", ch.Login)
	m.setManualTarget(id)
	m.requestState(StateChannelSwitch)
	return nil
}

// ExitManualMode returns to automatic channel selection.
func (m *Miner) ExitManualMode() {
	if m.manualTarget() == "" {
		return
	}
	m.log.Info("Manual mode exited")
	m.setManualTarget("")
	m.requestState(StateChannelSwitch)
}

// Reload schedules a full inventory refetch, debounced to the configured
// minimum refresh interval.
func (m *Miner) Reload() {
	floor := time.Duration(m.settings.Snapshot().MinimumRefreshInterval) * time.Minute
	if since := time.Since(m.lastReconcileTime()); since < floor {
		m.log.Info("Reload skipped, refreshed recently",
			"since", since.Round(time.Second), "floor", floor)
		return
	}
	m.log.Info("Reload requested")
	m.requestState(StateInventoryFetch)
}

// ConfirmOAuth acknowledges that the user entered the device code. The token
// poll picks the authorization up on its own; this only surfaces feedback.
func (m *Miner) ConfirmOAuth() {
	m.log.Info("Device code confirmation received")
	m.bus.Emit(events.LoginStatus, map[string]any{
		"logged_in": m.auth.LoggedIn(),
		"username":  m.auth.Username(),
	})
}

// VerifyProxy checks a proxy URL without applying it.
func (m *Miner) VerifyProxy(ctx context.Context, proxyURL string) error {
	return m.tw.VerifyProxy(ctx, proxyURL)
}

// RequestExit shuts the session down with exit code 0.
func (m *Miner) RequestExit() {
	m.requestState(StateExit)
}
