package miner

import (
	"context"
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/channels"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

const (
	// maintenancePollCap bounds the maintenance sleep so boundary triggers
	// registered after a reconcile are picked up promptly.
	maintenancePollCap = time.Minute
	// onlineConfirmInterval spaces the pending-online confirmation sweeps.
	onlineConfirmInterval = 10 * time.Second
	// statusInterval spaces the periodic status push to the control surface.
	statusInterval = 60 * time.Second
)

// runMaintenance wakes the state machine for the periodic inventory refresh
// and for campaign boundary triggers ("a drop window opens or closes soon").
func (m *Miner) runMaintenance(ctx context.Context) error {
	for {
		now := time.Now()
		refreshAt := m.lastReconcileTime().Add(inventoryRefreshInterval)

		wakeAt := refreshAt
		triggered := false
		if t, ok := m.inv.NextTrigger(now); ok && t.Before(wakeAt) {
			wakeAt = t
			triggered = true
		}

		wait := time.Until(wakeAt)
		if wait < time.Second {
			wait = time.Second
		}
		if wait > maintenancePollCap {
			wait = maintenancePollCap
			triggered = false
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		now = time.Now()
		switch {
		case !m.lastReconcileTime().Add(inventoryRefreshInterval).After(now):
			m.log.Debug("Periodic inventory refresh due")
			m.requestState(StateInventoryFetch)
		case triggered:
			m.log.Debug("Campaign boundary reached, updating channels")
			m.requestState(StateGamesUpdate)
		}
	}
}

func (m *Miner) lastReconcileTime() time.Time {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()
	if m.lastReconcile.IsZero() {
		return m.startedAt
	}
	return m.lastReconcile
}

// runOnlineConfirm promotes channels whose stream-up signal held for the
// confirmation delay. The fetch both verifies liveness and fills in the game
// and beacon data the pub-sub signal lacks.
func (m *Miner) runOnlineConfirm(ctx context.Context) error {
	ticker := time.NewTicker(onlineConfirmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		due := m.channels.ExpirePending(time.Now())
		if len(due) == 0 {
			continue
		}

		cameOnline := false
		for _, ch := range due {
			stream, err := m.tw.FetchStream(ctx, ch)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.log.Debug("Online confirmation fetch failed",
					"channel", ch.Login, "error", err)
				ch.SetOffline()
				continue
			}
			if stream == nil {
				// the signal did not pan out
				ch.SetOffline()
				continue
			}

			ch.SetStream(stream)
			cameOnline = true
			m.log.Event(ctx, model.EventChannelOnline, "Channel online",
				"channel", ch.Login, "game", gameName(ch))
			m.bus.Emit(events.ChannelUpdate, channels.View(ch))
		}

		if cameOnline {
			m.channels.Resort()
			m.requestState(StateChannelSwitch)
		}
	}
}

// runStatusTicker pushes a status snapshot to the control surface on a fixed
// cadence so clients recover from missed events.
func (m *Miner) runStatusTicker(ctx context.Context) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.bus.Emit(events.StatusUpdate, m.Status())
		}
	}
}

func gameName(ch *model.Channel) string {
	if g := ch.CurrentGame(); g != nil {
		return g.DisplayName
	}
	return ""
}
