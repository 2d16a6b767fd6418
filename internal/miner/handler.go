package miner

import (
	"context"
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/channels"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// HandlePubSubMessage routes a decoded pub-sub message. Called from the pool's
// routing loop; must never block for long.
func (m *Miner) HandlePubSubMessage(ctx context.Context, msg *model.Message) {
	if msg == nil {
		return
	}

	switch msg.Topic.Kind {
	case model.TopicUserDrops:
		m.handleDropEvent(ctx, msg)
	case model.TopicUserNotifications:
		m.handleNotification(ctx, msg)
	case model.TopicChannelStreamState:
		m.handleStreamState(ctx, msg)
	case model.TopicChannelStreamUpdate:
		m.handleStreamUpdate(ctx, msg)
	default:
		m.log.Debug("Unhandled pub-sub topic", "topic", msg.Topic.String())
	}

	// Allow GC to collect the raw JSON map now that all data has been extracted.
	msg.RawMessage = nil
}

// handleDropEvent applies pushed progress and claim confirmations.
func (m *Miner) handleDropEvent(ctx context.Context, msg *model.Message) {
	if report, ok := msg.DropProgress(); ok {
		if d := m.inv.ApplyProgress(report); d == nil {
			if _, known := m.inv.Drop(report.DropID); known == nil {
				// progress for a drop we have never seen; the inventory
				// is stale
				m.log.Debug("Progress for unknown drop, scheduling refetch",
					"drop_id", report.DropID)
				m.requestState(StateInventoryFetch)
			}
		}
		return
	}

	if claimID, ok := msg.DropClaimID(); ok {
		if d := m.inv.MarkClaimedByInstance(claimID); d != nil {
			m.log.Event(ctx, model.EventDropClaim,
				"Drop claim confirmed", "drop", d.Name)
		} else {
			m.log.Debug("Claim for unknown drop instance", "claim_id", claimID)
			m.requestState(StateInventoryFetch)
		}
		return
	}

	m.log.Debug("Unhandled drop event", "type", string(msg.Type))
}

// handleNotification reacts to on-site notifications. A drop reward reminder
// means a claimable drop exists that local state does not know about.
func (m *Miner) handleNotification(ctx context.Context, msg *model.Message) {
	notifID, ok := msg.DropReminder()
	if !ok {
		return
	}

	m.log.Info("Drop reward reminder received, refreshing inventory",
		"notification_id", notifID)
	if err := m.gq.DeleteNotification(ctx, notifID); err != nil {
		m.log.Debug("Failed to clear notification",
			"notification_id", notifID, "error", err)
	}
	m.requestState(StateInventoryFetch)
}

// handleStreamState processes stream-up, stream-down and viewcount signals.
func (m *Miner) handleStreamState(ctx context.Context, msg *model.Message) {
	ch := m.channels.Get(msg.ChannelID)
	if ch == nil {
		return
	}

	switch msg.Type {
	case model.MsgTypeStreamUp:
		// online state is confirmed by a stream fetch after the delay; an
		// instant fetch would race the directory not listing the stream yet
		if ch.MarkPendingOnline(time.Now()) {
			m.log.Debug("Stream up signal", "channel", ch.Login)
		}

	case model.MsgTypeStreamDown:
		wasOnline := ch.Online()
		ch.SetOffline()
		if !wasOnline {
			return
		}
		m.bus.Emit(events.ChannelUpdate, channels.View(ch))
		watched := m.watch.Current()
		if watched != nil && watched.ID == ch.ID {
			m.log.Event(ctx, model.EventChannelOffline,
				"Watched channel went offline", "channel", ch.Login)
			m.requestState(StateChannelSwitch)
		}

	case model.MsgTypeViewCount:
		if viewers, ok := msg.Viewers(); ok {
			ch.SetViewers(viewers)
			m.maybeResort()
		}
	}
}

// handleStreamUpdate reacts to broadcast settings changes. A game change can
// start or stop drop progress on the channel, so the stream info is refetched
// and the watch target re-evaluated.
func (m *Miner) handleStreamUpdate(ctx context.Context, msg *model.Message) {
	ch := m.channels.Get(msg.ChannelID)
	if ch == nil || !ch.Online() {
		return
	}

	newGameID, ok := msg.BroadcastGameID()
	if !ok {
		return
	}
	if g := ch.CurrentGame(); g != nil && g.ID == newGameID {
		return
	}

	stream, err := m.tw.FetchStream(ctx, ch)
	if err != nil {
		m.log.Debug("Stream refetch after broadcast update failed",
			"channel", ch.Login, "error", err)
		return
	}
	if stream == nil {
		ch.SetOffline()
	} else {
		ch.SetStream(stream)
	}
	m.bus.Emit(events.ChannelUpdate, channels.View(ch))
	m.maybeResort()

	watched := m.watch.Current()
	switch {
	case watched != nil && watched.ID == ch.ID && !m.inv.CanEarn(ch):
		m.log.Info("Watched channel changed game, re-selecting",
			"channel", ch.Login)
		m.requestState(StateChannelSwitch)
	case watched == nil && m.inv.CanEarn(ch):
		m.requestState(StateChannelSwitch)
	}
}
