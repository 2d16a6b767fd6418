// Package events implements the in-process event bus between the miner core
// and the external control surface.
package events

import "sync"

// Name identifies an outbound event on the bus.
type Name string

// Outbound events consumed by the control surface.
const (
	StatusUpdate  Name = "status_update"
	ConsoleOutput Name = "console_output"

	ChannelAdd           Name = "channel_add"
	ChannelUpdate        Name = "channel_update"
	ChannelRemove        Name = "channel_remove"
	ChannelsBatchUpdate  Name = "channels_batch_update"
	ChannelsClear        Name = "channels_clear"
	ChannelWatching      Name = "channel_watching"
	ChannelWatchingClear Name = "channel_watching_clear"

	CampaignAdd          Name = "campaign_add"
	InventoryBatchUpdate Name = "inventory_batch_update"
	InventoryClear       Name = "inventory_clear"
	DropUpdate           Name = "drop_update"

	DropProgress     Name = "drop_progress"
	DropProgressStop Name = "drop_progress_stop"

	LoginRequired     Name = "login_required"
	OAuthCodeRequired Name = "oauth_code_required"
	LoginStatus       Name = "login_status"

	SettingsUpdated   Name = "settings_updated"
	GamesAvailable    Name = "games_available"
	ManualModeUpdate  Name = "manual_mode_update"
	WantedItemsUpdate Name = "wanted_items_update"
	ThemeChange       Name = "theme_change"

	AttentionRequired Name = "attention_required"
)

// Event is a single bus message.
type Event struct {
	Name Name `json:"event"`
	Data any  `json:"data"`
}

// Bus fans events out to subscribers. Emitting never blocks the miner: a
// subscriber that falls behind loses the oldest events in its queue.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a subscriber with the given queue depth. The returned
// cancel func removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Emit publishes an event to every subscriber.
func (b *Bus) Emit(name Name, data any) {
	ev := Event{Name: name, Data: data}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// queue full, drop the oldest entry to make room
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Emitter is the narrow interface the miner components use to publish.
// *Bus satisfies it.
type Emitter interface {
	Emit(name Name, data any)
}
