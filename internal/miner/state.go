package miner

// State names a phase of the mining cycle. The phases run in declaration
// order: an inventory fetch flows through games update, channel cleanup and
// channel fetch before a switch decision, and each phase can also be entered
// directly when only its concern changed.
type State int

const (
	StateIdle State = iota
	StateInventoryFetch
	StateGamesUpdate
	StateChannelsCleanup
	StateChannelsFetch
	StateChannelSwitch
	StateExit
)

var stateNames = map[State]string{
	StateIdle:            "IDLE",
	StateInventoryFetch:  "INVENTORY_FETCH",
	StateGamesUpdate:     "GAMES_UPDATE",
	StateChannelsCleanup: "CHANNELS_CLEANUP",
	StateChannelsFetch:   "CHANNELS_FETCH",
	StateChannelSwitch:   "CHANNEL_SWITCH",
	StateExit:            "EXIT",
}

// String returns the phase name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// next returns the phase that follows in the normal cycle. Every phase
// eventually drains into IDLE.
func (s State) next() State {
	switch s {
	case StateInventoryFetch:
		return StateGamesUpdate
	case StateGamesUpdate:
		return StateChannelsCleanup
	case StateChannelsCleanup:
		return StateChannelsFetch
	case StateChannelsFetch:
		return StateChannelSwitch
	default:
		return StateIdle
	}
}

// coalesce merges a newly requested phase into an already pending one. The
// earlier phase in the cycle wins because it runs the later ones anyway; an
// exit request is sticky and beats everything.
func coalesce(pending, requested State) State {
	if pending == StateExit || requested == StateExit {
		return StateExit
	}
	if pending == StateIdle {
		return requested
	}
	if requested == StateIdle {
		return pending
	}
	if requested < pending {
		return requested
	}
	return pending
}
