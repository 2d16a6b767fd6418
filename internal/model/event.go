package model

// Event represents a miner event type for notification filtering and logging.
type Event string

// All supported miner events.
const (
	EventDropProgress   Event = "DROP_PROGRESS"
	EventDropClaim      Event = "DROP_CLAIM"
	EventChannelOnline  Event = "CHANNEL_ONLINE"
	EventChannelOffline Event = "CHANNEL_OFFLINE"
	EventChannelSwitch  Event = "CHANNEL_SWITCH"
	EventLoginRequired  Event = "LOGIN_REQUIRED"
	EventAttention      Event = "ATTENTION"
	EventTest           Event = "TEST"
)

// AllEvents returns a slice of all defined events.
func AllEvents() []Event {
	return []Event{
		EventDropProgress,
		EventDropClaim,
		EventChannelOnline,
		EventChannelOffline,
		EventChannelSwitch,
		EventLoginRequired,
		EventAttention,
		EventTest,
	}
}

// String returns the string representation of an Event.
func (e Event) String() string {
	return string(e)
}

// ParseEvent converts a string to an Event. Returns empty string if invalid.
func ParseEvent(s string) Event {
	for _, e := range AllEvents() {
		if string(e) == s {
			return e
		}
	}
	return ""
}
