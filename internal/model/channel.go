package model

import (
	"fmt"
	"sync"
	"time"
)

// Stream holds the live broadcast state of a channel. A nil Stream on a
// Channel means the channel is offline.
type Stream struct {
	BroadcastID  string `json:"broadcast_id"`
	Game         *Game  `json:"game"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	DropsEnabled bool   `json:"drops_enabled"`

	// BeaconURL is the per-stream endpoint minute-watched payloads are
	// POSTed to. Scraped from the channel page, refreshed on 404/410.
	BeaconURL string `json:"-"`
}

// Channel represents a watchable Twitch channel.
type Channel struct {
	Mu sync.RWMutex

	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`

	// ACLBased marks channels discovered through a campaign allow list
	// rather than the game directory.
	ACLBased bool `json:"acl_based"`

	Stream *Stream `json:"stream,omitempty"`

	// pendingOnlineAt is set when a stream-up signal arrives; the channel
	// is only treated as online once the confirmation delay has passed and
	// stream data was fetched.
	pendingOnlineAt time.Time
}

// NewChannel creates an offline channel.
func NewChannel(id, login, displayName string, aclBased bool) *Channel {
	if displayName == "" {
		displayName = login
	}
	return &Channel{
		ID:          id,
		Login:       login,
		DisplayName: displayName,
		ACLBased:    aclBased,
	}
}

// Online reports whether the channel currently has a live stream.
func (c *Channel) Online() bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Stream != nil
}

// PendingOnline reports whether a stream-up signal is awaiting confirmation.
func (c *Channel) PendingOnline() bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return !c.pendingOnlineAt.IsZero()
}

// MarkPendingOnline records a stream-up signal at the given instant. Returns
// false if the channel is already online or already pending.
func (c *Channel) MarkPendingOnline(at time.Time) bool {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.Stream != nil || !c.pendingOnlineAt.IsZero() {
		return false
	}
	c.pendingOnlineAt = at
	return true
}

// PendingSince returns when the pending-online signal arrived.
func (c *Channel) PendingSince() time.Time {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.pendingOnlineAt
}

// SetStream installs fetched stream data and clears any pending-online state.
func (c *Channel) SetStream(s *Stream) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Stream = s
	c.pendingOnlineAt = time.Time{}
}

// SetOffline drops the stream state.
func (c *Channel) SetOffline() {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Stream = nil
	c.pendingOnlineAt = time.Time{}
}

// SetViewers updates the live viewer count from a pub-sub viewcount message.
// No-op while offline.
func (c *Channel) SetViewers(n int) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.Stream != nil {
		c.Stream.ViewerCount = n
	}
}

// Viewers returns the current viewer count, zero when offline.
func (c *Channel) Viewers() int {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	if c.Stream == nil {
		return 0
	}
	return c.Stream.ViewerCount
}

// CurrentGame returns the game of the live stream, nil when offline.
func (c *Channel) CurrentGame() *Game {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	if c.Stream == nil {
		return nil
	}
	return c.Stream.Game
}

// DropsEnabled reports whether the live stream carries the drops tag.
func (c *Channel) DropsEnabled() bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Stream != nil && c.Stream.DropsEnabled
}

// BeaconURL returns the minute-watched endpoint for the live stream.
func (c *Channel) BeaconURL() string {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	if c.Stream == nil {
		return ""
	}
	return c.Stream.BeaconURL
}

// URL returns the channel page address.
func (c *Channel) URL() string {
	return "https://www.twitch.tv/" + c.Login
}

// Equal returns true if two channels have the same ID.
func (c *Channel) Equal(other *Channel) bool {
	if other == nil {
		return false
	}
	return c.ID == other.ID
}

// String returns a human-readable representation of the channel.
func (c *Channel) String() string {
	status := "offline"
	if c.Online() {
		status = "online"
	}
	return fmt.Sprintf("Channel(id=%s, login=%s, %s)", c.ID, c.Login, status)
}
