package model

import (
	"fmt"
	"time"
)

// PreconditionDepthCap bounds precondition chain traversal. Chains deeper than
// this, or containing a cycle, are rejected at reconcile time.
const PreconditionDepthCap = 32

// CampaignStatus is derived deterministically from the campaign time window.
type CampaignStatus string

const (
	CampaignUpcoming CampaignStatus = "UPCOMING"
	CampaignActive   CampaignStatus = "ACTIVE"
	CampaignExpired  CampaignStatus = "EXPIRED"
)

// ACLEntry names a channel allow-listed by a campaign.
type ACLEntry struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// Campaign represents a drop campaign. It owns its drops in declaration order;
// drops reference the campaign back by identifier only.
type Campaign struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Game    *Game  `json:"game"`
	LinkURL string `json:"link_url,omitempty"`

	// Linked reports whether the user's platform account is connected to the
	// campaign's game account.
	Linked bool `json:"linked"`

	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`

	// valid is false for campaigns the platform already reports as expired,
	// regardless of the local clock.
	valid bool

	// AllowList is the campaign ACL. Empty means directory-based discovery.
	AllowList []ACLEntry `json:"allow_list,omitempty"`

	Drops []*Drop `json:"drops,omitempty"`

	dropsByID map[string]*Drop
}

// NewCampaign creates a Campaign shell; drops are attached via AddDrop.
func NewCampaign(id, name string, game *Game, startAt, endAt time.Time, expired bool) *Campaign {
	return &Campaign{
		ID:        id,
		Name:      name,
		Game:      game,
		LinkURL:   fmt.Sprintf("https://www.twitch.tv/drops/campaigns?dropID=%s", id),
		StartAt:   startAt,
		EndAt:     endAt,
		valid:     !expired,
		dropsByID: make(map[string]*Drop),
	}
}

// AddDrop attaches a drop, keeping declaration order.
func (c *Campaign) AddDrop(d *Drop) {
	if c.dropsByID == nil {
		c.dropsByID = make(map[string]*Drop)
	}
	if _, ok := c.dropsByID[d.ID]; ok {
		return
	}
	c.Drops = append(c.Drops, d)
	c.dropsByID[d.ID] = d
}

// GetDrop returns a drop by ID, or nil.
func (c *Campaign) GetDrop(id string) *Drop {
	return c.dropsByID[id]
}

// Status derives the campaign status from the current time.
func (c *Campaign) Status(now time.Time) CampaignStatus {
	switch {
	case !c.valid || !c.EndAt.After(now):
		return CampaignExpired
	case now.Before(c.StartAt):
		return CampaignUpcoming
	default:
		return CampaignActive
	}
}

// Active reports whether the campaign is currently running.
func (c *Campaign) Active(now time.Time) bool {
	return c.Status(now) == CampaignActive
}

// Upcoming reports whether the campaign has not started yet.
func (c *Campaign) Upcoming(now time.Time) bool {
	return c.Status(now) == CampaignUpcoming
}

// Eligible reports whether the account can earn from this campaign at all.
// Badge and emote rewards do not require account linking.
func (c *Campaign) Eligible() bool {
	if c.Linked {
		return true
	}
	for _, d := range c.Drops {
		for i := range d.Benefits {
			if d.Benefits[i].IsBadgeOrEmote() {
				return true
			}
		}
	}
	return false
}

// ACLBased reports whether discovery for this campaign uses an allow list.
func (c *Campaign) ACLBased() bool {
	return len(c.AllowList) > 0
}

// AllowsChannel reports whether the channel may progress this campaign.
// Campaigns without an ACL allow every channel playing their game.
func (c *Campaign) AllowsChannel(channelID string) bool {
	if !c.ACLBased() {
		return true
	}
	for _, e := range c.AllowList {
		if e.ID == channelID {
			return true
		}
	}
	return false
}

// TotalDrops returns the number of drops in the campaign.
func (c *Campaign) TotalDrops() int {
	return len(c.Drops)
}

// ClaimedDrops returns how many drops have been claimed.
func (c *Campaign) ClaimedDrops() int {
	n := 0
	for _, d := range c.Drops {
		if d.IsClaimed {
			n++
		}
	}
	return n
}

// Finished reports whether nothing is left to earn.
func (c *Campaign) Finished() bool {
	for _, d := range c.Drops {
		if !d.IsClaimed && d.RequiredMinutes > 0 {
			return false
		}
	}
	return true
}

// RemainingMinutes returns the longest remaining watch time over all drops,
// following precondition chains.
func (c *Campaign) RemainingMinutes() int {
	maxMinutes := 0
	for _, d := range c.Drops {
		if m := c.chainRemaining(d, 0); m > maxMinutes {
			maxMinutes = m
		}
	}
	return maxMinutes
}

func (c *Campaign) chainRemaining(d *Drop, depth int) int {
	if depth > PreconditionDepthCap {
		return 0
	}
	maxPre := 0
	for _, pid := range d.Preconditions {
		pre := c.dropsByID[pid]
		if pre == nil {
			continue
		}
		if m := c.chainRemaining(pre, depth+1); m > maxPre {
			maxPre = m
		}
	}
	return d.RemainingMinutes() + maxPre
}

// ValidateChains walks every precondition chain, marking drops with cycles,
// missing references or excessive depth as broken. Returns the broken drop IDs.
func (c *Campaign) ValidateChains() []string {
	var broken []string
	for _, d := range c.Drops {
		if !c.chainValid(d, make(map[string]bool), 0) {
			d.MarkChainBroken()
			broken = append(broken, d.ID)
		}
	}
	return broken
}

func (c *Campaign) chainValid(d *Drop, visiting map[string]bool, depth int) bool {
	if depth > PreconditionDepthCap {
		return false
	}
	if visiting[d.ID] {
		return false
	}
	visiting[d.ID] = true
	defer delete(visiting, d.ID)
	for _, pid := range d.Preconditions {
		pre := c.dropsByID[pid]
		if pre == nil {
			return false
		}
		if !c.chainValid(pre, visiting, depth+1) {
			return false
		}
	}
	return true
}

// PreconditionsMet reports whether every transitive precondition of the drop
// is claimed.
func (c *Campaign) PreconditionsMet(d *Drop) bool {
	if d.ChainBroken() {
		return false
	}
	for _, pid := range d.Preconditions {
		pre := c.dropsByID[pid]
		if pre == nil || !pre.IsClaimed || !c.PreconditionsMet(pre) {
			return false
		}
	}
	return true
}

// inPreconditionChain reports whether the drop is a precondition of some
// unclaimed sibling.
func (c *Campaign) inPreconditionChain(id string) bool {
	for _, d := range c.Drops {
		if d.IsClaimed {
			continue
		}
		for _, pid := range d.Preconditions {
			if pid == id {
				return true
			}
		}
	}
	return false
}

// DropEarnable reports whether a specific drop can currently gain minutes.
func (c *Campaign) DropEarnable(d *Drop, now time.Time) bool {
	return !d.IsClaimed &&
		!d.ChainBroken() &&
		d.RequiredMinutes > 0 &&
		d.ExtrapolatedMinutes() < MaxExtrapolatedMinutes &&
		c.PreconditionsMet(d) &&
		(len(d.Benefits) > 0 || c.inPreconditionChain(d.ID)) &&
		d.Active(now)
}

// CanEarn reports whether any drop can gain minutes on the given channel.
// A nil channel checks campaign-level earnability only.
func (c *Campaign) CanEarn(ch *Channel, now time.Time) bool {
	if !c.Eligible() || !c.Active(now) {
		return false
	}
	if ch != nil {
		if !c.AllowsChannel(ch.ID) {
			return false
		}
		game := ch.CurrentGame()
		if game == nil || !game.Equal(c.Game) {
			return false
		}
	}
	for _, d := range c.Drops {
		if c.DropEarnable(d, now) {
			return true
		}
	}
	return false
}

// CanEarnWithin reports whether the campaign could be progressed at some point
// before the given future timestamp, ignoring channel state.
func (c *Campaign) CanEarnWithin(now, stamp time.Time) bool {
	if !c.Eligible() || !c.valid || !c.EndAt.After(now) || !c.StartAt.Before(stamp) {
		return false
	}
	for _, d := range c.Drops {
		if d.IsClaimed || d.ChainBroken() || d.RequiredMinutes <= 0 {
			continue
		}
		if d.EndAt.After(now) && d.StartAt.Before(stamp) {
			return true
		}
	}
	return false
}

// FirstDrop returns the earnable drop with the least remaining minutes, the
// one progress is expected to land on.
func (c *Campaign) FirstDrop(now time.Time) *Drop {
	var best *Drop
	for _, d := range c.Drops {
		if !c.DropEarnable(d, now) {
			continue
		}
		if best == nil || d.RemainingMinutes() < best.RemainingMinutes() {
			best = d
		}
	}
	return best
}

// BumpMinutes extrapolates one minute onto every earnable drop. Returns the
// drops whose minutes advanced and whether any of them hit the extrapolation
// cap.
func (c *Campaign) BumpMinutes(now time.Time) ([]*Drop, bool) {
	var bumped []*Drop
	capReached := false
	for _, d := range c.Drops {
		if !c.DropEarnable(d, now) || d.Complete() {
			continue
		}
		if d.BumpMinute() {
			capReached = true
		}
		bumped = append(bumped, d)
	}
	return bumped, capReached
}

// TimeTriggers returns every boundary instant at which this campaign changes
// earnability: campaign and drop window edges.
func (c *Campaign) TimeTriggers() []time.Time {
	triggers := []time.Time{c.StartAt, c.EndAt}
	for _, d := range c.Drops {
		triggers = append(triggers, d.StartAt, d.EndAt)
	}
	return triggers
}

// Equal returns true if two campaigns have the same ID.
func (c *Campaign) Equal(other *Campaign) bool {
	if other == nil {
		return false
	}
	return c.ID == other.ID
}

// String returns a human-readable representation of the campaign.
func (c *Campaign) String() string {
	gameName := ""
	if c.Game != nil {
		gameName = c.Game.DisplayName
	}
	return fmt.Sprintf("Campaign(id=%s, name=%s, game=%s, drops=%d/%d)",
		c.ID, c.Name, gameName, c.ClaimedDrops(), c.TotalDrops())
}
