package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCampaign(t *testing.T) *Campaign {
	t.Helper()
	now := time.Now()
	return NewCampaign("camp-1", "Test Campaign",
		&Game{ID: "g1", Name: "Rust", DisplayName: "Rust"},
		now.Add(-time.Hour), now.Add(time.Hour), false)
}

func addDrop(c *Campaign, id string, required int, preconditions ...string) *Drop {
	d := NewDrop(id, c.ID, "Drop "+id, required,
		c.StartAt, c.EndAt)
	d.Preconditions = preconditions
	d.Benefits = []Benefit{{ID: "b-" + id, Name: "Reward", Type: BenefitItem}}
	c.AddDrop(d)
	return d
}

func TestCampaign_Status(t *testing.T) {
	now := time.Now()
	c := NewCampaign("c", "n", nil, now.Add(time.Hour), now.Add(2*time.Hour), false)

	assert.Equal(t, CampaignUpcoming, c.Status(now))
	assert.Equal(t, CampaignActive, c.Status(now.Add(90*time.Minute)))
	assert.Equal(t, CampaignExpired, c.Status(now.Add(3*time.Hour)))

	expired := NewCampaign("c", "n", nil, now.Add(-time.Hour), now.Add(time.Hour), true)
	assert.Equal(t, CampaignExpired, expired.Status(now))
}

func TestCampaign_ValidateChains_Cycle(t *testing.T) {
	c := testCampaign(t)
	addDrop(c, "a", 30, "b")
	addDrop(c, "b", 30, "a")
	addDrop(c, "ok", 30)

	broken := c.ValidateChains()
	assert.ElementsMatch(t, []string{"a", "b"}, broken)
	assert.True(t, c.GetDrop("a").ChainBroken())
	assert.False(t, c.GetDrop("ok").ChainBroken())
}

func TestCampaign_ValidateChains_MissingReference(t *testing.T) {
	c := testCampaign(t)
	addDrop(c, "a", 30, "ghost")

	broken := c.ValidateChains()
	assert.Equal(t, []string{"a"}, broken)
}

func TestCampaign_ValidateChains_DepthCap(t *testing.T) {
	c := testCampaign(t)
	prev := ""
	var last string
	for i := 0; i <= PreconditionDepthCap+1; i++ {
		id := fmt.Sprintf("d%d", i)
		if prev == "" {
			addDrop(c, id, 30)
		} else {
			addDrop(c, id, 30, prev)
		}
		prev = id
		last = id
	}

	broken := c.ValidateChains()
	assert.Contains(t, broken, last)
	assert.False(t, c.GetDrop("d0").ChainBroken())
}

func TestCampaign_PreconditionsMet(t *testing.T) {
	c := testCampaign(t)
	first := addDrop(c, "first", 30)
	second := addDrop(c, "second", 30, "first")

	assert.True(t, c.PreconditionsMet(first))
	assert.False(t, c.PreconditionsMet(second))

	first.MarkClaimed()
	assert.True(t, c.PreconditionsMet(second))
}

func TestCampaign_FirstDrop_LeastRemaining(t *testing.T) {
	c := testCampaign(t)
	addDrop(c, "long", 120)
	short := addDrop(c, "short", 30)
	short.ReportMinutes(20, time.Now())

	got := c.FirstDrop(time.Now())
	require.NotNil(t, got)
	assert.Equal(t, "short", got.ID)
}

func TestCampaign_FirstDrop_SkipsClaimedAndBroken(t *testing.T) {
	c := testCampaign(t)
	claimed := addDrop(c, "claimed", 10)
	claimed.MarkClaimed()
	broken := addDrop(c, "broken", 20)
	broken.MarkChainBroken()
	addDrop(c, "open", 60)

	got := c.FirstDrop(time.Now())
	require.NotNil(t, got)
	assert.Equal(t, "open", got.ID)
}

func TestCampaign_CanEarn_ChannelGating(t *testing.T) {
	now := time.Now()
	c := testCampaign(t)
	c.Linked = true
	addDrop(c, "a", 60)

	rust := &Game{ID: "g1", Name: "Rust", DisplayName: "Rust"}
	other := &Game{ID: "g2", Name: "Other", DisplayName: "Other"}

	onGame := NewChannel("ch1", "streamer", "", false)
	onGame.SetStream(&Stream{Game: rust, DropsEnabled: true})
	offGame := NewChannel("ch2", "someone", "", false)
	offGame.SetStream(&Stream{Game: other, DropsEnabled: true})

	assert.True(t, c.CanEarn(onGame, now))
	assert.False(t, c.CanEarn(offGame, now))
	assert.True(t, c.CanEarn(nil, now))
}

func TestCampaign_CanEarn_ACL(t *testing.T) {
	now := time.Now()
	c := testCampaign(t)
	c.Linked = true
	c.AllowList = []ACLEntry{{ID: "allowed", Login: "allowed"}}
	addDrop(c, "a", 60)

	rust := &Game{ID: "g1", Name: "Rust", DisplayName: "Rust"}
	allowed := NewChannel("allowed", "allowed", "", true)
	allowed.SetStream(&Stream{Game: rust, DropsEnabled: true})
	stranger := NewChannel("stranger", "stranger", "", false)
	stranger.SetStream(&Stream{Game: rust, DropsEnabled: true})

	assert.True(t, c.CanEarn(allowed, now))
	assert.False(t, c.CanEarn(stranger, now))
}

func TestCampaign_CanEarnWithin(t *testing.T) {
	now := time.Now()
	c := NewCampaign("c", "n", nil, now.Add(30*time.Minute), now.Add(2*time.Hour), false)
	c.Linked = true
	d := NewDrop("d", "c", "d", 60, now.Add(30*time.Minute), now.Add(2*time.Hour))
	d.Benefits = []Benefit{{ID: "b", Type: BenefitItem}}
	c.AddDrop(d)

	// not active yet, but starts within the hour
	assert.False(t, c.CanEarn(nil, now))
	assert.True(t, c.CanEarnWithin(now, now.Add(time.Hour)))
	assert.False(t, c.CanEarnWithin(now, now.Add(10*time.Minute)))
}

func TestCampaign_Finished(t *testing.T) {
	c := testCampaign(t)
	a := addDrop(c, "a", 30)
	b := addDrop(c, "b", 30)

	assert.False(t, c.Finished())
	a.MarkClaimed()
	assert.False(t, c.Finished())
	b.MarkClaimed()
	assert.True(t, c.Finished())
}

func TestCampaign_Eligible_BadgeWithoutLink(t *testing.T) {
	c := testCampaign(t)
	d := addDrop(c, "a", 30)

	assert.False(t, c.Eligible())

	d.Benefits = []Benefit{{ID: "b", Type: BenefitBadge}}
	assert.True(t, c.Eligible())

	c.Linked = true
	assert.True(t, c.Eligible())
}

func TestCampaign_TimeTriggers(t *testing.T) {
	c := testCampaign(t)
	addDrop(c, "a", 30)

	triggers := c.TimeTriggers()
	// campaign edges plus one pair per drop
	assert.Len(t, triggers, 4)
	assert.Contains(t, triggers, c.StartAt)
	assert.Contains(t, triggers, c.EndAt)
}
