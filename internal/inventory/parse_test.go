package inventory

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/model"
)

func campaignFixture(t *testing.T) *campaignJSON {
	t.Helper()
	start := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	raw := fmt.Sprintf(`{
		"id": "camp-1",
		"name": "Rust Drops",
		"status": "ACTIVE",
		"startAt": %q,
		"endAt": %q,
		"game": {"id": "g1", "slug": "rust", "displayName": "Rust", "boxArtURL": "https://img/box.jpg"},
		"self": {"isAccountConnected": true},
		"allow": {"isEnabled": true, "channels": [{"id": "ch1", "name": "streamer", "displayName": "Streamer"}]},
		"timeBasedDrops": [
			{
				"id": "d1",
				"name": "First Skin",
				"startAt": %q,
				"endAt": %q,
				"requiredMinutesWatched": 120,
				"benefitEdges": [{"benefit": {"id": "b1", "name": "Skin", "imageAssetURL": "https://img/b1.png", "distributionType": "DIRECT_ENTITLEMENT"}}],
				"self": {"currentMinutesWatched": 30, "isClaimed": false, "dropInstanceID": ""}
			},
			{
				"id": "d2",
				"name": "Second Skin",
				"startAt": %q,
				"endAt": %q,
				"requiredMinutesWatched": 240,
				"preconditionDrops": [{"id": "d1"}],
				"benefitEdges": [{"benefit": {"id": "b2", "name": "Badge", "distributionType": "BADGE"}}],
				"self": {"currentMinutesWatched": 0, "isClaimed": false, "dropInstanceID": "u#c#d2"}
			}
		]
	}`, start, end, start, end, start, end)

	cj, err := parseCampaign(json.RawMessage(raw))
	require.NoError(t, err)
	return cj
}

func TestParseCampaign_ToModel(t *testing.T) {
	cj := campaignFixture(t)
	camp := cj.toModel(nil)

	assert.Equal(t, "camp-1", camp.ID)
	assert.True(t, camp.Linked)
	assert.Equal(t, "Rust", camp.Game.DisplayName)
	assert.Equal(t, "rust", camp.Game.Slug)
	require.Len(t, camp.AllowList, 1)
	assert.Equal(t, model.ACLEntry{ID: "ch1", Login: "streamer"}, camp.AllowList[0])
	assert.True(t, camp.ACLBased())

	d1 := camp.GetDrop("d1")
	require.NotNil(t, d1)
	assert.Equal(t, 120, d1.RequiredMinutes)
	assert.Equal(t, 30, d1.CurrentMinutes())
	assert.Equal(t, model.BenefitItem, d1.Benefits[0].Type)

	d2 := camp.GetDrop("d2")
	require.NotNil(t, d2)
	assert.Equal(t, []string{"d1"}, d2.Preconditions)
	assert.Equal(t, "u#c#d2", d2.ClaimID)
	assert.Equal(t, model.BenefitBadge, d2.Benefits[0].Type)
}

func TestParseCampaign_ClaimInferenceFromAwards(t *testing.T) {
	cj := campaignFixture(t)

	// every benefit of d1 was already granted; the drop is claimed no matter
	// what the self block says
	camp := cj.toModel(map[string]bool{"b1": true})
	assert.True(t, camp.GetDrop("d1").IsClaimed)
	assert.False(t, camp.GetDrop("d2").IsClaimed)
}

func TestParseCampaign_DisabledACLIgnored(t *testing.T) {
	cj := campaignFixture(t)
	cj.Allow.IsEnabled = false

	camp := cj.toModel(nil)
	assert.Empty(t, camp.AllowList)
	assert.False(t, camp.ACLBased())
}

func TestCampaignJSON_Merge(t *testing.T) {
	dashboard := campaignFixture(t)
	dashboard.Allow.IsEnabled = false
	dashboard.Allow.Channels = nil
	dashboard.TimeBasedDrops = nil
	dashboard.Self.IsAccountConnected = false

	details := campaignFixture(t)
	dashboard.merge(details)

	assert.True(t, dashboard.Allow.IsEnabled)
	assert.Len(t, dashboard.TimeBasedDrops, 2)
	assert.True(t, dashboard.Self.IsAccountConnected)

	// a nil details payload leaves the dashboard entry untouched
	before := *dashboard
	dashboard.merge(nil)
	assert.Equal(t, before.ID, dashboard.ID)
}

func TestOverlayProgress(t *testing.T) {
	dashboard := campaignFixture(t)
	for i := range dashboard.TimeBasedDrops {
		dashboard.TimeBasedDrops[i].Self.CurrentMinutesWatched = 0
	}

	progress := campaignFixture(t)
	progress.TimeBasedDrops[0].Self.CurrentMinutesWatched = 90
	progress.TimeBasedDrops[1].Self.IsClaimed = true

	overlayProgress(dashboard, progress)

	assert.Equal(t, 90, dashboard.TimeBasedDrops[0].Self.CurrentMinutesWatched)
	assert.True(t, dashboard.TimeBasedDrops[1].Self.IsClaimed)
}

func TestParseInventory(t *testing.T) {
	raw := json.RawMessage(`{
		"dropCampaignsInProgress": [{"id": "camp-1", "status": "ACTIVE"}],
		"gameEventDrops": [{"id": "b9", "lastAwardedAt": "2026-08-01T00:00:00Z"}]
	}`)

	var inv inventoryJSON
	require.NoError(t, parseInto(raw, &inv))
	require.Len(t, inv.DropCampaignsInProgress, 1)
	assert.Equal(t, "camp-1", inv.DropCampaignsInProgress[0].ID)
	require.Len(t, inv.GameEventDrops, 1)
	assert.Equal(t, "b9", inv.GameEventDrops[0].ID)
}
