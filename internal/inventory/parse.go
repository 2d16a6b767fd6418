package inventory

import (
	"encoding/json"
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// Wire shapes of the drops dashboard, campaign details, and inventory
// payloads. Only the fields the miner consumes are declared.

type campaignJSON struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`

	Game struct {
		ID          string `json:"id"`
		Slug        string `json:"slug"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		BoxArtURL   string `json:"boxArtURL"`
	} `json:"game"`

	Self struct {
		IsAccountConnected bool `json:"isAccountConnected"`
	} `json:"self"`

	Allow struct {
		IsEnabled bool `json:"isEnabled"`
		Channels  []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"channels"`
	} `json:"allow"`

	TimeBasedDrops []dropJSON `json:"timeBasedDrops"`
}

type dropJSON struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	StartAt                time.Time `json:"startAt"`
	EndAt                  time.Time `json:"endAt"`
	RequiredMinutesWatched int       `json:"requiredMinutesWatched"`

	PreconditionDrops []struct {
		ID string `json:"id"`
	} `json:"preconditionDrops"`

	BenefitEdges []struct {
		Benefit struct {
			ID               string `json:"id"`
			Name             string `json:"name"`
			ImageAssetURL    string `json:"imageAssetURL"`
			DistributionType string `json:"distributionType"`
		} `json:"benefit"`
	} `json:"benefitEdges"`

	Self struct {
		CurrentMinutesWatched int    `json:"currentMinutesWatched"`
		IsClaimed             bool   `json:"isClaimed"`
		DropInstanceID        string `json:"dropInstanceID"`
	} `json:"self"`
}

type inventoryJSON struct {
	DropCampaignsInProgress []campaignJSON `json:"dropCampaignsInProgress"`
	GameEventDrops          []struct {
		ID            string    `json:"id"`
		LastAwardedAt time.Time `json:"lastAwardedAt"`
	} `json:"gameEventDrops"`
}

func parseInto(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

func parseCampaign(raw json.RawMessage) (*campaignJSON, error) {
	var cj campaignJSON
	if err := json.Unmarshal(raw, &cj); err != nil {
		return nil, err
	}
	return &cj, nil
}

// merge overlays campaign details onto a dashboard entry. Details carry the
// allow list and benefit edges the dashboard omits.
func (cj *campaignJSON) merge(details *campaignJSON) {
	if details == nil {
		return
	}
	if len(details.Allow.Channels) > 0 || details.Allow.IsEnabled {
		cj.Allow = details.Allow
	}
	if len(details.TimeBasedDrops) > 0 {
		cj.TimeBasedDrops = details.TimeBasedDrops
	}
	if details.Self.IsAccountConnected {
		cj.Self.IsAccountConnected = true
	}
}

// toModel converts a wire campaign into the domain model. awardedBenefits
// feeds claim inference for drops the inventory no longer lists.
func (cj *campaignJSON) toModel(awardedBenefits map[string]bool) *model.Campaign {
	game := &model.Game{
		ID:          cj.Game.ID,
		Name:        cj.Game.Name,
		DisplayName: cj.Game.DisplayName,
		Slug:        cj.Game.Slug,
		BoxArtURL:   cj.Game.BoxArtURL,
	}
	if game.Name == "" {
		game.Name = game.DisplayName
	}
	if game.DisplayName == "" {
		game.DisplayName = game.Name
	}

	camp := model.NewCampaign(cj.ID, cj.Name, game, cj.StartAt, cj.EndAt,
		cj.Status == "EXPIRED")
	camp.Linked = cj.Self.IsAccountConnected

	if cj.Allow.IsEnabled {
		for _, ch := range cj.Allow.Channels {
			camp.AllowList = append(camp.AllowList, model.ACLEntry{
				ID:    ch.ID,
				Login: ch.Name,
			})
		}
	}

	for i := range cj.TimeBasedDrops {
		camp.AddDrop(cj.TimeBasedDrops[i].toModel(cj.ID, awardedBenefits))
	}
	camp.ValidateChains()
	return camp
}

func (dj *dropJSON) toModel(campaignID string, awardedBenefits map[string]bool) *model.Drop {
	d := model.NewDrop(dj.ID, campaignID, dj.Name,
		dj.RequiredMinutesWatched, dj.StartAt, dj.EndAt)

	for _, pre := range dj.PreconditionDrops {
		d.Preconditions = append(d.Preconditions, pre.ID)
	}

	allAwarded := len(dj.BenefitEdges) > 0
	for _, edge := range dj.BenefitEdges {
		b := edge.Benefit
		d.Benefits = append(d.Benefits, model.Benefit{
			ID:       b.ID,
			Name:     b.Name,
			Type:     model.ParseBenefitType(b.DistributionType),
			ImageURL: b.ImageAssetURL,
		})
		if !awardedBenefits[b.ID] {
			allAwarded = false
		}
	}

	d.ClaimID = dj.Self.DropInstanceID
	d.SeedMinutes(dj.Self.CurrentMinutesWatched)
	// every benefit already granted means the drop was claimed even when the
	// inventory self block says otherwise
	if dj.Self.IsClaimed || allAwarded {
		d.MarkClaimed()
	}
	return d
}
