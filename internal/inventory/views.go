package inventory

import (
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/model"
	"github.com/Guliveer/twitch-drops-go/internal/utils"
)

// CampaignSnapshot is the serializable campaign state pushed to the control
// surface.
type CampaignSnapshot struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Game     string               `json:"game,omitempty"`
	GameID   string               `json:"game_id,omitempty"`
	BoxArt   string               `json:"box_art,omitempty"`
	LinkURL  string               `json:"link_url"`
	Status   model.CampaignStatus `json:"status"`
	Linked   bool                 `json:"linked"`
	Eligible bool                 `json:"eligible"`
	ACLBased bool                 `json:"acl_based"`
	StartAt  time.Time            `json:"start_at"`
	EndAt    time.Time            `json:"end_at"`
	Claimed  int                  `json:"claimed_drops"`
	Total    int                  `json:"total_drops"`
	Drops    []DropView           `json:"drops"`
}

// DropView is the serializable drop state.
type DropView struct {
	ID              string        `json:"id"`
	CampaignID      string        `json:"campaign_id"`
	Name            string        `json:"name"`
	CurrentMinutes  int           `json:"current_minutes"`
	RequiredMinutes int           `json:"required_minutes"`
	Progress        int           `json:"progress"`
	Claimed         bool          `json:"claimed"`
	StartAt         time.Time     `json:"start_at"`
	EndAt           time.Time     `json:"end_at"`
	Benefits        []BenefitView `json:"benefits,omitempty"`
}

// BenefitView is the serializable reward state.
type BenefitView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Image string `json:"image,omitempty"`
}

// WantedGame is a node of the wanted-items tree: the campaigns, drops, and
// benefits still worth mining for one game.
type WantedGame struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	BoxArt    string             `json:"box_art,omitempty"`
	Campaigns []CampaignSnapshot `json:"campaigns"`
}

func benefitViews(d *model.Drop) []BenefitView {
	out := make([]BenefitView, 0, len(d.Benefits))
	for i := range d.Benefits {
		b := &d.Benefits[i]
		out = append(out, BenefitView{
			ID:    b.ID,
			Name:  b.Name,
			Type:  string(b.Type),
			Image: b.ImageURL,
		})
	}
	return out
}

func dropView(d *model.Drop) DropView {
	return DropView{
		ID:              d.ID,
		CampaignID:      d.CampaignID,
		Name:            d.Name,
		CurrentMinutes:  d.CurrentMinutes(),
		RequiredMinutes: d.RequiredMinutes,
		Progress:        utils.Percentage(d.CurrentMinutes(), d.RequiredMinutes),
		Claimed:         d.IsClaimed,
		StartAt:         d.StartAt,
		EndAt:           d.EndAt,
		Benefits:        benefitViews(d),
	}
}

func campaignSnapshot(camp *model.Campaign, now time.Time) CampaignSnapshot {
	snap := CampaignSnapshot{
		ID:       camp.ID,
		Name:     camp.Name,
		LinkURL:  camp.LinkURL,
		Status:   camp.Status(now),
		Linked:   camp.Linked,
		Eligible: camp.Eligible(),
		ACLBased: camp.ACLBased(),
		StartAt:  camp.StartAt,
		EndAt:    camp.EndAt,
		Claimed:  camp.ClaimedDrops(),
		Total:    camp.TotalDrops(),
	}
	if camp.Game != nil {
		snap.Game = camp.Game.DisplayName
		snap.GameID = camp.Game.ID
		snap.BoxArt = camp.Game.BoxArtURL
	}
	for _, d := range camp.Drops {
		snap.Drops = append(snap.Drops, dropView(d))
	}
	return snap
}

// DropSnapshot pairs a drop view with its campaign context for drop_update
// payloads.
func DropSnapshot(camp *model.Campaign, d *model.Drop) map[string]any {
	return map[string]any{
		"campaign_id":   camp.ID,
		"campaign_name": camp.Name,
		"drop":          dropView(d),
	}
}

func progressPayload(camp *model.Campaign, d *model.Drop) map[string]any {
	gameName := ""
	if camp.Game != nil {
		gameName = camp.Game.DisplayName
	}
	return map[string]any{
		"drop_id":           d.ID,
		"campaign_id":       camp.ID,
		"campaign_name":     camp.Name,
		"game_name":         gameName,
		"drop_name":         d.Name,
		"current_minutes":   d.CurrentMinutes(),
		"required_minutes":  d.RequiredMinutes,
		"progress":          utils.Percentage(d.CurrentMinutes(), d.RequiredMinutes),
		"remaining_seconds": d.RemainingMinutes() * 60,
	}
}

// CampaignSnapshots returns every campaign as a serializable snapshot.
func (s *Service) CampaignSnapshots() []CampaignSnapshot {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CampaignSnapshot, 0, len(s.campaigns))
	for _, camp := range s.campaigns {
		out = append(out, campaignSnapshot(camp, now))
	}
	return out
}

// availableGames lists every distinct campaign game for the settings UI.
func (s *Service) availableGames() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []map[string]any
	for _, camp := range s.campaigns {
		if camp.Game == nil || seen[camp.Game.ID] {
			continue
		}
		seen[camp.Game.ID] = true
		out = append(out, map[string]any{
			"id":      camp.Game.ID,
			"name":    camp.Game.DisplayName,
			"box_art": camp.Game.BoxArtURL,
		})
	}
	return out
}

// WantedItems builds the games → campaigns → drops → benefits tree filtered
// by the benefit gates and claim state.
func (s *Service) WantedItems() []WantedGame {
	now := time.Now()
	cfg := s.settings()

	s.mu.RLock()
	defer s.mu.RUnlock()

	byGame := make(map[string]*WantedGame)
	var order []string
	for _, camp := range s.campaigns {
		if camp.Game == nil || !s.campaignWanted(camp, cfg, now) {
			continue
		}

		snap := CampaignSnapshot{
			ID:      camp.ID,
			Name:    camp.Name,
			LinkURL: camp.LinkURL,
			Status:  camp.Status(now),
			Linked:  camp.Linked,
			EndAt:   camp.EndAt,
			StartAt: camp.StartAt,
		}
		for _, d := range camp.Drops {
			if d.IsClaimed || d.ChainBroken() {
				continue
			}
			if len(d.Benefits) > 0 && !d.HasWantedBenefit(cfg.MiningBenefits) {
				continue
			}
			snap.Drops = append(snap.Drops, dropView(d))
		}
		if len(snap.Drops) == 0 {
			continue
		}

		node, ok := byGame[camp.Game.ID]
		if !ok {
			node = &WantedGame{
				ID:     camp.Game.ID,
				Name:   camp.Game.DisplayName,
				BoxArt: camp.Game.BoxArtURL,
			}
			byGame[camp.Game.ID] = node
			order = append(order, camp.Game.ID)
		}
		node.Campaigns = append(node.Campaigns, snap)
	}

	out := make([]WantedGame, 0, len(order))
	for _, id := range order {
		out = append(out, *byGame[id])
	}
	return out
}
