// Package inventory reconciles the drops inventory: campaign and drop state,
// progress reports, claims, and the wanted-games ordering that drives channel
// discovery.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/cache"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// triggerHorizon bounds how far ahead campaign boundary triggers are tracked.
const triggerHorizon = time.Hour

// SettingsFunc returns the current user settings snapshot.
type SettingsFunc func() model.Settings

// Service owns the campaign inventory. All campaign and drop mutation happens
// under its lock; callers get snapshots or act through service methods.
type Service struct {
	mu sync.RWMutex

	campaigns    []*model.Campaign
	campaignByID map[string]*model.Campaign
	dropOwner    map[string]*model.Campaign

	// claims records at-most-once claim keys (user#campaign#drop).
	claims map[string]bool

	triggers []time.Time

	gq       gql.Operations
	auth     auth.Provider
	log      *logger.Logger
	bus      events.Emitter
	art      *cache.Store
	settings SettingsFunc
}

// NewService creates an empty inventory service.
func NewService(gq gql.Operations, a auth.Provider, log *logger.Logger,
	bus events.Emitter, art *cache.Store, settings SettingsFunc) *Service {
	return &Service{
		campaignByID: make(map[string]*model.Campaign),
		dropOwner:    make(map[string]*model.Campaign),
		claims:       make(map[string]bool),
		gq:           gq,
		auth:         a,
		log:          log,
		bus:          bus,
		art:          art,
		settings:     settings,
	}
}

// Reconcile performs a full inventory fetch and rebuilds campaign state.
// Progress already confirmed locally is never regressed by stale API data,
// so running it twice back to back is a no-op.
func (s *Service) Reconcile(ctx context.Context) error {
	now := time.Now()

	campRaws, err := s.gq.GetCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("fetching campaigns: %w", err)
	}

	invRaw, err := s.gq.GetInventory(ctx)
	if err != nil {
		return fmt.Errorf("fetching inventory: %w", err)
	}
	var inv inventoryJSON
	if len(invRaw) > 0 {
		if err := parseInto(invRaw, &inv); err != nil {
			return fmt.Errorf("parsing inventory: %w", err)
		}
	}

	awarded := make(map[string]bool, len(inv.GameEventDrops))
	for _, ge := range inv.GameEventDrops {
		awarded[ge.ID] = true
	}
	progress := make(map[string]*campaignJSON, len(inv.DropCampaignsInProgress))
	for i := range inv.DropCampaignsInProgress {
		cj := &inv.DropCampaignsInProgress[i]
		progress[cj.ID] = cj
	}

	dashboard := make([]*campaignJSON, 0, len(campRaws))
	var detailIDs []string
	for _, raw := range campRaws {
		cj, err := parseCampaign(raw)
		if err != nil {
			s.log.Debug("Skipping unparseable campaign", "error", err)
			continue
		}
		if cj.Status != "ACTIVE" && cj.Status != "UPCOMING" {
			continue
		}
		dashboard = append(dashboard, cj)
		detailIDs = append(detailIDs, cj.ID)
	}

	details := make(map[string]*campaignJSON, len(detailIDs))
	detailRaws, err := s.gq.GetCampaignDetails(ctx, detailIDs, s.auth.Username())
	if err != nil {
		s.log.Warn("Campaign details fetch failed, using dashboard data", "error", err)
	} else {
		for _, raw := range detailRaws {
			cj, err := parseCampaign(raw)
			if err != nil {
				continue
			}
			details[cj.ID] = cj
		}
	}

	built := make([]*model.Campaign, 0, len(dashboard))
	for _, cj := range dashboard {
		cj.merge(details[cj.ID])
		// inventory in-progress entries carry the per-drop self block
		if pj, ok := progress[cj.ID]; ok {
			overlayProgress(cj, pj)
		}
		built = append(built, cj.toModel(awarded))
	}

	s.mu.Lock()
	for _, camp := range built {
		s.carryOverLocked(camp)
	}
	// campaigns the fetch no longer returns stay in the store; expired
	// campaigns remain visible as history for the rest of the process
	fresh := make(map[string]bool, len(built))
	for _, camp := range built {
		fresh[camp.ID] = true
	}
	for _, old := range s.campaigns {
		if !fresh[old.ID] {
			built = append(built, old)
		}
	}
	s.campaigns = built
	s.campaignByID = make(map[string]*model.Campaign, len(built))
	s.dropOwner = make(map[string]*model.Campaign)
	for _, camp := range built {
		s.campaignByID[camp.ID] = camp
		for _, d := range camp.Drops {
			s.dropOwner[d.ID] = camp
		}
	}
	s.sortLocked(now)
	s.collectTriggersLocked(now)
	s.mu.Unlock()

	s.log.Info("Inventory reconciled",
		"campaigns", len(built), "awarded_benefits", len(awarded))

	s.emitInventory()
	s.prefetchArtwork(ctx)
	return nil
}

// carryOverLocked preserves locally confirmed state across a rebuild: claims
// are monotonic and a newer authoritative report beats stale API data.
func (s *Service) carryOverLocked(fresh *model.Campaign) {
	for _, d := range fresh.Drops {
		oldCamp := s.dropOwner[d.ID]
		if oldCamp == nil {
			continue
		}
		old := oldCamp.GetDrop(d.ID)
		if old == nil {
			continue
		}
		if old.IsClaimed {
			d.MarkClaimed()
		}
		if !old.LastReportAt().IsZero() {
			confirmed := old.CurrentMinutes() - old.ExtrapolatedMinutes()
			if confirmed > d.CurrentMinutes() {
				d.ReportMinutes(confirmed, old.LastReportAt())
			}
		}
		if old.ClaimID != "" && d.ClaimID == "" {
			d.ClaimID = old.ClaimID
		}
	}
}

// overlayProgress copies per-drop self blocks from the inventory in-progress
// entry onto the dashboard entry.
func overlayProgress(dst, src *campaignJSON) {
	byID := make(map[string]*dropJSON, len(src.TimeBasedDrops))
	for i := range src.TimeBasedDrops {
		byID[src.TimeBasedDrops[i].ID] = &src.TimeBasedDrops[i]
	}
	if dst.Self.IsAccountConnected || src.Self.IsAccountConnected {
		dst.Self.IsAccountConnected = true
	}
	for i := range dst.TimeBasedDrops {
		if sj, ok := byID[dst.TimeBasedDrops[i].ID]; ok {
			dst.TimeBasedDrops[i].Self = sj.Self
		}
	}
}

// Campaigns returns a snapshot of the campaign list in priority order.
func (s *Service) Campaigns() []*model.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Campaign, len(s.campaigns))
	copy(out, s.campaigns)
	return out
}

// Campaign returns a campaign by ID, or nil.
func (s *Service) Campaign(id string) *model.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.campaignByID[id]
}

// Drop resolves a drop ID to its campaign and drop, or nils.
func (s *Service) Drop(dropID string) (*model.Campaign, *model.Drop) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	camp := s.dropOwner[dropID]
	if camp == nil {
		return nil, nil
	}
	return camp, camp.GetDrop(dropID)
}

// DropByClaimID resolves a drop instance ID to its campaign and drop.
func (s *Service) DropByClaimID(claimID string) (*model.Campaign, *model.Drop) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, camp := range s.campaigns {
		for _, d := range camp.Drops {
			if d.ClaimID == claimID && claimID != "" {
				return camp, d
			}
		}
	}
	return nil, nil
}

// campaignWanted applies the user gates: benefit type filters plus the
// games_to_watch restriction when one is configured. ACL campaigns only pass
// when wanted too; the allow list widens discovery, not the want set.
func (s *Service) campaignWanted(camp *model.Campaign, cfg model.Settings, now time.Time) bool {
	if len(cfg.GamesToWatch) > 0 && camp.Game != nil {
		if cfg.GameIndex(camp.Game) < 0 {
			return false
		}
	}
	for _, d := range camp.Drops {
		if d.IsClaimed || d.ChainBroken() {
			continue
		}
		if d.HasWantedBenefit(cfg.MiningBenefits) || len(d.Benefits) == 0 {
			return true
		}
	}
	return false
}

// CanEarn reports whether watching the channel right now would progress any
// wanted campaign. This is the channel selection predicate.
func (s *Service) CanEarn(ch *model.Channel) bool {
	now := time.Now()
	cfg := s.settings()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, camp := range s.campaigns {
		if s.campaignWanted(camp, cfg, now) && camp.CanEarn(ch, now) {
			return true
		}
	}
	return false
}

// ActiveDrop returns the drop expected to progress while watching the
// channel: the first drop of the highest priority earnable campaign.
func (s *Service) ActiveDrop(ch *model.Channel) (*model.Campaign, *model.Drop) {
	now := time.Now()
	cfg := s.settings()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, camp := range s.campaigns {
		if !s.campaignWanted(camp, cfg, now) || !camp.CanEarn(ch, now) {
			continue
		}
		if d := camp.FirstDrop(now); d != nil {
			return camp, d
		}
	}
	return nil, nil
}

// WantedGames returns the games channel discovery should cover, most wanted
// first. A configured games_to_watch list fixes the order; otherwise every
// earnable campaign's game is wanted in campaign priority order.
func (s *Service) WantedGames() []*model.Game {
	now := time.Now()
	horizon := now.Add(triggerHorizon)
	cfg := s.settings()

	s.mu.RLock()
	defer s.mu.RUnlock()

	earnable := make(map[string]*model.Game)
	var order []*model.Game
	for _, camp := range s.campaigns {
		if camp.Game == nil || !s.campaignWanted(camp, cfg, now) {
			continue
		}
		if !camp.CanEarnWithin(now, horizon) {
			continue
		}
		if _, ok := earnable[camp.Game.ID]; !ok {
			earnable[camp.Game.ID] = camp.Game
			order = append(order, camp.Game)
		}
	}

	if len(cfg.GamesToWatch) == 0 {
		return order
	}

	ranked := make([]*model.Game, 0, len(order))
	used := make(map[string]bool)
	for _, want := range cfg.GamesToWatch {
		for _, g := range order {
			if used[g.ID] {
				continue
			}
			if cfg.GameIndex(g) >= 0 && matchesWant(g, want) {
				ranked = append(ranked, g)
				used[g.ID] = true
			}
		}
	}
	return ranked
}

func matchesWant(g *model.Game, want string) bool {
	return g.ID == want || g.Name == want || g.DisplayName == want
}

// ACLCampaigns returns active wanted campaigns that use allow lists.
func (s *Service) ACLCampaigns() []*model.Campaign {
	now := time.Now()
	cfg := s.settings()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Campaign
	for _, camp := range s.campaigns {
		if camp.ACLBased() && camp.Active(now) && s.campaignWanted(camp, cfg, now) {
			out = append(out, camp)
		}
	}
	return out
}

// ApplyProgress applies an authoritative progress report. Returns the updated
// drop, or nil when the report was stale or unknown.
func (s *Service) ApplyProgress(report model.DropProgressReport) *model.Drop {
	s.mu.Lock()
	camp := s.dropOwner[report.DropID]
	if camp == nil {
		s.mu.Unlock()
		return nil
	}
	d := camp.GetDrop(report.DropID)
	applied := d.ReportMinutes(report.CurrentMinutes, report.At)
	s.mu.Unlock()

	if !applied {
		return nil
	}
	s.bus.Emit(events.DropProgress, progressPayload(camp, d))
	s.bus.Emit(events.DropUpdate, DropSnapshot(camp, d))
	return d
}

// BumpMinutes extrapolates one watched minute onto every campaign the channel
// progresses, emitting a drop_progress tick per bumped drop. Returns true
// when any drop hit the extrapolation cap.
func (s *Service) BumpMinutes(ch *model.Channel) bool {
	now := time.Now()
	cfg := s.settings()
	capReached := false

	type tick struct {
		camp *model.Campaign
		d    *model.Drop
	}
	var ticks []tick

	s.mu.Lock()
	for _, camp := range s.campaigns {
		if !s.campaignWanted(camp, cfg, now) || !camp.CanEarn(ch, now) {
			continue
		}
		bumped, hitCap := camp.BumpMinutes(now)
		if hitCap {
			capReached = true
		}
		for _, d := range bumped {
			ticks = append(ticks, tick{camp, d})
		}
	}
	s.mu.Unlock()

	for _, t := range ticks {
		s.bus.Emit(events.DropProgress, progressPayload(t.camp, t.d))
	}
	return capReached
}

// TryClaim claims a drop at most once per (user, campaign, drop). A transport
// failure releases the guard so a later pass can retry; a definitive answer
// keeps it.
func (s *Service) TryClaim(ctx context.Context, camp *model.Campaign, d *model.Drop) (bool, error) {
	key := s.auth.UserID() + "#" + camp.ID + "#" + d.ID

	s.mu.Lock()
	if d.IsClaimed || s.claims[key] {
		s.mu.Unlock()
		return false, nil
	}
	claimID := d.ClaimID
	s.claims[key] = true
	s.mu.Unlock()

	if claimID == "" {
		claimID = s.auth.UserID() + "#" + d.ID
	}

	ok, err := s.gq.ClaimDrop(ctx, claimID)
	if err != nil {
		s.mu.Lock()
		delete(s.claims, key)
		s.mu.Unlock()
		return false, err
	}
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	d.MarkClaimed()
	s.mu.Unlock()

	s.log.Info("Drop claimed", "campaign", camp.Name, "drop", d.Name)
	s.bus.Emit(events.DropUpdate, DropSnapshot(camp, d))
	return true, nil
}

// MarkClaimedByInstance marks the drop matching a claim instance as claimed
// without issuing a request, used when the platform pushed a drop-claim event.
func (s *Service) MarkClaimedByInstance(claimID string) *model.Drop {
	camp, d := s.DropByClaimID(claimID)
	if d == nil {
		return nil
	}
	s.mu.Lock()
	key := s.auth.UserID() + "#" + camp.ID + "#" + d.ID
	s.claims[key] = true
	d.MarkClaimed()
	s.mu.Unlock()

	s.bus.Emit(events.DropUpdate, DropSnapshot(camp, d))
	return d
}

// NextTrigger returns the nearest future campaign or drop boundary, or false
// when none is tracked.
func (s *Service) NextTrigger(now time.Time) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best time.Time
	for _, t := range s.triggers {
		if !t.After(now) {
			continue
		}
		if best.IsZero() || t.Before(best) {
			best = t
		}
	}
	return best, !best.IsZero()
}

// sortLocked orders campaigns: earnable before not, linked before unlinked,
// sooner end first, ID as the final tiebreak.
func (s *Service) sortLocked(now time.Time) {
	sort.SliceStable(s.campaigns, func(i, j int) bool {
		a, b := s.campaigns[i], s.campaigns[j]
		ae, be := a.CanEarn(nil, now), b.CanEarn(nil, now)
		if ae != be {
			return ae
		}
		if a.Linked != b.Linked {
			return a.Linked
		}
		if !a.EndAt.Equal(b.EndAt) {
			return a.EndAt.Before(b.EndAt)
		}
		return a.ID < b.ID
	})
}

// collectTriggersLocked gathers earnability boundary instants within the
// horizon for wanted campaigns.
func (s *Service) collectTriggersLocked(now time.Time) {
	cfg := s.settings()
	horizon := now.Add(triggerHorizon)
	s.triggers = s.triggers[:0]
	for _, camp := range s.campaigns {
		if !s.campaignWanted(camp, cfg, now) {
			continue
		}
		for _, t := range camp.TimeTriggers() {
			if t.After(now) && !t.After(horizon) {
				s.triggers = append(s.triggers, t)
			}
		}
	}
}

func (s *Service) prefetchArtwork(ctx context.Context) {
	if s.art == nil {
		return
	}
	var urls []string
	s.mu.RLock()
	for _, camp := range s.campaigns {
		if camp.Game != nil && camp.Game.BoxArtURL != "" {
			urls = append(urls, camp.Game.BoxArtURL)
		}
		for _, d := range camp.Drops {
			for i := range d.Benefits {
				if d.Benefits[i].ImageURL != "" {
					urls = append(urls, d.Benefits[i].ImageURL)
				}
			}
		}
	}
	s.mu.RUnlock()
	s.art.Prefetch(ctx, urls)
}

// emitInventory publishes the full campaign set and derived views.
func (s *Service) emitInventory() {
	snaps := s.CampaignSnapshots()
	s.bus.Emit(events.InventoryBatchUpdate, snaps)
	for _, snap := range snaps {
		s.bus.Emit(events.CampaignAdd, snap)
	}
	s.bus.Emit(events.GamesAvailable, s.availableGames())
	s.bus.Emit(events.WantedItemsUpdate, s.WantedItems())
}
