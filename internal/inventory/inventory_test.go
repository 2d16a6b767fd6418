package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

type stubAuth struct {
	auth.Provider
}

func (stubAuth) UserID() string   { return "user-1" }
func (stubAuth) Username() string { return "tester" }

type stubGQL struct {
	gql.Operations

	claimCalls atomic.Int32
	claimErr   error

	campaignsRaw []json.RawMessage
}

func (s *stubGQL) ClaimDrop(_ context.Context, _ string) (bool, error) {
	s.claimCalls.Add(1)
	if s.claimErr != nil {
		return false, s.claimErr
	}
	return true, nil
}

func (s *stubGQL) GetCampaigns(_ context.Context) ([]json.RawMessage, error) {
	return s.campaignsRaw, nil
}

func (s *stubGQL) GetInventory(_ context.Context) (json.RawMessage, error) {
	return nil, nil
}

func (s *stubGQL) GetCampaignDetails(_ context.Context, _ []string, _ string) ([]json.RawMessage, error) {
	return nil, nil
}

func newTestInventory(t *testing.T, gq gql.Operations) *Service {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)
	settings := func() model.Settings { return *model.DefaultSettings() }
	return NewService(gq, stubAuth{}, log, events.NewBus(), nil, settings)
}

func seedCampaign(s *Service, camp *model.Campaign) {
	s.mu.Lock()
	s.campaigns = append(s.campaigns, camp)
	s.campaignByID[camp.ID] = camp
	for _, d := range camp.Drops {
		s.dropOwner[d.ID] = camp
	}
	s.mu.Unlock()
}

func claimableCampaign() (*model.Campaign, *model.Drop) {
	now := time.Now()
	camp := model.NewCampaign("camp-1", "Campaign", &model.Game{ID: "g1"},
		now.Add(-time.Hour), now.Add(time.Hour), false)
	camp.Linked = true
	d := model.NewDrop("drop-1", camp.ID, "Drop", 60, now.Add(-time.Hour), now.Add(time.Hour))
	d.Benefits = []model.Benefit{{ID: "b1", Type: model.BenefitItem}}
	d.ClaimID = "instance-1"
	camp.AddDrop(d)
	return camp, d
}

func TestTryClaim_AtMostOnce(t *testing.T) {
	gq := &stubGQL{}
	s := newTestInventory(t, gq)
	camp, d := claimableCampaign()
	seedCampaign(s, camp)

	claimed, err := s.TryClaim(context.Background(), camp, d)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.True(t, d.IsClaimed)

	claimed, err = s.TryClaim(context.Background(), camp, d)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, int32(1), gq.claimCalls.Load())
}

func TestTryClaim_TransportErrorReleasesGuard(t *testing.T) {
	gq := &stubGQL{claimErr: errors.New("connection reset")}
	s := newTestInventory(t, gq)
	camp, d := claimableCampaign()
	seedCampaign(s, camp)

	_, err := s.TryClaim(context.Background(), camp, d)
	require.Error(t, err)
	assert.False(t, d.IsClaimed)

	gq.claimErr = nil
	claimed, err := s.TryClaim(context.Background(), camp, d)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, int32(2), gq.claimCalls.Load())
}

func TestApplyProgress(t *testing.T) {
	s := newTestInventory(t, &stubGQL{})
	camp, d := claimableCampaign()
	seedCampaign(s, camp)

	got := s.ApplyProgress(model.DropProgressReport{
		DropID:         "drop-1",
		CurrentMinutes: 25,
		At:             time.Now(),
	})
	require.NotNil(t, got)
	assert.Equal(t, 25, d.CurrentMinutes())

	// stale report is dropped
	got = s.ApplyProgress(model.DropProgressReport{
		DropID:         "drop-1",
		CurrentMinutes: 40,
		At:             time.Now().Add(-time.Minute),
	})
	assert.Nil(t, got)
	assert.Equal(t, 25, d.CurrentMinutes())

	// unknown drop is reported as nil so the caller can refetch
	got = s.ApplyProgress(model.DropProgressReport{DropID: "ghost", At: time.Now()})
	assert.Nil(t, got)
}

func TestMarkClaimedByInstance(t *testing.T) {
	s := newTestInventory(t, &stubGQL{})
	camp, d := claimableCampaign()
	seedCampaign(s, camp)

	got := s.MarkClaimedByInstance("instance-1")
	require.NotNil(t, got)
	assert.True(t, d.IsClaimed)

	// the pushed claim also arms the at-most-once guard
	claimed, err := s.TryClaim(context.Background(), camp, d)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestCanEarn_RespectsWantedGames(t *testing.T) {
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)

	cfg := model.DefaultSettings()
	cfg.GamesToWatch = []string{"Other Game"}
	s := NewService(&stubGQL{}, stubAuth{}, log, events.NewBus(), nil,
		func() model.Settings { return *cfg })

	camp, _ := claimableCampaign()
	camp.Game = &model.Game{ID: "g1", Name: "Rust", DisplayName: "Rust"}
	seedCampaign(s, camp)

	ch := model.NewChannel("ch1", "streamer", "", false)
	ch.SetStream(&model.Stream{Game: camp.Game, DropsEnabled: true})

	assert.False(t, s.CanEarn(ch))

	cfg.GamesToWatch = []string{"Rust"}
	assert.True(t, s.CanEarn(ch))
}

func TestReconcile_KeepsDroppedCampaigns(t *testing.T) {
	s := newTestInventory(t, &stubGQL{})
	camp, d := claimableCampaign()
	d.MarkClaimed()
	seedCampaign(s, camp)

	// the fetch no longer returns the campaign; it stays as history
	require.NoError(t, s.Reconcile(context.Background()))
	kept := s.Campaign("camp-1")
	require.NotNil(t, kept)
	assert.True(t, kept.GetDrop("drop-1").IsClaimed)

	// a second refresh does not duplicate it
	require.NoError(t, s.Reconcile(context.Background()))
	assert.Len(t, s.Campaigns(), 1)
}

func TestBumpMinutes_EmitsProgressTick(t *testing.T) {
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)

	bus := events.NewBus()
	sub, cancel := bus.Subscribe(8)
	defer cancel()

	s := NewService(&stubGQL{}, stubAuth{}, log, bus, nil,
		func() model.Settings { return *model.DefaultSettings() })
	camp, d := claimableCampaign()
	seedCampaign(s, camp)

	ch := model.NewChannel("ch1", "streamer", "", false)
	ch.SetStream(&model.Stream{Game: camp.Game, DropsEnabled: true})

	before := d.CurrentMinutes()
	s.BumpMinutes(ch)
	assert.Equal(t, before+1, d.CurrentMinutes())

	ev := <-sub
	require.Equal(t, events.DropProgress, ev.Name)
	payload, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "drop-1", payload["drop_id"])
	assert.Equal(t, before+1, payload["current_minutes"])
}

func TestProgressPayload_Fields(t *testing.T) {
	camp, d := claimableCampaign()
	camp.Game = &model.Game{ID: "g1", Name: "Rust", DisplayName: "Rust"}
	d.ReportMinutes(30, time.Now())

	payload := progressPayload(camp, d)
	assert.Equal(t, "drop-1", payload["drop_id"])
	assert.Equal(t, "camp-1", payload["campaign_id"])
	assert.Equal(t, "Campaign", payload["campaign_name"])
	assert.Equal(t, "Rust", payload["game_name"])
	assert.Equal(t, "Drop", payload["drop_name"])
	assert.Equal(t, 30, payload["current_minutes"])
	assert.Equal(t, 60, payload["required_minutes"])
	assert.Equal(t, 50, payload["progress"])
	assert.Equal(t, 30*60, payload["remaining_seconds"])
}

func TestNextTrigger(t *testing.T) {
	s := newTestInventory(t, &stubGQL{})
	now := time.Now()

	s.mu.Lock()
	s.triggers = []time.Time{now.Add(-time.Minute), now.Add(30 * time.Minute), now.Add(10 * time.Minute)}
	s.mu.Unlock()

	next, ok := s.NextTrigger(now)
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(10*time.Minute), next, time.Second)

	s.mu.Lock()
	s.triggers = nil
	s.mu.Unlock()
	_, ok = s.NextTrigger(now)
	assert.False(t, ok)
}
