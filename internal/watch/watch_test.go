package watch

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/inventory"
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
}

func (stubGQL) ClaimDrop(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (stubGQL) GetCurrentDrop(_ context.Context, _ string) (*gql.CurrentDropResponse, error) {
	return nil, nil
}

func testLoop(t *testing.T, bus *events.Bus, hooks Hooks) *Loop {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)
	settings := func() model.Settings { return *model.DefaultSettings() }
	inv := inventory.NewService(stubGQL{}, stubAuth{}, log, bus, nil, settings)
	return NewLoop(nil, stubGQL{}, inv, log, bus, settings, hooks)
}

func completedDrop() (*model.Campaign, *model.Drop) {
	now := time.Now()
	camp := model.NewCampaign("camp-1", "Campaign", &model.Game{ID: "g1"},
		now.Add(-time.Hour), now.Add(time.Hour), false)
	camp.Linked = true
	d := model.NewDrop("drop-1", camp.ID, "Drop", 60, now.Add(-time.Hour), now.Add(time.Hour))
	d.Benefits = []model.Benefit{{ID: "b1", Type: model.BenefitItem}}
	d.ClaimID = "instance-1"
	d.ReportMinutes(60, now)
	camp.AddDrop(d)
	return camp, d
}

func TestClaim_StopsProgressStream(t *testing.T) {
	bus := events.NewBus()
	sub, cancel := bus.Subscribe(8)
	defer cancel()

	claims := 0
	l := testLoop(t, bus, Hooks{OnClaim: func(*model.Campaign, *model.Drop) { claims++ }})

	// a cancelled context makes the post-claim follow-up return right away
	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()

	camp, d := completedDrop()
	ch := model.NewChannel("ch1", "streamer", "", false)
	l.claim(ctx, ch, camp, d)

	assert.True(t, d.IsClaimed)
	assert.Equal(t, 1, claims)

	names := drainEventNames(sub)
	require.Contains(t, names, events.DropUpdate)
	require.Contains(t, names, events.DropProgressStop)
	// clients see the claim before the progress stream ends
	assert.Greater(t, indexOf(names, events.DropProgressStop), indexOf(names, events.DropUpdate))
}

func TestClaim_NotClaimedEmitsNothing(t *testing.T) {
	bus := events.NewBus()
	sub, cancel := bus.Subscribe(8)
	defer cancel()

	l := testLoop(t, bus, Hooks{})
	camp, d := completedDrop()
	d.MarkClaimed()

	l.claim(context.Background(), model.NewChannel("ch1", "streamer", "", false), camp, d)
	assert.Empty(t, drainEventNames(sub))
}

func TestSetChannel_NilStopsProgress(t *testing.T) {
	bus := events.NewBus()
	sub, cancel := bus.Subscribe(8)
	defer cancel()

	l := testLoop(t, bus, Hooks{})
	l.SetChannel(model.NewChannel("ch1", "streamer", "", false))
	drainEventNames(sub)

	l.SetChannel(nil)
	names := drainEventNames(sub)
	assert.Contains(t, names, events.ChannelWatchingClear)
	assert.Contains(t, names, events.DropProgressStop)
}

func drainEventNames(sub <-chan events.Event) []events.Name {
	var names []events.Name
	for {
		select {
		case ev := <-sub:
			names = append(names, ev.Name)
		default:
			return names
		}
	}
}

func indexOf(names []events.Name, want events.Name) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}
