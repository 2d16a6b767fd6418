package channels

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)
	return NewService(nil, nil, log, events.NewBus())
}

func liveChannel(id, login string, game *model.Game, viewers int, acl bool) *model.Channel {
	ch := model.NewChannel(id, login, "", acl)
	ch.SetStream(&model.Stream{Game: game, ViewerCount: viewers, DropsEnabled: true})
	return ch
}

func TestService_Add_DedupeAndCap(t *testing.T) {
	s := newTestService(t)

	ch := model.NewChannel("1", "one", "", false)
	assert.True(t, s.Add(ch))
	assert.False(t, s.Add(model.NewChannel("1", "one", "", false)))
	assert.Equal(t, 1, s.Count())

	for i := 2; i <= constants.MaxChannels; i++ {
		require.True(t, s.Add(model.NewChannel(fmt.Sprintf("%d", i), "x", "", false)))
	}
	assert.Equal(t, constants.MaxChannels, s.Count())
	assert.False(t, s.Add(model.NewChannel("overflow", "x", "", false)))
}

func TestService_Add_RediscoveryKeepsACLFlag(t *testing.T) {
	s := newTestService(t)
	s.Add(model.NewChannel("1", "one", "", false))

	s.Add(model.NewChannel("1", "one", "", true))
	assert.True(t, s.Get("1").ACLBased)
}

func TestService_Ordering(t *testing.T) {
	s := newTestService(t)
	rust := &model.Game{ID: "g1", Name: "Rust"}
	other := &model.Game{ID: "g2", Name: "Other"}
	s.SetGamePriority([]*model.Game{rust, other})

	s.Add(liveChannel("a", "small-rust", rust, 100, false))
	s.Add(liveChannel("b", "big-other", other, 9000, false))
	s.Add(liveChannel("c", "big-rust", rust, 5000, false))
	s.Add(liveChannel("d", "acl-rust", rust, 10, true))

	got := s.List()
	ids := make([]string, len(got))
	for i, ch := range got {
		ids[i] = ch.ID
	}
	// wanted game rank first, ACL membership next, then viewers
	assert.Equal(t, []string{"d", "c", "a", "b"}, ids)
}

func TestService_Ordering_IDTiebreak(t *testing.T) {
	s := newTestService(t)
	game := &model.Game{ID: "g1"}
	s.SetGamePriority([]*model.Game{game})

	s.Add(liveChannel("z", "one", game, 50, false))
	s.Add(liveChannel("a", "two", game, 50, false))

	got := s.List()
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "z", got[1].ID)
}

func TestService_Select_Automatic(t *testing.T) {
	s := newTestService(t)
	game := &model.Game{ID: "g1"}
	s.SetGamePriority([]*model.Game{game})

	offline := model.NewChannel("off", "offline", "", false)
	s.Add(offline)
	s.Add(liveChannel("live", "live", game, 10, false))
	s.Add(liveChannel("barred", "barred", game, 999, false))

	ch, ok := s.Select("", func(c *model.Channel) bool { return c.ID != "barred" })
	require.True(t, ok)
	require.NotNil(t, ch)
	assert.Equal(t, "live", ch.ID)
}

func TestService_Select_NothingWatchable(t *testing.T) {
	s := newTestService(t)
	s.Add(model.NewChannel("off", "offline", "", false))

	ch, ok := s.Select("", func(*model.Channel) bool { return true })
	assert.Nil(t, ch)
	assert.True(t, ok)
}

func TestService_Select_ManualTarget(t *testing.T) {
	s := newTestService(t)
	game := &model.Game{ID: "g1"}
	s.Add(liveChannel("a", "first", game, 100, false))
	s.Add(liveChannel("b", "second", game, 10, false))

	ch, ok := s.Select("b", func(*model.Channel) bool { return true })
	require.True(t, ok)
	assert.Equal(t, "b", ch.ID)
}

func TestService_Select_ManualUnwatchable(t *testing.T) {
	s := newTestService(t)
	s.Add(model.NewChannel("off", "offline", "", false))

	// offline manual target fails rather than falling back silently
	ch, ok := s.Select("off", func(*model.Channel) bool { return true })
	assert.Nil(t, ch)
	assert.False(t, ok)

	ch, ok = s.Select("ghost", func(*model.Channel) bool { return true })
	assert.Nil(t, ch)
	assert.False(t, ok)
}

func TestService_Cleanup(t *testing.T) {
	s := newTestService(t)
	game := &model.Game{ID: "g1"}
	s.Add(liveChannel("keep", "keep", game, 10, false))
	s.Add(model.NewChannel("drop", "drop", "", false))

	removed := s.Cleanup(func(ch *model.Channel) bool { return ch.Online() })
	require.Len(t, removed, 1)
	assert.Equal(t, "drop", removed[0].ID)
	assert.Equal(t, 1, s.Count())
	assert.Nil(t, s.Get("drop"))
}

func TestService_ExpirePending(t *testing.T) {
	s := newTestService(t)
	ch := model.NewChannel("p", "pending", "", false)
	s.Add(ch)

	now := time.Now()
	ch.MarkPendingOnline(now.Add(-constants.OnlineDelay - time.Second))

	due := s.ExpirePending(now)
	require.Len(t, due, 1)
	assert.Equal(t, "p", due[0].ID)

	fresh := model.NewChannel("f", "fresh", "", false)
	s.Add(fresh)
	fresh.MarkPendingOnline(now)
	assert.Len(t, s.ExpirePending(now), 1)
}

func TestService_Topics(t *testing.T) {
	s := newTestService(t)
	ch := model.NewChannel("42", "x", "", false)

	topics := s.Topics(ch)
	require.Len(t, topics, 2)
	assert.Equal(t, model.NewTopic(model.TopicChannelStreamState, "42"), topics[0])
	assert.Equal(t, model.NewTopic(model.TopicChannelStreamUpdate, "42"), topics[1])
}
