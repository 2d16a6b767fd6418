// Package channels maintains the registry of watchable channels: discovery
// from campaign allow lists and the game directory, ordering, cleanup, and
// selection of the channel to watch.
package channels

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
	"github.com/Guliveer/twitch-drops-go/internal/twitch"
	"github.com/Guliveer/twitch-drops-go/internal/workerpool"
)

// resolveWorkers bounds concurrent stream-state lookups during discovery.
const resolveWorkers = 8

// Manual selection failures surfaced to the control API.
var (
	ErrNotFound = errors.New("channel not found")
	ErrOffline  = errors.New("channel offline")
)

// Service owns the channel registry. All mutation goes through it so the
// ordering invariant and the registry cap hold at every point.
type Service struct {
	mu sync.RWMutex

	channels []*model.Channel
	byID     map[string]*model.Channel

	// gamePriority maps game ID to its rank in the wanted games order.
	gamePriority map[string]int

	tw  twitch.API
	gq  gql.Operations
	log *logger.Logger
	bus events.Emitter
}

// NewService creates an empty channel registry.
func NewService(tw twitch.API, gq gql.Operations, log *logger.Logger, bus events.Emitter) *Service {
	return &Service{
		byID:         make(map[string]*model.Channel),
		gamePriority: make(map[string]int),
		tw:           tw,
		gq:           gq,
		log:          log,
		bus:          bus,
	}
}

// SetGamePriority records the wanted games order used for channel ranking.
func (s *Service) SetGamePriority(games []*model.Game) {
	s.mu.Lock()
	s.gamePriority = make(map[string]int, len(games))
	for i, g := range games {
		s.gamePriority[g.ID] = i
	}
	s.mu.Unlock()
}

// Get returns a channel by ID, or nil.
func (s *Service) Get(id string) *model.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// GetByLogin returns a channel by login, or nil.
func (s *Service) GetByLogin(login string) *model.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.channels {
		if strings.EqualFold(ch.Login, login) {
			return ch
		}
	}
	return nil
}

// List returns a copy of the registry in priority order.
func (s *Service) List() []*model.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// Count returns the registry size.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// Add inserts a channel unless it is already tracked or the registry is at
// the cap. Returns true when inserted.
func (s *Service) Add(ch *model.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[ch.ID]; ok {
		// a directory rediscovery of an ACL channel keeps the ACL flag
		if ch.ACLBased {
			existing.ACLBased = true
		}
		return false
	}
	if len(s.channels) >= constants.MaxChannels {
		s.log.Debug("Channel registry full, skipping", "channel", ch.Login)
		return false
	}

	s.channels = append(s.channels, ch)
	s.byID[ch.ID] = ch
	s.sortLocked()

	s.bus.Emit(events.ChannelAdd, View(ch))
	return true
}

// Remove deletes a channel from the registry and returns it, or nil.
func (s *Service) Remove(id string) *model.Channel {
	s.mu.Lock()
	var removed *model.Channel
	for i, ch := range s.channels {
		if ch.ID == id {
			removed = ch
			s.channels = append(s.channels[:i], s.channels[i+1:]...)
			delete(s.byID, id)
			break
		}
	}
	s.mu.Unlock()

	if removed != nil {
		s.bus.Emit(events.ChannelRemove, map[string]any{"id": id})
	}
	return removed
}

// Clear empties the registry and returns the removed channels.
func (s *Service) Clear() []*model.Channel {
	s.mu.Lock()
	removed := s.channels
	s.channels = nil
	s.byID = make(map[string]*model.Channel)
	s.mu.Unlock()

	s.bus.Emit(events.ChannelsClear, nil)
	return removed
}

// Cleanup removes every channel the keep predicate rejects and returns the
// removed set so the caller can drop their pub-sub topics.
func (s *Service) Cleanup(keep func(*model.Channel) bool) []*model.Channel {
	s.mu.Lock()
	kept := s.channels[:0]
	var removed []*model.Channel
	for _, ch := range s.channels {
		if keep(ch) {
			kept = append(kept, ch)
		} else {
			removed = append(removed, ch)
			delete(s.byID, ch.ID)
		}
	}
	s.channels = kept
	s.mu.Unlock()

	for _, ch := range removed {
		s.bus.Emit(events.ChannelRemove, map[string]any{"id": ch.ID})
	}
	return removed
}

// Topics returns the pub-sub topics tracked per channel.
func (s *Service) Topics(ch *model.Channel) []model.Topic {
	return []model.Topic{
		model.NewTopic(model.TopicChannelStreamState, ch.ID),
		model.NewTopic(model.TopicChannelStreamUpdate, ch.ID),
	}
}

// DiscoverACL builds channels from the allow lists of the given campaigns and
// resolves their live state concurrently. Already tracked channels are
// refreshed rather than duplicated.
func (s *Service) DiscoverACL(ctx context.Context, campaigns []*model.Campaign) []*model.Channel {
	seen := make(map[string]*model.Channel)
	var candidates []*model.Channel
	for _, camp := range campaigns {
		for _, entry := range camp.AllowList {
			if entry.ID == "" && entry.Login == "" {
				continue
			}
			if _, ok := seen[entry.ID]; ok {
				continue
			}
			if existing := s.Get(entry.ID); existing != nil {
				existing.ACLBased = true
				continue
			}
			ch := model.NewChannel(entry.ID, entry.Login, "", true)
			seen[entry.ID] = ch
			candidates = append(candidates, ch)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	var mu sync.Mutex
	var added []*model.Channel
	_ = workerpool.Run(ctx, candidates, resolveWorkers, func(ctx context.Context, ch *model.Channel) error {
		stream, err := s.tw.FetchStream(ctx, ch)
		if err != nil {
			s.log.Debug("Stream lookup failed during discovery",
				"channel", ch.Login, "error", err)
			return nil
		}
		ch.SetStream(stream)
		mu.Lock()
		added = append(added, ch)
		mu.Unlock()
		return nil
	})

	// online channels first so the cap trims offline ACL entries last
	sort.SliceStable(added, func(i, j int) bool {
		return added[i].Online() && !added[j].Online()
	})

	var inserted []*model.Channel
	for _, ch := range added {
		if s.Add(ch) {
			inserted = append(inserted, ch)
		}
	}
	s.log.Info("ACL channels discovered",
		"candidates", len(candidates), "added", len(inserted))
	return inserted
}

// DiscoverDirectory pulls live drops-enabled streams for a game from the
// directory and registers the new ones.
func (s *Service) DiscoverDirectory(ctx context.Context, game *model.Game) []*model.Channel {
	slug := game.ResolveSlug()
	streams, err := s.gq.GetGameDirectory(ctx, slug, constants.GameDirectoryLimit, true)
	if err != nil {
		// derived slugs can miss; ask the platform for the real one
		resolved, rerr := s.gq.ResolveGameSlug(ctx, game.Name)
		if rerr != nil || resolved == "" || resolved == slug {
			s.log.Warn("Directory lookup failed", "game", game.Name, "error", err)
			return nil
		}
		game.Slug = resolved
		streams, err = s.gq.GetGameDirectory(ctx, resolved, constants.GameDirectoryLimit, true)
		if err != nil {
			s.log.Warn("Directory lookup failed", "game", game.Name, "error", err)
			return nil
		}
	}

	var inserted []*model.Channel
	for i := range streams {
		st := &streams[i]
		if s.Get(st.ChannelID) != nil {
			continue
		}
		ch := model.NewChannel(st.ChannelID, st.Login, st.DisplayName, false)
		ch.SetStream(&model.Stream{
			Game:         game,
			ViewerCount:  st.ViewersCount,
			DropsEnabled: true,
		})
		if s.Add(ch) {
			inserted = append(inserted, ch)
		}
	}

	s.log.Info("Directory channels discovered",
		"game", game.Name, "live", len(streams), "added", len(inserted))
	return inserted
}

// Select returns the highest priority online channel accepted by the canEarn
// predicate, honoring a manual target first. The second return is false when
// a manual target was requested but cannot be watched.
func (s *Service) Select(manualID string, canEarn func(*model.Channel) bool) (*model.Channel, bool) {
	s.mu.RLock()
	ordered := make([]*model.Channel, len(s.channels))
	copy(ordered, s.channels)
	s.mu.RUnlock()

	if manualID != "" {
		for _, ch := range ordered {
			if ch.ID == manualID {
				if ch.Online() && canEarn(ch) {
					return ch, true
				}
				return nil, false
			}
		}
		return nil, false
	}

	for _, ch := range ordered {
		if ch.Online() && canEarn(ch) {
			return ch, true
		}
	}
	return nil, true
}

// ExpirePending marks channels whose stream-up signal is older than the
// confirmation delay and returns them for a stream fetch.
func (s *Service) ExpirePending(now time.Time) []*model.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*model.Channel
	for _, ch := range s.channels {
		if ch.PendingOnline() && now.Sub(ch.PendingSince()) >= constants.OnlineDelay {
			due = append(due, ch)
		}
	}
	return due
}

// Resort re-applies the ordering invariant and pushes a batch update, called
// after viewer counts or game priorities change.
func (s *Service) Resort() {
	s.mu.Lock()
	s.sortLocked()
	s.mu.Unlock()
	s.EmitBatch()
}

// EmitBatch publishes the full registry snapshot on the bus.
func (s *Service) EmitBatch() {
	s.bus.Emit(events.ChannelsBatchUpdate, s.Views())
}

// Views returns serializable snapshots of every channel in priority order.
func (s *Service) Views() []ChannelView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChannelView, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, View(ch))
	}
	return out
}

// sortLocked orders channels by wanted-game rank, then ACL membership, then
// viewer count, with channel ID as the final deterministic tiebreak.
func (s *Service) sortLocked() {
	rank := func(ch *model.Channel) int {
		game := ch.CurrentGame()
		if game == nil {
			return int(^uint(0) >> 1)
		}
		if r, ok := s.gamePriority[game.ID]; ok {
			return r
		}
		return int(^uint(0) >> 1)
	}
	sort.SliceStable(s.channels, func(i, j int) bool {
		a, b := s.channels[i], s.channels[j]
		ra, rb := rank(a), rank(b)
		if ra != rb {
			return ra < rb
		}
		if a.ACLBased != b.ACLBased {
			return a.ACLBased
		}
		va, vb := a.Viewers(), b.Viewers()
		if va != vb {
			return va > vb
		}
		return a.ID < b.ID
	})
}
