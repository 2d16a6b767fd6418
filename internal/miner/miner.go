// Package miner contains the mining state machine. It drives the cycle of
// inventory reconciliation, wanted-games computation, channel registry
// maintenance and channel selection, and routes pub-sub messages into the
// other services.
package miner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/backoff"
	"github.com/Guliveer/twitch-drops-go/internal/cache"
	"github.com/Guliveer/twitch-drops-go/internal/channels"
	"github.com/Guliveer/twitch-drops-go/internal/chat"
	"github.com/Guliveer/twitch-drops-go/internal/config"
	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/inventory"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
	"github.com/Guliveer/twitch-drops-go/internal/pubsub"
	"github.com/Guliveer/twitch-drops-go/internal/twitch"
	"github.com/Guliveer/twitch-drops-go/internal/watch"
)

// inventoryRefreshInterval is the periodic full re-fetch cadence. Boundary
// triggers and pushed events cause earlier, narrower updates.
const inventoryRefreshInterval = time.Hour

// resortThrottle spaces registry re-sorts caused by viewer count churn.
const resortThrottle = 30 * time.Second

// Miner is one mining session for one account.
type Miner struct {
	log *logger.Logger
	bus *events.Bus
	cfg *config.Config

	auth     *auth.Authenticator
	gq       gql.Operations
	tw       twitch.API
	settings *SettingsStore

	pool     *pubsub.Pool
	channels *channels.Service
	inv      *inventory.Service
	watch    *watch.Loop
	chat     *chat.Presence

	stateMu sync.Mutex
	current State
	pending State
	// fullCleanup asks the next CHANNELS_CLEANUP pass to also drop channels
	// whose game fell out of the wanted set.
	fullCleanup bool
	wake        chan struct{}

	manualMu sync.Mutex
	manualID string

	reconcileMu   sync.Mutex
	lastReconcile time.Time

	resortMu   sync.Mutex
	lastResort time.Time

	// wantedGames is the discovery order computed by the last GAMES_UPDATE.
	wantedMu    sync.RWMutex
	wantedGames []*model.Game

	startedAt time.Time
}

// New wires a miner from its shared dependencies. The pub-sub pool, channel
// registry, inventory and watch loop are owned by the miner.
func New(cfg *config.Config, paths config.Paths, a *auth.Authenticator,
	gq gql.Operations, tw twitch.API, art *cache.Store,
	log *logger.Logger, bus *events.Bus) (*Miner, error) {

	settings, err := LoadSettings(paths.SettingsFile)
	if err != nil {
		return nil, err
	}
	if proxy := settings.Snapshot().Proxy; proxy != "" {
		if err := gq.SetProxy(proxy); err != nil {
			log.Warn("Configured proxy rejected, using direct connection",
				"proxy", proxy, "error", err)
		}
	}

	m := &Miner{
		log:       log,
		bus:       bus,
		cfg:       cfg,
		auth:      a,
		gq:        gq,
		tw:        tw,
		settings:  settings,
		wake:      make(chan struct{}, 1),
		startedAt: time.Now(),
	}

	m.pool = pubsub.NewPool(a, log, m)
	m.channels = channels.NewService(tw, gq, log, bus)
	m.inv = inventory.NewService(gq, a, log, bus, art, settings.Snapshot)
	m.watch = watch.NewLoop(tw, gq, m.inv, log, bus, settings.Snapshot, watch.Hooks{
		OnCapReached: func() { m.requestState(StateChannelSwitch) },
		OnOffline:    m.onWatchedOffline,
		OnClaim:      m.onClaim,
		OnExhausted:  func() { m.requestState(StateInventoryFetch) },
	})

	a.OnCodeRequired(func(userCode, verificationURI string) {
		bus.Emit(events.LoginRequired, nil)
		bus.Emit(events.OAuthCodeRequired, map[string]any{
			"user_code":        userCode,
			"verification_uri": verificationURI,
		})
		log.Event(context.Background(), model.EventLoginRequired,
			"Authorization required, enter the code on the activation page",
			"code", userCode, "url", verificationURI)
	})

	return m, nil
}

// Run logs in, subscribes the user topics and drives every background loop
// until the context is cancelled or an exit is requested.
func (m *Miner) Run(ctx context.Context) error {
	if err := m.tw.Login(ctx); err != nil {
		m.bus.Emit(events.LoginStatus, map[string]any{"logged_in": false})
		return err
	}
	m.bus.Emit(events.LoginStatus, map[string]any{
		"logged_in": true,
		"username":  m.auth.Username(),
		"user_id":   m.auth.UserID(),
	})

	userID := m.auth.UserID()
	userTopics := []model.Topic{
		model.NewTopic(model.TopicUserDrops, userID),
		model.NewTopic(model.TopicUserNotifications, userID),
	}
	if err := m.pool.Subscribe(ctx, userTopics); err != nil {
		return errs.Minerf("subscribing user topics: %v", err)
	}

	if m.cfg.Chat.Enabled {
		m.chat = chat.NewPresence(m.auth.Username(), m.auth.AuthToken(), m.log)
	}

	m.requestState(StateInventoryFetch)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.runStateMachine(ctx) })
	g.Go(func() error { return m.pool.Run(ctx) })
	g.Go(func() error { return m.watch.Run(ctx) })
	g.Go(func() error { return m.runMaintenance(ctx) })
	g.Go(func() error { return m.runOnlineConfirm(ctx) })
	g.Go(func() error { return m.runStatusTicker(ctx) })
	if m.chat != nil {
		g.Go(func() error { return m.chat.Run(ctx) })
	}

	err := g.Wait()
	m.pool.Close()
	if m.chat != nil {
		m.chat.Close()
	}
	return err
}

// requestState queues a phase, coalescing with whatever is already pending.
func (m *Miner) requestState(s State) {
	m.stateMu.Lock()
	m.pending = coalesce(m.pending, s)
	m.stateMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// requestCleanup queues a cleanup pass. A full pass survives coalescing with
// later partial requests.
func (m *Miner) requestCleanup(full bool) {
	m.stateMu.Lock()
	if full {
		m.fullCleanup = true
	}
	m.stateMu.Unlock()
	m.requestState(StateChannelsCleanup)
}

// State returns the phase currently executing.
func (m *Miner) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.current
}

func (m *Miner) setCurrent(s State) {
	m.stateMu.Lock()
	m.current = s
	m.stateMu.Unlock()
}

// takePending pops the pending phase, blocking until one is queued.
func (m *Miner) takePending(ctx context.Context) (State, error) {
	for {
		m.stateMu.Lock()
		s := m.pending
		m.pending = StateIdle
		m.stateMu.Unlock()
		if s != StateIdle {
			return s, nil
		}

		m.setCurrent(StateIdle)
		select {
		case <-ctx.Done():
			return StateIdle, ctx.Err()
		case <-m.wake:
		}
	}
}

// runStateMachine executes phases until cancellation or an exit request.
// After each phase the cycle continues with its successor unless a more
// urgent phase was queued meanwhile.
func (m *Miner) runStateMachine(ctx context.Context) error {
	for {
		s, err := m.takePending(ctx)
		if err != nil {
			return err
		}
		if s == StateExit {
			m.setCurrent(StateExit)
			m.log.Info("Exit requested, shutting down")
			return errs.ErrExitRequest
		}

		m.setCurrent(s)
		m.log.Debug("Entering state", "state", s.String())
		m.bus.Emit(events.StatusUpdate, m.Status())

		switch s {
		case StateInventoryFetch:
			if err := m.phaseInventory(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.log.Error("Inventory fetch failed", "error", err)
				// stay idle; the maintenance loop retries on schedule
				continue
			}
		case StateGamesUpdate:
			m.phaseGames()
		case StateChannelsCleanup:
			m.phaseCleanup()
		case StateChannelsFetch:
			m.phaseFetch(ctx)
		case StateChannelSwitch:
			m.phaseSwitch(ctx)
		}

		if next := s.next(); next != StateIdle {
			if s == StateGamesUpdate {
				m.requestCleanup(true)
			} else {
				m.requestState(next)
			}
		}
	}
}

// phaseInventory reconciles the full drops inventory with retries.
func (m *Miner) phaseInventory(ctx context.Context) error {
	err := backoff.Retry(ctx, func() error {
		rerr := m.inv.Reconcile(ctx)
		if rerr != nil && !errs.Retryable(rerr) {
			return backoff.Permanent(rerr)
		}
		return rerr
	})
	if err != nil {
		return err
	}

	m.reconcileMu.Lock()
	m.lastReconcile = time.Now()
	m.reconcileMu.Unlock()
	return nil
}

// phaseGames recomputes the wanted games order and hands it to the registry.
func (m *Miner) phaseGames() {
	wanted := m.inv.WantedGames()

	m.wantedMu.Lock()
	m.wantedGames = wanted
	m.wantedMu.Unlock()

	m.channels.SetGamePriority(wanted)

	names := make([]string, 0, len(wanted))
	for _, g := range wanted {
		names = append(names, g.DisplayName)
	}
	m.log.Info("Wanted games updated", "count", len(wanted), "games", names)
}

// phaseCleanup removes channels that no longer serve mining. The watched
// channel and ACL channels of active wanted campaigns always survive; a full
// pass additionally drops channels whose game left the wanted set.
func (m *Miner) phaseCleanup() {
	m.stateMu.Lock()
	full := m.fullCleanup
	m.fullCleanup = false
	m.stateMu.Unlock()

	watched := m.watch.Current()

	aclKeep := make(map[string]bool)
	for _, camp := range m.inv.ACLCampaigns() {
		for _, entry := range camp.AllowList {
			aclKeep[entry.ID] = true
		}
	}

	wantedSet := make(map[string]bool)
	m.wantedMu.RLock()
	for _, g := range m.wantedGames {
		wantedSet[g.ID] = true
	}
	m.wantedMu.RUnlock()

	removed := m.channels.Cleanup(func(ch *model.Channel) bool {
		if watched != nil && ch.ID == watched.ID {
			return true
		}
		if ch.ACLBased && aclKeep[ch.ID] {
			return true
		}
		game := ch.CurrentGame()
		if full {
			return game != nil && wantedSet[game.ID]
		}
		if !ch.Online() && !ch.PendingOnline() {
			return false
		}
		return game == nil || wantedSet[game.ID]
	})

	for _, ch := range removed {
		if err := m.pool.UnsubscribeChannel(ch.ID); err != nil {
			m.log.Debug("Failed to drop channel topics",
				"channel", ch.Login, "error", err)
		}
	}
	if len(removed) > 0 {
		m.log.Info("Channels cleaned up", "removed", len(removed), "full", full)
	}
}

// phaseFetch discovers channels for every wanted game, ACL entries first, and
// subscribes their pub-sub topics.
func (m *Miner) phaseFetch(ctx context.Context) {
	var added []*model.Channel
	added = append(added, m.channels.DiscoverACL(ctx, m.inv.ACLCampaigns())...)

	m.wantedMu.RLock()
	wanted := make([]*model.Game, len(m.wantedGames))
	copy(wanted, m.wantedGames)
	m.wantedMu.RUnlock()

	for _, game := range wanted {
		if m.channels.Count() >= constants.MaxChannels {
			break
		}
		added = append(added, m.channels.DiscoverDirectory(ctx, game)...)
	}

	for _, ch := range added {
		if err := m.pool.Subscribe(ctx, m.channels.Topics(ch)); err != nil {
			m.log.Warn("Topic subscription failed",
				"channel", ch.Login, "error", err)
			break
		}
	}

	m.channels.EmitBatch()
	m.log.Info("Channel registry updated",
		"channels", m.channels.Count(),
		"topics", m.pool.TotalTopicCount(),
		"connections", m.pool.ConnectionCount())
}

// phaseSwitch picks the channel to watch. A manual target that cannot be
// watched drops the session back to automatic selection.
func (m *Miner) phaseSwitch(ctx context.Context) {
	manual := m.manualTarget()

	ch, ok := m.channels.Select(manual, m.inv.CanEarn)
	if manual != "" && !ok {
		m.log.Info("Manual channel is no longer watchable, back to automatic selection",
			"channel_id", manual)
		m.setManualTarget("")
		ch, _ = m.channels.Select("", m.inv.CanEarn)
		manual = ""
	}

	cur := m.watch.Current()
	if manual == "" && ch != nil && (cur == nil || cur.ID != ch.ID) {
		// cross-check automatic candidates against the platform's per-channel
		// availability; a candidate with no campaigns on offer is skipped
		rejected := make(map[string]bool)
		for ch != nil && !m.dropsAvailable(ctx, ch) {
			m.log.Info("Channel has no available drops, skipping", "channel", ch.Login)
			rejected[ch.ID] = true
			ch, _ = m.channels.Select("", func(c *model.Channel) bool {
				return !rejected[c.ID] && m.inv.CanEarn(c)
			})
		}
	}
	if ch == nil {
		if cur != nil {
			m.log.Info("Nothing left to watch", "last_channel", cur.Login)
		}
		m.watch.SetChannel(nil)
		m.followChat("")
		return
	}
	if cur != nil && cur.ID == ch.ID {
		return
	}

	m.watch.SetChannel(ch)
	m.followChat(ch.Login)
	m.bus.Emit(events.ChannelWatching, channels.View(ch))

	gameName := ""
	if g := ch.CurrentGame(); g != nil {
		gameName = g.DisplayName
	}
	m.log.Event(ctx, model.EventChannelSwitch, "Now watching",
		"channel", ch.Login, "game", gameName)
}

// dropsAvailable asks the platform which campaigns currently run on the
// channel. A lookup failure counts as available so a transport blip cannot
// stall switching.
func (m *Miner) dropsAvailable(ctx context.Context, ch *model.Channel) bool {
	ids, err := m.gq.GetAvailableDrops(ctx, ch.ID)
	if err != nil {
		m.log.Debug("Available drops lookup failed", "channel", ch.Login, "error", err)
		return true
	}
	return len(ids) > 0
}

// onWatchedOffline reacts to the watch loop discovering the current channel
// went dark between pub-sub signals.
func (m *Miner) onWatchedOffline(ch *model.Channel) {
	m.log.Event(context.Background(), model.EventChannelOffline,
		"Watched channel went offline", "channel", ch.Login)
	m.bus.Emit(events.ChannelUpdate, channels.View(ch))
	m.requestState(StateChannelSwitch)
}

// onClaim surfaces a successful claim as a user-facing event.
func (m *Miner) onClaim(camp *model.Campaign, d *model.Drop) {
	m.log.Event(context.Background(), model.EventDropClaim, "Drop claimed",
		"drop", d.Name, "campaign", camp.Name)
}

func (m *Miner) manualTarget() string {
	m.manualMu.Lock()
	defer m.manualMu.Unlock()
	return m.manualID
}

func (m *Miner) setManualTarget(id string) {
	m.manualMu.Lock()
	m.manualID = id
	m.manualMu.Unlock()
	m.bus.Emit(events.ManualModeUpdate, map[string]any{
		"enabled":    id != "",
		"channel_id": id,
	})
}

func (m *Miner) followChat(login string) {
	if m.chat != nil {
		m.chat.Follow(login)
	}
}

// maybeResort re-sorts the channel registry at most once per throttle window.
func (m *Miner) maybeResort() {
	m.resortMu.Lock()
	due := time.Since(m.lastResort) >= resortThrottle
	if due {
		m.lastResort = time.Now()
	}
	m.resortMu.Unlock()
	if due {
		m.channels.Resort()
	}
}
