// Package watch drives the minute-watched heartbeat for the selected channel
// and the local progress accounting between authoritative reports.
package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/inventory"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
	"github.com/Guliveer/twitch-drops-go/internal/twitch"
)

// Hooks are the miner callbacks fired from inside the loop. All are optional.
type Hooks struct {
	// OnCapReached fires when local extrapolation hit its cap and a channel
	// re-selection is due.
	OnCapReached func()
	// OnOffline fires when the watched channel turned out to be offline.
	OnOffline func(*model.Channel)
	// OnClaim fires after a successful claim.
	OnClaim func(camp *model.Campaign, d *model.Drop)
	// OnExhausted fires when the watched campaign has nothing left to earn.
	OnExhausted func()
}

// Loop sends one heartbeat per interval to the watched channel's beacon.
// The interval is 20s divided by connection quality.
type Loop struct {
	tw       twitch.API
	gq       gql.Operations
	inv      *inventory.Service
	log      *logger.Logger
	bus      events.Emitter
	settings inventory.SettingsFunc
	hooks    Hooks

	mu      sync.Mutex
	current *model.Channel

	// lastMinuteAt anchors the once-a-minute progress accounting.
	lastMinuteAt time.Time

	restart chan struct{}
}

// NewLoop creates a stopped watch loop; Run starts it.
func NewLoop(tw twitch.API, gq gql.Operations, inv *inventory.Service,
	log *logger.Logger, bus events.Emitter, settings inventory.SettingsFunc, hooks Hooks) *Loop {
	return &Loop{
		tw:       tw,
		gq:       gq,
		inv:      inv,
		log:      log,
		bus:      bus,
		settings: settings,
		hooks:    hooks,
		restart:  make(chan struct{}, 1),
	}
}

// Current returns the channel being watched, or nil.
func (l *Loop) Current() *model.Channel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// SetChannel swaps the watched channel and restarts the heartbeat cycle.
// A nil channel pauses the loop.
func (l *Loop) SetChannel(ch *model.Channel) {
	l.mu.Lock()
	same := l.current != nil && ch != nil && l.current.ID == ch.ID
	l.current = ch
	l.lastMinuteAt = time.Now()
	l.mu.Unlock()

	if same {
		return
	}
	select {
	case l.restart <- struct{}{}:
	default:
	}

	if ch == nil {
		l.bus.Emit(events.ChannelWatchingClear, nil)
		l.bus.Emit(events.DropProgressStop, nil)
	}
}

// Interval returns the current heartbeat period.
func (l *Loop) Interval() time.Duration {
	quality := l.settings().ConnectionQuality
	if quality < model.MinConnectionQuality {
		quality = model.MinConnectionQuality
	}
	return constants.WatchIntervalBase / time.Duration(quality)
}

// Run drives the heartbeat until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		ch := l.Current()
		if ch == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.restart:
				continue
			}
		}

		started := time.Now()
		l.tick(ctx, ch)

		// sleep the remainder of the interval, preempted by a switch
		wait := l.Interval() - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.restart:
		case <-time.After(wait):
		}
	}
}

// tick sends one heartbeat and runs the per-minute progress accounting.
func (l *Loop) tick(ctx context.Context, ch *model.Channel) {
	if err := l.send(ctx, ch); err != nil {
		l.log.Debug("Heartbeat failed", "channel", ch.Login, "error", err)
		return
	}

	camp, drop := l.inv.ActiveDrop(ch)
	if drop == nil {
		return
	}

	l.mu.Lock()
	minuteDue := time.Since(l.lastMinuteAt) >= time.Minute
	if minuteDue {
		l.lastMinuteAt = time.Now()
	}
	anchor := l.lastMinuteAt
	l.mu.Unlock()

	if minuteDue && drop.LastReportAt().Before(anchor.Add(-time.Minute)) {
		// no authoritative report for a full minute; ask the session
		// endpoint before falling back to local extrapolation
		l.reconcileMinute(ctx, ch, drop)
	}

	if drop.Complete() && !drop.IsClaimed {
		l.claim(ctx, ch, camp, drop)
	}
}

// send posts the heartbeat, refreshing stream info once when the beacon
// answered 404 or 410.
func (l *Loop) send(ctx context.Context, ch *model.Channel) error {
	err := l.tw.SendWatch(ctx, ch)
	if !errors.Is(err, twitch.ErrStaleBeacon) {
		return err
	}

	l.log.Info("Watch beacon stale, refreshing stream info", "channel", ch.Login)
	if _, rerr := l.tw.RefreshBeacon(ctx); rerr != nil {
		l.log.Debug("Beacon refresh failed", "error", rerr)
	}
	stream, ferr := l.tw.FetchStream(ctx, ch)
	if ferr != nil {
		return ferr
	}
	if stream == nil {
		ch.SetOffline()
		if l.hooks.OnOffline != nil {
			l.hooks.OnOffline(ch)
		}
		return nil
	}
	ch.SetStream(stream)
	return l.tw.SendWatch(ctx, ch)
}

// reconcileMinute credits one minute of watching: an authoritative session
// lookup when available, a capped local bump otherwise.
func (l *Loop) reconcileMinute(ctx context.Context, ch *model.Channel, drop *model.Drop) {
	cur, err := l.gq.GetCurrentDrop(ctx, ch.ID)
	if err == nil && cur != nil && cur.DropID == drop.ID {
		l.inv.ApplyProgress(model.DropProgressReport{
			DropID:          cur.DropID,
			CurrentMinutes:  cur.CurrentMinutes,
			RequiredMinutes: cur.RequiredMinutes,
			At:              time.Now(),
		})
		return
	}
	if err != nil {
		l.log.Debug("Current drop lookup failed", "channel", ch.Login, "error", err)
	}

	if l.inv.BumpMinutes(ch) {
		l.log.Info("Extrapolation cap reached, forcing channel re-selection",
			"channel", ch.Login)
		if l.hooks.OnCapReached != nil {
			l.hooks.OnCapReached()
		}
	}
}

// claim claims a completed drop and polls the session until the platform
// moves on to the next one.
func (l *Loop) claim(ctx context.Context, ch *model.Channel, camp *model.Campaign, drop *model.Drop) {
	claimed, err := l.inv.TryClaim(ctx, camp, drop)
	if err != nil {
		l.log.Warn("Claim failed", "drop", drop.Name, "error", err)
		return
	}
	if !claimed {
		return
	}
	if l.hooks.OnClaim != nil {
		l.hooks.OnClaim(camp, drop)
	}
	// the claimed drop's progress stream ends here; the follow-up below
	// resolves what the session moves to next
	l.bus.Emit(events.DropProgressStop, nil)

	l.followUp(ctx, ch, camp, drop)
}

// followUp waits out the platform's claim settling: the session keeps naming
// the claimed drop for a few seconds before switching to the next one.
func (l *Loop) followUp(ctx context.Context, ch *model.Channel, camp *model.Campaign, drop *model.Drop) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(constants.ClaimFollowupDelay):
	}

	for attempt := 0; attempt < constants.ClaimPollAttempts; attempt++ {
		cur, err := l.gq.GetCurrentDrop(ctx, ch.ID)
		if err == nil && (cur == nil || cur.DropID != drop.ID) {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(constants.ClaimPollInterval):
		}
	}

	if camp.Finished() {
		l.log.Info("Campaign exhausted", "campaign", camp.Name)
		if l.hooks.OnExhausted != nil {
			l.hooks.OnExhausted()
		}
	}
}
