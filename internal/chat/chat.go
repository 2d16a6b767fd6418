// Package chat keeps an optional IRC presence in the watched channel's chat.
// The client is read-only; it never sends messages.
package chat

import (
	"context"
	"strings"
	"sync"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/Guliveer/twitch-drops-go/internal/logger"
)

// Presence joins exactly one channel at a time, following the watched
// channel. The go-twitch-irc library handles keepalive and reconnection.
type Presence struct {
	mu sync.Mutex

	client  *twitchirc.Client
	current string
	running bool

	log *logger.Logger
}

// NewPresence creates an IRC presence client for the given account.
func NewPresence(username, authToken string, log *logger.Logger) *Presence {
	client := twitchirc.NewClient(username, "oauth:"+authToken)

	p := &Presence{
		client: client,
		log:    log,
	}

	client.OnConnect(func() {
		p.log.Debug("IRC connected")
	})
	client.OnSelfJoinMessage(func(msg twitchirc.UserJoinMessage) {
		p.log.Info("Joined chat", "channel", msg.Channel)
	})
	client.OnSelfPartMessage(func(msg twitchirc.UserPartMessage) {
		p.log.Debug("Left chat", "channel", msg.Channel)
	})

	return p
}

// Follow moves the presence to the given channel login, parting the previous
// one. An empty login parts without joining.
func (p *Presence) Follow(login string) {
	channel := strings.ToLower(login)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == channel {
		return
	}
	if p.current != "" {
		p.client.Depart(p.current)
	}
	p.current = channel
	if channel != "" {
		p.client.Join(channel)
	}
}

// Current returns the channel currently joined, empty when none.
func (p *Presence) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Run connects to IRC and blocks until the context is cancelled.
func (p *Presence) Run(ctx context.Context) error {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := p.client.Connect(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		p.Close()
		return ctx.Err()
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			p.log.Error("IRC connection error", "error", err)
			return err
		}
		return ctx.Err()
	}
}

// Close parts the current channel and disconnects.
func (p *Presence) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false

	if p.current != "" {
		p.client.Depart(p.current)
		p.current = ""
	}
	if err := p.client.Disconnect(); err != nil {
		p.log.Debug("IRC disconnect", "error", err)
	}
}
