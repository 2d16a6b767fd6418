package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/backoff"
	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// MessageHandler processes decoded pub-sub messages routed from the pool.
// Handler errors never reach the socket loops.
type MessageHandler interface {
	HandlePubSubMessage(ctx context.Context, msg *model.Message)
}

// Pool shards topics across WebSocket connections and routes incoming
// messages to a handler. Dead connections are redialed with exponential
// backoff and their topic set restored.
type Pool struct {
	mu sync.Mutex

	conns   []*Connection
	auth    auth.Provider
	log     *logger.Logger
	handler MessageHandler

	merged chan *model.Message

	maxTopics int
	maxConns  int

	// set once Run started so connections dialed later get their own
	// run loop and forwarder immediately
	runCtx   context.Context
	runGroup *errgroup.Group
}

// NewPool creates an empty connection pool.
func NewPool(a auth.Provider, log *logger.Logger, handler MessageHandler) *Pool {
	return &Pool{
		conns:     make([]*Connection, 0, constants.MaxPubSubConns),
		auth:      a,
		log:       log,
		handler:   handler,
		merged:    make(chan *model.Message, 256),
		maxTopics: constants.MaxTopicsPerConn,
		maxConns:  constants.MaxPubSubConns,
	}
}

// Subscribe shards topics across connections, dialing new ones as needed.
func (p *Pool) Subscribe(ctx context.Context, topics []model.Topic) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, topic := range topics {
		if !topic.Kind.UserScoped() && topic.TargetID == "" {
			p.log.Warn("Skipping subscription for topic with empty channel id",
				"topic", topic.Kind.String())
			continue
		}

		if err := p.subscribeSingle(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe removes topics from whichever connections hold them.
func (p *Pool) Unsubscribe(topics []model.Topic) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, topic := range topics {
		found := false
		for _, conn := range p.conns {
			for _, ct := range conn.Topics() {
				if ct == topic {
					if err := conn.Unsubscribe([]model.Topic{topic}); err != nil {
						p.log.Error("Failed to unsubscribe topic",
							"topic", topic.String(), "error", err)
					}
					found = true
					break
				}
			}
			if found {
				break
			}
		}

		if !found {
			p.log.Debug("Topic not held by any connection", "topic", topic.String())
		}
	}
	return nil
}

// UnsubscribeChannel removes every channel-scoped topic for the given channel.
func (p *Pool) UnsubscribeChannel(channelID string) error {
	p.mu.Lock()
	var topicsToRemove []model.Topic
	for _, conn := range p.conns {
		for _, topic := range conn.Topics() {
			if !topic.Kind.UserScoped() && topic.TargetID == channelID {
				topicsToRemove = append(topicsToRemove, topic)
			}
		}
	}
	p.mu.Unlock()

	if len(topicsToRemove) == 0 {
		return nil
	}

	p.log.Debug("Unsubscribing channel topics",
		"channel_id", channelID, "count", len(topicsToRemove))

	return p.Unsubscribe(topicsToRemove)
}

// Run starts all connections and routes messages to the handler. It blocks
// until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.routeMessages(ctx)
	})

	g.Go(func() error {
		return p.healthMonitor(ctx)
	})

	p.mu.Lock()
	p.runCtx = ctx
	p.runGroup = g
	for _, conn := range p.conns {
		conn := conn
		p.startForwarder(ctx, conn)
		g.Go(func() error {
			return p.runConnection(ctx, conn)
		})
	}
	p.mu.Unlock()

	return g.Wait()
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, conn := range p.conns {
		conn.Close()
	}
	p.log.Info("Pub-sub pool closed", "connections", len(p.conns))
}

// ConnectionCount returns the number of pooled connections.
func (p *Pool) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// TotalTopicCount returns the number of subscribed topics across the pool.
func (p *Pool) TotalTopicCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, conn := range p.conns {
		total += conn.TopicCount()
	}
	return total
}

func (p *Pool) subscribeSingle(ctx context.Context, topic model.Topic) error {
	for _, conn := range p.conns {
		if conn.HasCapacity() {
			return conn.Subscribe([]model.Topic{topic})
		}
	}

	if len(p.conns) >= p.maxConns {
		return fmt.Errorf("pub-sub connection limit (%d) reached", p.maxConns)
	}

	conn, err := NewConnection(ctx, len(p.conns), p.auth, p.log)
	if err != nil {
		return fmt.Errorf("creating pub-sub connection: %w", err)
	}

	p.conns = append(p.conns, conn)
	p.log.Info("Opened pub-sub connection",
		"conn", conn.index, "total_connections", len(p.conns))

	if p.runGroup != nil {
		runCtx := p.runCtx
		p.startForwarder(runCtx, conn)
		p.runGroup.Go(func() error {
			return p.runConnection(runCtx, conn)
		})
	}

	return conn.Subscribe([]model.Topic{topic})
}

// runConnection keeps one connection slot alive for the lifetime of the pool.
// The topic set survives every redial.
func (p *Pool) runConnection(ctx context.Context, conn *Connection) error {
	reconnect := backoff.NewReconnector()

	for {
		err := conn.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Warn("Pub-sub connection lost, reconnecting",
			"conn", conn.index, "error", err)

		if err := reconnect.Wait(ctx); err != nil {
			return err
		}

		newConn, err := p.redial(ctx, conn)
		if err != nil {
			p.log.Error("Reconnection failed", "conn", conn.index, "error", err)
			continue
		}

		conn = newConn
		reconnect.Reset()
		p.log.Info("Pub-sub connection re-established",
			"conn", conn.index, "topics", conn.TopicCount())
	}
}

// redial replaces a dead connection in its pool slot, carrying over the full
// topic set for re-subscription on the new socket.
func (p *Pool) redial(ctx context.Context, old *Connection) (*Connection, error) {
	topics := old.Topics()

	newConn, err := NewConnection(ctx, old.index, p.auth, p.log)
	if err != nil {
		return nil, fmt.Errorf("dialing pub-sub edge: %w", err)
	}

	p.mu.Lock()
	for i, c := range p.conns {
		if c == old {
			p.conns[i] = newConn
			break
		}
	}
	p.startForwarder(ctx, newConn)
	p.mu.Unlock()

	if err := newConn.Subscribe(topics); err != nil {
		return nil, fmt.Errorf("re-subscribing topics after reconnect: %w", err)
	}

	return newConn, nil
}

// startForwarder fans a connection's messages into the pool's merged channel.
func (p *Pool) startForwarder(ctx context.Context, conn *Connection) {
	go func() {
		for {
			select {
			case msg, ok := <-conn.Messages():
				if !ok {
					return
				}
				select {
				case p.merged <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Pool) routeMessages(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-p.merged:
			if !ok {
				return nil
			}
			if p.handler != nil {
				p.handler.HandlePubSubMessage(ctx, msg)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pool) healthMonitor(ctx context.Context) error {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			for _, conn := range p.conns {
				if !conn.IsConnected() {
					p.log.Warn("Pub-sub connection down",
						"conn", conn.index, "topics", conn.TopicCount())
				}
			}
			p.mu.Unlock()
		}
	}
}
