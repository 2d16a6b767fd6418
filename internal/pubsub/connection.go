package pubsub

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// Connection is a single WebSocket connection to the pub-sub edge. Each
// connection carries at most MaxTopicsPerConn topics.
type Connection struct {
	mu sync.Mutex

	index int
	conn  *websocket.Conn

	topics        []model.Topic
	pendingTopics []model.Topic

	lastPong    time.Time
	isConnected bool

	messages chan *model.Message
	writeCh  chan []byte

	auth auth.Provider
	log  *logger.Logger

	nonceToTopic map[string]string

	lastMsgTimestamp time.Time
	lastMsgKey       string
}

// NewConnection dials the pub-sub edge and returns a ready connection.
func NewConnection(ctx context.Context, index int, authProvider auth.Provider, log *logger.Logger) (*Connection, error) {
	conn, _, err := websocket.Dial(ctx, constants.PubSubURL, &websocket.DialOptions{})
	if err != nil {
		return nil, fmt.Errorf("dialing pub-sub edge: %w", err)
	}

	conn.SetReadLimit(128 << 10) // 128 KB

	return &Connection{
		index:        index,
		conn:         conn,
		topics:       make([]model.Topic, 0, constants.MaxTopicsPerConn),
		messages:     make(chan *model.Message, 32),
		writeCh:      make(chan []byte, 64),
		auth:         authProvider,
		log:          log,
		nonceToTopic: make(map[string]string),
		lastPong:     time.Now(),
		isConnected:  true,
	}, nil
}

// Subscribe sends LISTEN frames for the given topics. Topics added before Run
// starts are flushed once the connection is live.
func (c *Connection) Subscribe(topics []model.Topic) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		if c.hasTopic(topic) {
			continue
		}
		c.topics = append(c.topics, topic)

		if !c.isConnected {
			c.pendingTopics = append(c.pendingTopics, topic)
			continue
		}

		if err := c.sendListen(topic); err != nil {
			return fmt.Errorf("subscribing to topic %s: %w", topic, err)
		}
	}
	return nil
}

// Unsubscribe sends a single UNLISTEN frame for the given topics.
func (c *Connection) Unsubscribe(topics []model.Topic) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	topicStrings := make([]string, 0, len(topics))
	for _, topic := range topics {
		topicStrings = append(topicStrings, topic.String())
	}

	req := Request{
		Type:  TypeUnlisten,
		Nonce: generateNonce(),
		Data: &RequestData{
			Topics:    topicStrings,
			AuthToken: c.auth.AuthToken(),
		},
	}

	if err := c.sendRequest(req); err != nil {
		c.log.Error("Failed to unlisten from topics",
			"conn", c.index, "topics", topicStrings, "error", err)
		return err
	}

	for _, topic := range topics {
		c.removeTopic(topic)
	}

	c.log.Debug("Unlistened from topics", "conn", c.index, "topics", topicStrings)
	return nil
}

// Run drives the read, write, and keepalive loops. It blocks until the
// context is cancelled or the connection dies.
func (c *Connection) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)

	c.mu.Lock()
	for _, topic := range c.pendingTopics {
		if err := c.sendListen(topic); err != nil {
			c.log.Error("Failed to subscribe pending topic",
				"conn", c.index, "topic", topic, "error", err)
		}
	}
	c.pendingTopics = nil
	c.mu.Unlock()

	go c.pingLoop(ctx)

	return c.readLoop(ctx)
}

// Close closes the WebSocket and the message channel.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isConnected = false
	if c.conn != nil {
		c.conn.Close(websocket.StatusNormalClosure, "closing")
	}
	close(c.messages)
}

// Messages returns the channel on which parsed messages are delivered.
func (c *Connection) Messages() <-chan *model.Message {
	return c.messages
}

// TopicCount returns the number of currently subscribed topics.
func (c *Connection) TopicCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics)
}

// HasCapacity reports whether the connection can accept more topics.
func (c *Connection) HasCapacity() bool {
	return c.TopicCount() < constants.MaxTopicsPerConn
}

// Topics returns a copy of the subscribed topic set.
func (c *Connection) Topics() []model.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Topic, len(c.topics))
	copy(out, c.topics)
	return out
}

// IsConnected reports whether the connection is currently live.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

func (c *Connection) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var resp Response
		err := wsjson.Read(ctx, c.conn, &resp)
		if err != nil {
			c.mu.Lock()
			c.isConnected = false
			c.mu.Unlock()

			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("WebSocket read error", "conn", c.index, "error", err)
			return fmt.Errorf("conn #%d: %w", c.index, errs.ErrWebsocketClosed)
		}

		c.handleResponse(ctx, &resp)
	}
}

func (c *Connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			err := c.conn.Write(ctx, websocket.MessageText, data)
			if err != nil {
				c.log.Error("WebSocket write error", "conn", c.index, "error", err)
			}
		}
	}
}

// pingLoop sends a PING at a jittered interval and enforces the PONG
// deadline. A missed PONG closes the connection so the pool reconnects.
func (c *Connection) pingLoop(ctx context.Context) {
	timer := time.NewTimer(jitteredPingInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !c.IsConnected() {
				return
			}

			sentAt := time.Now()
			c.enqueuePing()

			select {
			case <-ctx.Done():
				return
			case <-time.After(constants.PubSubPongTimeout):
			}

			c.mu.Lock()
			pongReceived := !c.lastPong.Before(sentAt)
			c.mu.Unlock()

			if !pongReceived {
				c.log.Warn("No PONG within deadline, closing connection",
					"conn", c.index, "deadline", constants.PubSubPongTimeout)
				c.mu.Lock()
				c.isConnected = false
				c.mu.Unlock()
				c.conn.Close(websocket.StatusGoingAway, "pong timeout")
				return
			}

			timer.Reset(jitteredPingInterval())
		}
	}
}

// jitteredPingInterval spreads PINGs so sharded connections do not fire in
// lockstep.
func jitteredPingInterval() time.Duration {
	spread := int64(2 * constants.PubSubPingJitter)
	n, err := rand.Int(rand.Reader, big.NewInt(spread))
	if err != nil {
		return constants.PubSubPingInterval
	}
	return constants.PubSubPingInterval - constants.PubSubPingJitter + time.Duration(n.Int64())
}

func (c *Connection) handleResponse(ctx context.Context, resp *Response) {
	switch resp.Type {
	case TypePong:
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()

	case TypeReconnect:
		c.log.Info("Reconnection requested by server", "conn", c.index)
		c.mu.Lock()
		c.isConnected = false
		c.mu.Unlock()
		c.conn.Close(websocket.StatusGoingAway, "server reconnect")

	case TypeResponse:
		c.mu.Lock()
		failedTopic := c.nonceToTopic[resp.Nonce]
		delete(c.nonceToTopic, resp.Nonce)
		c.mu.Unlock()

		if resp.Error != "" {
			c.log.Error("LISTEN rejected",
				"conn", c.index,
				"error", resp.Error,
				"topic", failedTopic,
				"nonce", resp.Nonce,
			)
			if resp.Error == "ERR_BADAUTH" {
				c.log.Error("Auth token rejected by pub-sub edge, token may be expired",
					"conn", c.index)
			}
		}

	case TypeMessage:
		c.handleMessage(ctx, resp.Data)
	}
}

func (c *Connection) handleMessage(ctx context.Context, rawData json.RawMessage) {
	var msgData MessageData
	if err := json.Unmarshal(rawData, &msgData); err != nil {
		c.log.Error("Failed to parse MESSAGE frame", "conn", c.index, "error", err)
		return
	}

	msg, err := model.ParseMessage(msgData.Topic, []byte(msgData.Message))
	if err != nil {
		c.log.Debug("Ignoring unparseable pub-sub message",
			"conn", c.index, "topic", msgData.Topic, "error", err)
		return
	}

	key := fmt.Sprintf("%s|%s", msg.Type, msg.ChannelID)
	c.mu.Lock()
	if c.lastMsgKey == key && c.lastMsgTimestamp.Equal(msg.Timestamp) {
		c.mu.Unlock()
		return
	}
	c.lastMsgTimestamp = msg.Timestamp
	c.lastMsgKey = key
	c.mu.Unlock()

	select {
	case c.messages <- msg:
	case <-ctx.Done():
	}
}

func (c *Connection) sendListen(topic model.Topic) error {
	nonce := generateNonce()
	topicStr := topic.String()
	c.nonceToTopic[nonce] = topicStr

	req := Request{
		Type:  TypeListen,
		Nonce: nonce,
		Data: &RequestData{
			Topics:    []string{topicStr},
			AuthToken: c.auth.AuthToken(),
		},
	}

	c.log.Debug("Subscribing to topic", "conn", c.index, "topic", topicStr)
	return c.sendRequest(req)
}

func (c *Connection) sendRequest(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return fmt.Errorf("write channel full on conn #%d", c.index)
	}
}

func (c *Connection) enqueuePing() {
	data, err := json.Marshal(Request{Type: TypePing})
	if err != nil {
		c.log.Error("Failed to marshal PING", "conn", c.index, "error", err)
		return
	}

	select {
	case c.writeCh <- data:
		c.log.Debug("Sent PING", "conn", c.index)
	default:
		c.log.Warn("Write channel full, dropping PING", "conn", c.index)
	}
}

func (c *Connection) hasTopic(topic model.Topic) bool {
	for _, t := range c.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (c *Connection) removeTopic(topic model.Topic) {
	for i, t := range c.topics {
		if t == topic {
			c.topics = append(c.topics[:i], c.topics[i+1:]...)
			return
		}
	}
	for i, t := range c.pendingTopics {
		if t == topic {
			c.pendingTopics = append(c.pendingTopics[:i], c.pendingTopics[i+1:]...)
			return
		}
	}
}

func generateNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
