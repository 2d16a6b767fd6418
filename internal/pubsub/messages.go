// Package pubsub maintains the pool of WebSocket connections to the Twitch
// pub-sub edge: topic sharding across connections, keepalive, and reconnection
// that preserves the subscribed topic set.
package pubsub

import "encoding/json"

// Frame types exchanged with the pub-sub edge.
const (
	TypePing      = "PING"
	TypePong      = "PONG"
	TypeListen    = "LISTEN"
	TypeUnlisten  = "UNLISTEN"
	TypeMessage   = "MESSAGE"
	TypeResponse  = "RESPONSE"
	TypeReconnect = "RECONNECT"
)

// Request is a client-to-server frame.
type Request struct {
	Type  string       `json:"type"`
	Nonce string       `json:"nonce,omitempty"`
	Data  *RequestData `json:"data,omitempty"`
}

// RequestData carries the topics and auth token for LISTEN/UNLISTEN.
type RequestData struct {
	Topics    []string `json:"topics"`
	AuthToken string   `json:"auth_token"`
}

// Response is a server-to-client frame.
type Response struct {
	Type  string          `json:"type"`
	Nonce string          `json:"nonce,omitempty"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessageData is the payload of a MESSAGE frame.
type MessageData struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}
