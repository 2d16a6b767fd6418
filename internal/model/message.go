package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType represents the type of a pub-sub message for routing.
type MessageType string

// Message types the miner reacts to.
const (
	// Stream state messages
	MsgTypeStreamUp   MessageType = "stream-up"
	MsgTypeStreamDown MessageType = "stream-down"
	MsgTypeViewCount  MessageType = "viewcount"
	MsgTypeCommercial MessageType = "commercial"

	// Broadcast settings messages
	MsgTypeBroadcastUpdate MessageType = "broadcast_settings_update"

	// Drop messages
	MsgTypeDropProgress MessageType = "drop-progress"
	MsgTypeDropClaim    MessageType = "drop-claim"

	// On-site notification messages
	MsgTypeNotificationCreate MessageType = "create-notification"
)

// NotificationDropReminder is the on-site notification subtype that signals a
// claimable drop was granted outside the normal progress flow.
const NotificationDropReminder = "user_drop_reward_reminder_notification"

// Message represents a parsed pub-sub message.
type Message struct {
	Topic      Topic          `json:"topic"`
	RawMessage map[string]any `json:"message"`
	Type       MessageType    `json:"type"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	ChannelID  string         `json:"channel_id"`
}

// ParseMessage creates a Message from a raw pub-sub frame.
func ParseMessage(topicFull string, rawMessageJSON []byte) (*Message, error) {
	topic, ok := ParseTopic(topicFull)
	if !ok {
		return nil, fmt.Errorf("unknown topic %q", topicFull)
	}

	var msgBody map[string]any
	if err := json.Unmarshal(rawMessageJSON, &msgBody); err != nil {
		return nil, fmt.Errorf("failed to parse message body: %w", err)
	}

	msgType := ""
	if t, ok := msgBody["type"].(string); ok {
		msgType = t
	}

	var data map[string]any
	if d, ok := msgBody["data"].(map[string]any); ok {
		data = d
	}

	msg := &Message{
		Topic:      topic,
		RawMessage: msgBody,
		Type:       MessageType(msgType),
		Data:       data,
	}
	if msg.Type == "" && msgBody["channel"] != nil {
		// broadcast-settings-update frames carry no type field
		msg.Type = MsgTypeBroadcastUpdate
		msg.Data = msgBody
	}

	msg.Timestamp = msg.resolveTimestamp()
	msg.ChannelID = msg.resolveChannelID()

	return msg, nil
}

func (m *Message) resolveTimestamp() time.Time {
	if m.Data != nil {
		if ts, ok := m.Data["timestamp"].(string); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				return t
			}
		}
	}
	return serverTime(m.RawMessage)
}

func (m *Message) resolveChannelID() string {
	if !m.Topic.Kind.UserScoped() {
		return m.Topic.TargetID
	}
	if m.Data != nil {
		if cid, ok := m.Data["channel_id"].(string); ok {
			return cid
		}
	}
	return ""
}

// Viewers extracts the viewer count from a viewcount message.
func (m *Message) Viewers() (int, bool) {
	if m.Type != MsgTypeViewCount {
		return 0, false
	}
	if v, ok := m.RawMessage["viewers"].(float64); ok {
		return int(v), true
	}
	return 0, false
}

// DropProgressReport is an authoritative progress snapshot from the platform.
type DropProgressReport struct {
	DropID          string
	CurrentMinutes  int
	RequiredMinutes int
	At              time.Time
}

// DropProgress extracts an authoritative report from a drop-progress message.
func (m *Message) DropProgress() (DropProgressReport, bool) {
	if m.Type != MsgTypeDropProgress || m.Data == nil {
		return DropProgressReport{}, false
	}
	id, _ := m.Data["drop_id"].(string)
	if id == "" {
		return DropProgressReport{}, false
	}
	cur, _ := m.Data["current_progress_min"].(float64)
	req, _ := m.Data["required_progress_min"].(float64)
	return DropProgressReport{
		DropID:          id,
		CurrentMinutes:  int(cur),
		RequiredMinutes: int(req),
		At:              m.Timestamp,
	}, true
}

// DropClaimID extracts the claim instance ID from a drop-claim message.
func (m *Message) DropClaimID() (string, bool) {
	if m.Type != MsgTypeDropClaim || m.Data == nil {
		return "", false
	}
	id, _ := m.Data["drop_instance_id"].(string)
	return id, id != ""
}

// DropReminder extracts the notification ID of a drop reward reminder from a
// create-notification message. Returns false for every other notification.
func (m *Message) DropReminder() (string, bool) {
	if m.Type != MsgTypeNotificationCreate || m.Data == nil {
		return "", false
	}
	notif, ok := m.Data["notification"].(map[string]any)
	if !ok {
		return "", false
	}
	if t, _ := notif["type"].(string); t != NotificationDropReminder {
		return "", false
	}
	id, _ := notif["id"].(string)
	return id, id != ""
}

// BroadcastGameID extracts the new game ID from a broadcast settings update.
func (m *Message) BroadcastGameID() (string, bool) {
	if m.Type != MsgTypeBroadcastUpdate || m.Data == nil {
		return "", false
	}
	if v, ok := m.Data["game_id"].(float64); ok {
		return fmt.Sprintf("%.0f", v), true
	}
	if v, ok := m.Data["game_id"].(string); ok {
		return v, true
	}
	return "", false
}

// String returns a string representation of the message.
func (m *Message) String() string {
	return fmt.Sprintf("Message(type=%s, topic=%s, channel_id=%s)", m.Type, m.Topic, m.ChannelID)
}

func serverTime(data map[string]any) time.Time {
	if data != nil {
		if st, ok := data["server_time"].(float64); ok {
			return time.Unix(int64(st), 0).UTC()
		}
	}
	return time.Now().UTC()
}
