package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic_Roundtrip(t *testing.T) {
	for _, kind := range []TopicKind{
		TopicUserDrops, TopicUserNotifications,
		TopicChannelStreamState, TopicChannelStreamUpdate,
	} {
		topic := NewTopic(kind, "12345")
		parsed, ok := ParseTopic(topic.String())
		assert.True(t, ok, topic.String())
		assert.Equal(t, topic, parsed)
	}
}

func TestParseTopic_Unknown(t *testing.T) {
	_, ok := ParseTopic("community-points-user-v1.123")
	assert.False(t, ok)
}

func TestParseMessage_Viewcount(t *testing.T) {
	raw := []byte(`{"type":"viewcount","server_time":1700000000.0,"viewers":1234}`)
	msg, err := ParseMessage("video-playback-by-id.999", raw)
	require.NoError(t, err)

	assert.Equal(t, MsgTypeViewCount, msg.Type)
	assert.Equal(t, "999", msg.ChannelID)
	viewers, ok := msg.Viewers()
	assert.True(t, ok)
	assert.Equal(t, 1234, viewers)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
}

func TestParseMessage_DropProgress(t *testing.T) {
	raw := []byte(`{"type":"drop-progress","data":{"drop_id":"d1",` +
		`"channel_id":"42","current_progress_min":17,"required_progress_min":120,` +
		`"timestamp":"2026-01-02T15:04:05Z"}}`)
	msg, err := ParseMessage("user-drop-events.777", raw)
	require.NoError(t, err)

	report, ok := msg.DropProgress()
	require.True(t, ok)
	assert.Equal(t, "d1", report.DropID)
	assert.Equal(t, 17, report.CurrentMinutes)
	assert.Equal(t, 120, report.RequiredMinutes)
	assert.Equal(t, "42", msg.ChannelID)
	assert.Equal(t, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), report.At)
}

func TestParseMessage_DropClaim(t *testing.T) {
	raw := []byte(`{"type":"drop-claim","data":{"drop_instance_id":"user#camp#drop"}}`)
	msg, err := ParseMessage("user-drop-events.777", raw)
	require.NoError(t, err)

	id, ok := msg.DropClaimID()
	assert.True(t, ok)
	assert.Equal(t, "user#camp#drop", id)
}

func TestParseMessage_DropReminder(t *testing.T) {
	raw := []byte(`{"type":"create-notification","data":{"notification":` +
		`{"id":"n1","type":"user_drop_reward_reminder_notification"}}}`)
	msg, err := ParseMessage("onsite-notifications.777", raw)
	require.NoError(t, err)

	id, ok := msg.DropReminder()
	assert.True(t, ok)
	assert.Equal(t, "n1", id)

	other := []byte(`{"type":"create-notification","data":{"notification":` +
		`{"id":"n2","type":"something_else"}}}`)
	msg, err = ParseMessage("onsite-notifications.777", other)
	require.NoError(t, err)
	_, ok = msg.DropReminder()
	assert.False(t, ok)
}

func TestParseMessage_BroadcastUpdate(t *testing.T) {
	// broadcast-settings-update frames carry no type field
	raw := []byte(`{"channel":"streamer","game":"Rust","game_id":263490}`)
	msg, err := ParseMessage("broadcast-settings-update.888", raw)
	require.NoError(t, err)

	assert.Equal(t, MsgTypeBroadcastUpdate, msg.Type)
	gameID, ok := msg.BroadcastGameID()
	assert.True(t, ok)
	assert.Equal(t, "263490", gameID)
}

func TestParseMessage_UnknownTopic(t *testing.T) {
	_, err := ParseMessage("predictions-channel-v1.1", []byte(`{}`))
	assert.Error(t, err)
}
