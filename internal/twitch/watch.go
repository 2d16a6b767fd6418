package twitch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Guliveer/twitch-drops-go/internal/constants"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

// ErrStaleBeacon is returned when the beacon endpoint rejects the payload
// with 404 or 410; the caller should refresh stream info and retry once.
var ErrStaleBeacon = errors.New("watch beacon is stale")

// playerSession remembers which broadcast holds a playback access token, so
// the heartbeat acquires one per broadcast instead of per interval.
type playerSession struct {
	mu        sync.Mutex
	login     string
	broadcast string
}

// SendWatch posts one minute-watched event for the channel's live stream.
func (c *Client) SendWatch(ctx context.Context, ch *model.Channel) error {
	ch.Mu.RLock()
	stream := ch.Stream
	login := ch.Login
	channelID := ch.ID
	ch.Mu.RUnlock()

	if stream == nil {
		return errs.Minerf("watch payload for offline channel %s", login)
	}
	if stream.BeaconURL == "" {
		return fmt.Errorf("no beacon URL for %s", login)
	}

	// watch time only credits sessions holding a player token
	if err := c.ensurePlayerToken(ctx, login, stream.BroadcastID); err != nil {
		c.Log.Debug("Playback token fetch failed", "channel", login, "error", err)
	}

	payload := map[string]any{
		"event": "minute-watched",
		"properties": map[string]any{
			"channel_id":   channelID,
			"broadcast_id": stream.BroadcastID,
			"player":       "site",
			"user_id":      c.Auth.UserID(),
			"live":         true,
			"channel":      login,
		},
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("encoding watch payload for %s: %w", login, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stream.BeaconURL,
		strings.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("creating watch request: %w", err)
	}
	req.Header.Set("User-Agent", constants.BrowserUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.RequestError{URL: stream.BeaconURL, Err: err}
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		c.Log.Debug("Sent minute-watched event", "channel", login)
		return nil
	case http.StatusNotFound, http.StatusGone:
		return ErrStaleBeacon
	default:
		return &errs.RequestError{Status: resp.StatusCode, URL: stream.BeaconURL}
	}
}

// ensurePlayerToken acquires a playback access token once per broadcast.
func (c *Client) ensurePlayerToken(ctx context.Context, login, broadcastID string) error {
	c.player.mu.Lock()
	held := c.player.login == login && c.player.broadcast == broadcastID
	c.player.mu.Unlock()
	if held {
		return nil
	}

	if _, err := c.GQL.GetPlaybackAccessToken(ctx, login); err != nil {
		return err
	}

	c.player.mu.Lock()
	c.player.login = login
	c.player.broadcast = broadcastID
	c.player.mu.Unlock()
	return nil
}

// encodePayload encodes a beacon payload the way the web player does: a
// base64 JSON array with a single event object.
func encodePayload(payload map[string]any) (string, error) {
	wrapped := []map[string]any{payload}
	jsonData, err := json.Marshal(wrapped)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jsonData), nil
}
