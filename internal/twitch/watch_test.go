package twitch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

type stubAuth struct {
	auth.Provider
}

func (stubAuth) UserID() string { return "user-1" }

type stubGQL struct {
	gql.Operations

	tokenCalls atomic.Int32
	tokenErr   error
}

func (s *stubGQL) HTTPClient() *http.Client { return &http.Client{} }

func (s *stubGQL) GetPlaybackAccessToken(_ context.Context, _ string) (*gql.PlaybackAccessToken, error) {
	s.tokenCalls.Add(1)
	if s.tokenErr != nil {
		return nil, s.tokenErr
	}
	return &gql.PlaybackAccessToken{Signature: "sig", Value: "tok"}, nil
}

func testClient(t *testing.T, gq *stubGQL) *Client {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)
	return NewClient(stubAuth{}, gq, log)
}

func TestSendWatch_TokenOncePerBroadcast(t *testing.T) {
	var beaconHits atomic.Int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		beaconHits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gq := &stubGQL{}
	c := testClient(t, gq)

	ch := model.NewChannel("ch1", "streamer", "", false)
	ch.SetStream(&model.Stream{BroadcastID: "b1", BeaconURL: srv.URL})

	require.NoError(t, c.SendWatch(context.Background(), ch))
	require.NoError(t, c.SendWatch(context.Background(), ch))
	assert.Equal(t, int32(1), gq.tokenCalls.Load())
	assert.Equal(t, int32(2), beaconHits.Load())

	// a new broadcast invalidates the held token
	ch.SetStream(&model.Stream{BroadcastID: "b2", BeaconURL: srv.URL})
	require.NoError(t, c.SendWatch(context.Background(), ch))
	assert.Equal(t, int32(2), gq.tokenCalls.Load())

	var events []struct {
		Event      string         `json:"event"`
		Properties map[string]any `json:"properties"`
	}
	decoded, err := base64.StdEncoding.DecodeString(lastBody.Load().(string))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(decoded, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "minute-watched", events[0].Event)
	assert.Equal(t, "ch1", events[0].Properties["channel_id"])
	assert.Equal(t, "user-1", events[0].Properties["user_id"])
}

func TestSendWatch_TokenFailureNonFatal(t *testing.T) {
	var beaconHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		beaconHits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gq := &stubGQL{tokenErr: errors.New("stream may be offline")}
	c := testClient(t, gq)

	ch := model.NewChannel("ch1", "streamer", "", false)
	ch.SetStream(&model.Stream{BroadcastID: "b1", BeaconURL: srv.URL})

	require.NoError(t, c.SendWatch(context.Background(), ch))
	assert.Equal(t, int32(1), beaconHits.Load())
}

func TestSendWatch_StaleBeacon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	ch := model.NewChannel("ch1", "streamer", "", false)
	ch.SetStream(&model.Stream{BroadcastID: "b1", BeaconURL: srv.URL})

	err := testClient(t, &stubGQL{}).SendWatch(context.Background(), ch)
	assert.ErrorIs(t, err, ErrStaleBeacon)
}
