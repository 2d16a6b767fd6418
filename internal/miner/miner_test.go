package miner

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/model"
)

type stubGQL struct {
	gql.Operations

	availableIDs []string
	availableErr error
}

func (s *stubGQL) GetAvailableDrops(_ context.Context, _ string) ([]string, error) {
	if s.availableErr != nil {
		return nil, s.availableErr
	}
	return s.availableIDs, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)
	return log
}

func TestDropsAvailable(t *testing.T) {
	log := testLogger(t)
	ch := model.NewChannel("ch1", "streamer", "", false)

	m := &Miner{gq: &stubGQL{availableIDs: []string{"camp-1"}}, log: log}
	assert.True(t, m.dropsAvailable(context.Background(), ch))

	m = &Miner{gq: &stubGQL{}, log: log}
	assert.False(t, m.dropsAvailable(context.Background(), ch))

	// a transport failure must not veto the candidate
	m = &Miner{gq: &stubGQL{availableErr: errors.New("timeout")}, log: log}
	assert.True(t, m.dropsAvailable(context.Background(), ch))
}

func TestUpdateSettings_ThemeChange(t *testing.T) {
	store, err := LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	bus := events.NewBus()
	sub, cancel := bus.Subscribe(8)
	defer cancel()

	m := &Miner{
		settings: store,
		bus:      bus,
		log:      testLogger(t),
		wake:     make(chan struct{}, 1),
	}

	dark := false
	_, err = m.UpdateSettings(model.SettingsPatch{DarkMode: &dark})
	require.NoError(t, err)

	names := drainEventNames(sub)
	assert.Contains(t, names, events.SettingsUpdated)
	assert.Contains(t, names, events.ThemeChange)

	// applying the same value again does not re-announce the theme
	_, err = m.UpdateSettings(model.SettingsPatch{DarkMode: &dark})
	require.NoError(t, err)
	names = drainEventNames(sub)
	assert.Contains(t, names, events.SettingsUpdated)
	assert.NotContains(t, names, events.ThemeChange)
}

func drainEventNames(sub <-chan events.Event) []events.Name {
	var names []events.Name
	for {
		select {
		case ev := <-sub:
			names = append(names, ev.Name)
		default:
			return names
		}
	}
}
