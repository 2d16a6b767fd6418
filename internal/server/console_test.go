package server

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/twitch-drops-go/internal/events"
)

func record(msg string) slog.Record {
	return slog.NewRecord(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), slog.LevelInfo, msg, 0)
}

func TestConsole_Lines(t *testing.T) {
	c := NewConsole(nil)

	require.NoError(t, c.Handle(context.Background(), record("first")))
	require.NoError(t, c.Handle(context.Background(), record("second")))

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "12:00:00 first", lines[0])
	assert.Equal(t, "12:00:00 second", lines[1])
}

func TestConsole_IncludesAttrs(t *testing.T) {
	c := NewConsole(nil)
	r := record("claimed")
	r.AddAttrs(slog.String("drop", "Skin"))

	require.NoError(t, c.Handle(context.Background(), r))
	assert.Equal(t, "12:00:00 claimed drop=Skin", c.Lines()[0])
}

func TestConsole_RingWraps(t *testing.T) {
	c := NewConsole(nil)

	for i := 0; i < consoleCapacity+10; i++ {
		require.NoError(t, c.Handle(context.Background(), record(fmt.Sprintf("line %d", i))))
	}

	lines := c.Lines()
	require.Len(t, lines, consoleCapacity)
	assert.Equal(t, "12:00:00 line 10", lines[0])
	assert.Equal(t, fmt.Sprintf("12:00:00 line %d", consoleCapacity+9), lines[len(lines)-1])
}

func TestConsole_EmitsOnBus(t *testing.T) {
	bus := events.NewBus()
	sub, cancel := bus.Subscribe(4)
	defer cancel()
	c := NewConsole(bus)

	require.NoError(t, c.Handle(context.Background(), record("hello")))

	ev := <-sub
	assert.Equal(t, events.ConsoleOutput, ev.Name)
	assert.Equal(t, "12:00:00 hello", ev.Data)
}

func TestConsole_LevelFilter(t *testing.T) {
	c := NewConsole(nil)
	assert.False(t, c.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, c.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, c.Enabled(context.Background(), slog.LevelError))
}
