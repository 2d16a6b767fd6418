package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Guliveer/twitch-drops-go/internal/events"
)

// consoleCapacity bounds the console history ring.
const consoleCapacity = 200

// Console is a slog handler keeping the most recent user-visible log lines
// for /api/console and the initial_state replay, and mirroring each line on
// the bus as console_output.
type Console struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool

	bus events.Emitter
}

// NewConsole creates a console ring. The bus may be nil in tests.
func NewConsole(bus events.Emitter) *Console {
	return &Console{
		lines: make([]string, consoleCapacity),
		bus:   bus,
	}
}

func (c *Console) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (c *Console) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	line := b.String()

	c.mu.Lock()
	c.lines[c.next] = line
	c.next = (c.next + 1) % consoleCapacity
	if c.next == 0 {
		c.full = true
	}
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Emit(events.ConsoleOutput, line)
	}
	return nil
}

func (c *Console) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *Console) WithGroup(string) slog.Handler      { return c }

// Lines returns the buffered history, oldest first.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.full {
		out := make([]string, c.next)
		copy(out, c.lines[:c.next])
		return out
	}
	out := make([]string, 0, consoleCapacity)
	out = append(out, c.lines[c.next:]...)
	out = append(out, c.lines[:c.next]...)
	return out
}
