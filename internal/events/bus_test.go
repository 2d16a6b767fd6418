package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitReachesSubscribers(t *testing.T) {
	b := NewBus()
	sub, cancel := b.Subscribe(4)
	defer cancel()

	b.Emit(StatusUpdate, map[string]any{"state": "IDLE"})

	ev := <-sub
	assert.Equal(t, StatusUpdate, ev.Name)
}

func TestBus_SlowSubscriberLosesOldest(t *testing.T) {
	b := NewBus()
	sub, cancel := b.Subscribe(2)
	defer cancel()

	b.Emit(ConsoleOutput, "one")
	b.Emit(ConsoleOutput, "two")
	b.Emit(ConsoleOutput, "three")

	first := <-sub
	second := <-sub
	assert.Equal(t, "two", first.Data)
	assert.Equal(t, "three", second.Data)
	select {
	case ev := <-sub:
		t.Fatalf("unexpected extra event %v", ev)
	default:
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	b := NewBus()
	sub, cancel := b.Subscribe(1)

	cancel()
	_, open := <-sub
	assert.False(t, open)

	// emitting after cancel must not panic
	b.Emit(StatusUpdate, nil)

	// double cancel is safe
	cancel()
}

func TestBus_MultipleSubscribers(t *testing.T) {
	b := NewBus()
	a, cancelA := b.Subscribe(1)
	defer cancelA()
	c, cancelC := b.Subscribe(1)
	defer cancelC()

	b.Emit(DropUpdate, "payload")

	evA := <-a
	evC := <-c
	require.Equal(t, evA, evC)
	assert.Equal(t, DropUpdate, evA.Name)
}
