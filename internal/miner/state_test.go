package miner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_NextChain(t *testing.T) {
	assert.Equal(t, StateGamesUpdate, StateInventoryFetch.next())
	assert.Equal(t, StateChannelsCleanup, StateGamesUpdate.next())
	assert.Equal(t, StateChannelsFetch, StateChannelsCleanup.next())
	assert.Equal(t, StateChannelSwitch, StateChannelsFetch.next())
	assert.Equal(t, StateIdle, StateChannelSwitch.next())
	assert.Equal(t, StateIdle, StateIdle.next())
}

func TestCoalesce_EarlierPhaseWins(t *testing.T) {
	// an inventory fetch runs the whole cycle, so it subsumes a pending switch
	assert.Equal(t, StateInventoryFetch,
		coalesce(StateChannelSwitch, StateInventoryFetch))
	assert.Equal(t, StateInventoryFetch,
		coalesce(StateInventoryFetch, StateChannelSwitch))
	assert.Equal(t, StateChannelsCleanup,
		coalesce(StateChannelsCleanup, StateChannelsFetch))
}

func TestCoalesce_Idle(t *testing.T) {
	assert.Equal(t, StateChannelSwitch, coalesce(StateIdle, StateChannelSwitch))
	assert.Equal(t, StateChannelSwitch, coalesce(StateChannelSwitch, StateIdle))
	assert.Equal(t, StateIdle, coalesce(StateIdle, StateIdle))
}

func TestCoalesce_ExitSticky(t *testing.T) {
	assert.Equal(t, StateExit, coalesce(StateExit, StateInventoryFetch))
	assert.Equal(t, StateExit, coalesce(StateInventoryFetch, StateExit))
	assert.Equal(t, StateExit, coalesce(StateExit, StateIdle))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "INVENTORY_FETCH", StateInventoryFetch.String())
	assert.Equal(t, "EXIT", StateExit.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
