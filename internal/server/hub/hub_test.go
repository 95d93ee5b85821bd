package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcast_ReachesSubscribers(t *testing.T) {
	h := New()

	ch1, cancel1 := h.Subscribe("d1")
	defer cancel1()
	ch2, cancel2 := h.Subscribe("d1")
	defer cancel2()
	other, cancelOther := h.Subscribe("d2")
	defer cancelOther()

	h.Broadcast("d1", map[string]any{"v": 1})

	assert.Equal(t, map[string]any{"v": 1}, <-ch1)
	assert.Equal(t, map[string]any{"v": 1}, <-ch2)
	assert.Empty(t, other)
}

func TestCancel_IdempotentAndClosesChannel(t *testing.T) {
	h := New()

	ch, cancel := h.Subscribe("d1")
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Watchers("d1"))

	// Broadcasting to a document with no watchers is a no-op.
	h.Broadcast("d1", map[string]any{"v": 1})
}

func TestBroadcast_SlowWatcherDoesNotBlock(t *testing.T) {
	h := New()

	ch, cancel := h.Subscribe("d1")
	defer cancel()

	// Overfill the buffer; extra snapshots are dropped, not blocking.
	for i := 0; i < 20; i++ {
		h.Broadcast("d1", map[string]any{"v": i})
	}

	require.Equal(t, map[string]any{"v": 0}, <-ch)
}
