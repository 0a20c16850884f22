package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.False(t, StatusReady.Terminal())
}

func TestOrderStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusInProgress))
	assert.True(t, StatusPending.CanTransition(StatusCancelled))
	assert.True(t, StatusInProgress.CanTransition(StatusReady))
	assert.True(t, StatusReady.CanTransition(StatusCompleted))

	assert.False(t, StatusReady.CanTransition(StatusPending))
	assert.False(t, StatusCompleted.CanTransition(StatusPending))
	assert.False(t, StatusCancelled.CanTransition(StatusInProgress))
}

func TestChannels_CoverEveryEventType(t *testing.T) {
	seen := map[EventType]bool{}
	for _, ch := range Channels() {
		et := ch.EventType()
		assert.NotEmpty(t, et, "channel %s has no event type", ch)
		assert.False(t, seen[et], "event type %s mapped twice", et)
		seen[et] = true
	}
	assert.Len(t, seen, 4)
}

func TestChannel_UnknownHasNoEventType(t *testing.T) {
	assert.Empty(t, Channel("mystery_channel").EventType())
}
