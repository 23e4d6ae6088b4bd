package sse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishBroadcastsToClients(t *testing.T) {
	h := NewHub(nil)
	a := &Client{ID: "a", Events: make(chan Event, 4)}
	b := &Client{ID: "b", Events: make(chan Event, 4)}
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.Count())

	require.NoError(t, h.Publish(context.Background(), events.Event{Type: events.SessionCreated, EntityID: "s1"}))

	for _, c := range []*Client{a, b} {
		got := <-c.Events
		assert.Equal(t, events.SessionCreated, got.EventType)
		var decoded events.Event
		require.NoError(t, json.Unmarshal([]byte(got.Data), &decoded))
		assert.Equal(t, "s1", decoded.EntityID)
	}
}

func TestBroadcastSkipsFullClient(t *testing.T) {
	h := NewHub(nil)
	slow := &Client{ID: "slow", Events: make(chan Event, 1)}
	h.Register(slow)

	h.Broadcast(Event{EventType: "x"})
	h.Broadcast(Event{EventType: "y"})
	assert.Len(t, slow.Events, 1)

	h.Unregister("slow")
	assert.Equal(t, 0, h.Count())
	_, open := <-slow.Events
	assert.True(t, open, "buffered event still readable")
	_, open = <-slow.Events
	assert.False(t, open)
}
