package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvWithTimeout(t *testing.T, h *Handle) (Event, bool) {
	t.Helper()
	select {
	case e, ok := <-h.Events():
		return e, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}, false
	}
}

func TestRegister_EmitsConnectedImmediately(t *testing.T) {
	hub := New()
	handle := hub.Register("order-1")

	event, ok := recvWithTimeout(t, handle)
	require.True(t, ok)
	assert.Equal(t, EventConnected, event.Type)
	assert.Equal(t, "order-1", event.OrderID)
}

func TestBroadcast_DeliversToAllSubscribersOfOrder(t *testing.T) {
	hub := New()
	a := hub.Register("order-1")
	b := hub.Register("order-1")
	recvWithTimeout(t, a)
	recvWithTimeout(t, b)

	hub.Broadcast(Event{Type: EventStatus, OrderID: "order-1", Message: "routing"})

	ea, ok := recvWithTimeout(t, a)
	require.True(t, ok)
	eb, ok := recvWithTimeout(t, b)
	require.True(t, ok)
	assert.Equal(t, "routing", ea.Message)
	assert.Equal(t, "routing", eb.Message)
}

func TestBroadcast_DoesNotLeakToOtherOrders(t *testing.T) {
	hub := New()
	a := hub.Register("order-1")
	other := hub.Register("order-2")
	recvWithTimeout(t, a)
	recvWithTimeout(t, other)

	hub.Broadcast(Event{Type: EventStatus, OrderID: "order-1", Message: "routing"})

	_, ok := recvWithTimeout(t, a)
	require.True(t, ok)

	select {
	case <-other.Events():
		t.Fatal("subscriber of a different order should not receive the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseOrderSubscriptions_EmitsClosingThenCloses(t *testing.T) {
	hub := New()
	handle := hub.Register("order-1")
	recvWithTimeout(t, handle)

	hub.CloseOrderSubscriptions("order-1", "order reached a terminal state")

	event, ok := recvWithTimeout(t, handle)
	require.True(t, ok)
	assert.Equal(t, EventClosing, event.Type)
	assert.Equal(t, "order reached a terminal state", event.Reason)

	_, ok = <-handle.Events()
	assert.False(t, ok, "channel should be closed after Closing event")
}

func TestCloseAll_ClosesEverySubscriptionWithShutdownReason(t *testing.T) {
	hub := New()
	a := hub.Register("order-1")
	b := hub.Register("order-2")
	recvWithTimeout(t, a)
	recvWithTimeout(t, b)

	hub.CloseAll()

	ea, ok := recvWithTimeout(t, a)
	require.True(t, ok)
	assert.Equal(t, "shutting down", ea.Reason)

	eb, ok := recvWithTimeout(t, b)
	require.True(t, ok)
	assert.Equal(t, "shutting down", eb.Reason)

	assert.Equal(t, Stats{}, hub.Stats())
}

func TestHandle_CloseRemovesFromHubWithoutEmittingClosing(t *testing.T) {
	hub := New()
	handle := hub.Register("order-1")
	recvWithTimeout(t, handle)

	handle.Close()

	_, ok := <-handle.Events()
	assert.False(t, ok, "channel should be closed with no Closing event queued")
	assert.Equal(t, Stats{}, hub.Stats())
}

func TestStats_ReflectsSubscriberCounts(t *testing.T) {
	hub := New()
	hub.Register("order-1")
	hub.Register("order-1")
	hub.Register("order-2")

	stats := hub.Stats()
	assert.Equal(t, 2, stats.SubscribedOrders)
	assert.Equal(t, 3, stats.TotalSubscribers)
}
