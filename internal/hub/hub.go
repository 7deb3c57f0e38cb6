// Package hub implements the Subscription Hub (C8): fans order transition
// events out to every live subscriber of an order, without letting a slow
// subscriber block delivery to the others. Grounded on the teacher's
// internal/terminal/websocket.go WebSocketManager register/unregister/
// broadcast pattern, generalized from websocket frames to a plain Go
// channel sink so the transport (HTTP websocket, SSE, in-process test) is
// the caller's concern, not the hub's.
package hub

import (
	"sync"
	"time"

	"github.com/solswap/execution-engine/internal/domain"
)

// EventType enumerates the messages a Handle can receive.
type EventType string

const (
	EventConnected EventType = "connected"
	EventStatus    EventType = "status_update"
	EventClosing   EventType = "closing"
)

// Event is what the hub delivers to a subscriber's sink.
type Event struct {
	Type    EventType
	OrderID string
	Status  domain.OrderStatus
	Message string
	Data    map[string]interface{}
	Reason  string
	At      time.Time
}

// sinkBuffer bounds how far a slow subscriber can lag before the hub drops
// it rather than let it stall delivery to everyone else.
const sinkBuffer = 32

// Handle is a live subscription. Events arrives is closed when the
// subscription ends, either because the caller canceled it or the hub
// closed it (order reached a terminal state, or shutdown).
type Handle struct {
	orderID string
	events  chan Event
	hub     *Hub
	once    sync.Once
}

// Events returns the channel of events for this subscription.
func (h *Handle) Events() <-chan Event { return h.events }

// Close ends the subscription from the subscriber's side, without emitting
// a Closing event (the subscriber already knows it's leaving).
func (h *Handle) Close() {
	h.once.Do(func() {
		h.hub.remove(h.orderID, h)
		close(h.events)
	})
}

func (h *Handle) closeWithReason() {
	h.once.Do(func() {
		close(h.events)
	})
}

// Hub is the Subscription Hub (C8).
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Handle]struct{} // orderID -> live handles
}

// New builds an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[string]map[*Handle]struct{})}
}

// Register opens a subscription to orderID, immediately queuing a
// Connected event.
func (h *Hub) Register(orderID string) *Handle {
	handle := &Handle{
		orderID: orderID,
		events:  make(chan Event, sinkBuffer),
		hub:     h,
	}

	h.mu.Lock()
	if h.subs[orderID] == nil {
		h.subs[orderID] = make(map[*Handle]struct{})
	}
	h.subs[orderID][handle] = struct{}{}
	h.mu.Unlock()

	h.deliver(handle, Event{Type: EventConnected, OrderID: orderID, At: time.Now().UTC()})
	return handle
}

// Broadcast delivers event to every live subscriber of event.OrderID,
// dropping (not blocking on) any sink that is full.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	handles := make([]*Handle, 0, len(h.subs[event.OrderID]))
	for handle := range h.subs[event.OrderID] {
		handles = append(handles, handle)
	}
	h.mu.RUnlock()

	for _, handle := range handles {
		h.deliver(handle, event)
	}
}

// CloseOrderSubscriptions emits a Closing event to every subscriber of
// orderID, then closes and removes them. Used once an order reaches a
// terminal state.
func (h *Hub) CloseOrderSubscriptions(orderID, reason string) {
	h.mu.Lock()
	handles := h.subs[orderID]
	delete(h.subs, orderID)
	h.mu.Unlock()

	for handle := range handles {
		h.deliver(handle, Event{Type: EventClosing, OrderID: orderID, Reason: reason, At: time.Now().UTC()})
		handle.closeWithReason()
	}
}

// CloseAll closes every live subscription with reason "shutting down",
// used during graceful shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[string]map[*Handle]struct{})
	h.mu.Unlock()

	for orderID, handles := range all {
		for handle := range handles {
			h.deliver(handle, Event{Type: EventClosing, OrderID: orderID, Reason: "shutting down", At: time.Now().UTC()})
			handle.closeWithReason()
		}
	}
}

// Stats reports the number of orders with at least one subscriber and the
// total subscriber count.
type Stats struct {
	SubscribedOrders int
	TotalSubscribers int
}

// Stats returns a snapshot of current subscription counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{SubscribedOrders: len(h.subs)}
	for _, handles := range h.subs {
		stats.TotalSubscribers += len(handles)
	}
	return stats
}

func (h *Hub) remove(orderID string, handle *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[orderID]; ok {
		delete(set, handle)
		if len(set) == 0 {
			delete(h.subs, orderID)
		}
	}
}

func (h *Hub) deliver(handle *Handle, event Event) {
	select {
	case handle.events <- event:
	default:
		// Subscriber too slow to keep up; drop it rather than block the
		// rest of the broadcast.
		h.remove(handle.orderID, handle)
		handle.closeWithReason()
	}
}
