package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/solswap/execution-engine/internal/hub"
)

// pingInterval governs the keepalive ping sent to idle subscribers. Browsers
// and load balancers alike tend to drop a websocket with no traffic for
// longer than a minute or two.
const pingInterval = 30 * time.Second

// wireMessage is the JSON shape pushed to every subscriber.
type wireMessage struct {
	Type    string                 `json:"type"`
	OrderID string                 `json:"orderId,omitempty"`
	Status  string                 `json:"status,omitempty"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Reason  string                 `json:"reason,omitempty"`
	At      time.Time              `json:"at"`
}

func fromHubEvent(event hub.Event) wireMessage {
	return wireMessage{
		Type:    string(event.Type),
		OrderID: event.OrderID,
		Status:  string(event.Status),
		Message: event.Message,
		Data:    event.Data,
		Reason:  event.Reason,
		At:      event.At,
	}
}

// handleSubscribe upgrades the connection to a websocket and streams every
// transition event for the order until it reaches a terminal state, the
// client disconnects, or the server shuts down.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.engine.Store.Find(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{"order_id": id, "error": err.Error()})
		return
	}
	defer conn.Close()

	handle := s.engine.Hub.Register(id)
	defer handle.Close()

	// Drain client frames so a dropped connection is detected quickly; this
	// server never expects client-sent payloads on this stream.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-handle.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(fromHubEvent(event)); err != nil {
				return
			}
			if event.Type == hub.EventClosing {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(wireMessage{Type: "ping", At: time.Now().UTC()}); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
