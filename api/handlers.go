package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engine"
	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/internal/orders"
)

// errorResponse is the body returned on every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusForError maps the engine error taxonomy (§7) onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, engineerr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engineerr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// submitRequest is the wire shape of a Submit call.
type submitRequest struct {
	TokenIn  string          `json:"tokenIn"`
	TokenOut string          `json:"tokenOut"`
	AmountIn decimal.Decimal `json:"amountIn"`
	Slippage decimal.Decimal `json:"slippage,omitempty"`
	Type     string          `json:"type,omitempty"`
}

type submitResponse struct {
	OrderID      string `json:"orderId"`
	Status       string `json:"status"`
	SubscribeURL string `json:"subscribeURL"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	orderType := domain.OrderTypeMarket
	if req.Type != "" {
		orderType = domain.OrderType(req.Type)
	}

	order, err := s.engine.Submit(r.Context(), engine.SubmitRequest{
		TokenIn:  req.TokenIn,
		TokenOut: req.TokenOut,
		AmountIn: req.AmountIn,
		Slippage: req.Slippage,
		Type:     orderType,
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		OrderID:      order.ID,
		Status:       string(order.Status),
		SubscribeURL: s.subscribeURL(r, order.ID),
	})
}

func (s *Server) subscribeURL(r *http.Request, orderID string) string {
	scheme := s.cfg.PublicScheme
	if scheme == "" {
		scheme = "ws"
		if r.TLS != nil {
			scheme = "wss"
		}
	}
	host := s.cfg.PublicHost
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s/orders/%s/subscribe", scheme, host, orderID)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := s.engine.Store.Find(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, orderView(order))
}

type pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type listResponse struct {
	Orders     []orderRecord `json:"orders"`
	Pagination pagination    `json:"pagination"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 1
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}

	filter := orders.Filter{Status: domain.OrderStatus(q.Get("status"))}

	list, err := s.engine.Store.List(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.engine.Store.Count(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	records := make([]orderRecord, 0, len(list))
	for _, o := range list {
		records = append(records, orderView(o))
	}

	writeJSON(w, http.StatusOK, listResponse{
		Orders:     records,
		Pagination: pagination{Limit: limit, Offset: offset, Total: total},
	})
}

type statsResponse struct {
	Counts     map[string]int `json:"counts"`
	QueueDepth int            `json:"queueDepth"`
	Completed  int            `json:"completedJobs"`
	DeadLetter int            `json:"deadLetterJobs"`
	Hub        hubStats       `json:"subscriptions"`
}

type hubStats struct {
	SubscribedOrders int `json:"subscribedOrders"`
	TotalSubscribers int `json:"totalSubscribers"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for _, status := range []domain.OrderStatus{
		domain.StatusPending, domain.StatusRouting, domain.StatusBuilding,
		domain.StatusSubmitted, domain.StatusConfirmed, domain.StatusFailed,
	} {
		count, err := s.engine.Store.Count(r.Context(), orders.Filter{Status: status})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		counts[string(status)] = count
	}

	stats := s.engine.Hub.Stats()

	writeJSON(w, http.StatusOK, statsResponse{
		Counts:     counts,
		QueueDepth: s.engine.Queue.Depth(),
		Completed:  len(s.engine.Queue.Completed()),
		DeadLetter: len(s.engine.Queue.DeadLetter()),
		Hub:        hubStats{SubscribedOrders: stats.SubscribedOrders, TotalSubscribers: stats.TotalSubscribers},
	})
}

// orderRecord is the wire shape of an Order.
type orderRecord struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	TokenIn       string     `json:"tokenIn"`
	TokenOut      string     `json:"tokenOut"`
	AmountIn      string     `json:"amountIn"`
	AmountOut     string     `json:"amountOut,omitempty"`
	ExecutedPrice string     `json:"executedPrice,omitempty"`
	Slippage      string     `json:"slippage"`
	Venue         string     `json:"venue,omitempty"`
	TxRef         string     `json:"txRef,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	RetryCount    int        `json:"retryCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

func orderView(o domain.Order) orderRecord {
	record := orderRecord{
		ID:           o.ID,
		Type:         string(o.Type),
		Status:       string(o.Status),
		TokenIn:      o.TokenIn.String(),
		TokenOut:     o.TokenOut.String(),
		AmountIn:     o.AmountIn.String(),
		Slippage:     o.Slippage.String(),
		Venue:        o.Venue,
		TxRef:        o.TxRef,
		ErrorMessage: o.ErrorMessage,
		RetryCount:   o.RetryCount,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		CompletedAt:  o.CompletedAt,
	}
	if !o.AmountOut.IsZero() {
		record.AmountOut = o.AmountOut.String()
	}
	if !o.ExecutedPrice.IsZero() {
		record.ExecutedPrice = o.ExecutedPrice.String()
	}
	return record
}
