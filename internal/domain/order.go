// Package domain holds the order execution engine's core entity and
// transient value types, shared by every component (C1-C8) without
// introducing a dependency on any of them.
package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// OrderType distinguishes the order's execution strategy. Only Market is
// implemented; Limit and Sniper are reserved for future routing rules.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeSniper OrderType = "sniper"
)

// OrderStatus is a node in the order state machine DAG.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusRouting   OrderStatus = "routing"
	StatusBuilding  OrderStatus = "building"
	StatusSubmitted OrderStatus = "submitted"
	StatusConfirmed OrderStatus = "confirmed"
	StatusFailed    OrderStatus = "failed"
)

// IsTerminal reports whether status is a sink state of the DAG.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// legalTransitions enumerates the state machine's edges, per spec.md §4.7.
// Failed is reachable from every non-terminal state (retry exhaustion or a
// permanent venue error), so it is added to every entry below.
var legalTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusRouting, StatusFailed},
	StatusRouting:   {StatusBuilding, StatusFailed},
	StatusBuilding:  {StatusSubmitted, StatusFailed},
	StatusSubmitted: {StatusConfirmed, StatusFailed},
	StatusConfirmed: {},
	StatusFailed:    {},
}

// CanTransition reports whether moving from 'from' to 'to' is a legal edge.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Order is the engine's durable entity, persisted by the Order Store (C4)
// and mirrored in the Hot Cache (C5).
type Order struct {
	ID        string
	Type      OrderType
	Status    OrderStatus
	TokenIn   solana.PublicKey
	TokenOut  solana.PublicKey
	AmountIn  decimal.Decimal
	Slippage  decimal.Decimal

	AmountOut      decimal.Decimal // set on first entry to Confirmed
	ExecutedPrice  decimal.Decimal // set on first entry to Confirmed
	Venue          string          // set at Routing -> Building
	TxRef          string          // set on Submitted
	ErrorMessage   string          // set iff terminal Failed
	RetryCount     int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Quote is a transient per-venue price estimate, never persisted.
type Quote struct {
	Venue       string
	TokenIn     solana.PublicKey
	TokenOut    solana.PublicKey
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal
	UnitPrice   decimal.Decimal
	FeeRate     decimal.Decimal
	PriceImpact decimal.Decimal // percentage, 0-100
	At          time.Time
}

// EffectiveOutput is the ranking key the Router uses to compare quotes:
// the amount a trader actually receives once price impact is accounted for.
func (q Quote) EffectiveOutput() decimal.Decimal {
	impactFraction := q.PriceImpact.Div(decimal.NewFromInt(100))
	return q.AmountOut.Mul(decimal.NewFromInt(1).Sub(impactFraction))
}

// RoutingDecision records the Router's choice among competing quotes.
type RoutingDecision struct {
	OrderID     string
	Quotes      []Quote
	Selected    Quote
	Rationale   string
	PriceGapPct decimal.Decimal
	At          time.Time
}

// SwapResult is a venue driver's outcome for a submitted swap.
type SwapResult struct {
	OK               bool
	TxRef            string
	ExecutedPrice    decimal.Decimal
	AmountOut        decimal.Decimal
	RealizedSlippage decimal.Decimal
	At               time.Time
	NeedsWrapIn      bool
	NeedsUnwrapOut   bool
	WrapAmount       decimal.Decimal
}

// TransitionEvent is emitted exactly once per order state transition and
// fanned out by the Subscription Hub (C8).
type TransitionEvent struct {
	OrderID string
	Status  OrderStatus
	Message string
	At      time.Time
	Data    map[string]interface{}
}
