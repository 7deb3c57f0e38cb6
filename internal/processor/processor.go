// Package processor implements the Order Processor (C7): the per-job
// state-machine driver that walks one order through Pending through a
// terminal state, invoking the Router, the selected Venue Driver, the
// Order Store, and the Subscription Hub at every edge. Grounded on the
// teacher's internal/trading/execution_engine.go executeOrder pipeline,
// generalized from its algorithm-specific branches (TWAP/VWAP/iceberg) to
// the single market-order state machine this system targets.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/internal/hub"
	"github.com/solswap/execution-engine/internal/queue"
	"github.com/solswap/execution-engine/internal/venue"
	"github.com/solswap/execution-engine/pkg/observability"
)

// Validator sanity-checks a job's order id before the processor touches
// any state. It exists as an explicit hook, not a regex baked into the
// worker loop, so test harnesses can swap it out.
type Validator func(orderID string) bool

// DefaultValidator accepts only well-formed UUIDs, the shape every order
// id created by the Order Store actually has.
func DefaultValidator(orderID string) bool {
	_, err := uuid.Parse(orderID)
	return err == nil
}

// Store is the slice of the Order Store the Processor needs. Satisfied by
// *orders.Store.
type Store interface {
	Find(ctx context.Context, id string) (domain.Order, error)
	Transition(ctx context.Context, id string, newStatus domain.OrderStatus, patch func(*domain.Order)) (domain.Order, error)
	RecordExecution(ctx context.Context, id, venue, txRef string, executedPrice, amountOut decimal.Decimal) (domain.Order, error)
	IncrementRetry(ctx context.Context, id string) (domain.Order, error)
	MarkFailed(ctx context.Context, id, errorMessage string) (domain.Order, error)
}

// Router is the slice of the Router the Processor needs. Satisfied by
// *router.Router.
type Router interface {
	Route(ctx context.Context, orderID string, pair venue.Pair, amountIn decimal.Decimal) (domain.Quote, domain.RoutingDecision, error)
	DriverByName(name string) (venue.Driver, bool)
}

// Hub is the slice of the Subscription Hub the Processor needs. Satisfied
// by *hub.Hub.
type Hub interface {
	Broadcast(event hub.Event)
	CloseOrderSubscriptions(orderID, reason string)
}

// Cache is the slice of the Hot Cache the Processor needs. Satisfied by
// *cache.Cache.
type Cache interface {
	Put(ctx context.Context, order domain.Order) error
	AppendEvent(ctx context.Context, event domain.TransitionEvent) error
}

// Processor is the Order Processor (C7).
type Processor struct {
	store       Store
	router      Router
	hub         Hub
	cache       Cache
	logger      *observability.Logger
	metrics     *observability.MetricsProvider
	validator   Validator
	maxAttempts int
}

// Config supplies the Processor's dependencies and tuning. All fields are
// required except Validator and Metrics.
type Config struct {
	Store       Store
	Router      Router
	Hub         Hub
	Cache       Cache
	Logger      *observability.Logger
	Metrics     *observability.MetricsProvider
	Validator   Validator
	MaxAttempts int // must match the owning Queue's MaxAttempts
}

// New builds a Processor. It is meant to be handed to queue.New as a
// queue.Handler via its Process method.
func New(cfg Config) *Processor {
	validator := cfg.Validator
	if validator == nil {
		validator = DefaultValidator
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Processor{
		store:       cfg.Store,
		router:      cfg.Router,
		hub:         cfg.Hub,
		cache:       cfg.Cache,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		validator:   validator,
		maxAttempts: maxAttempts,
	}
}

// Process drives one order through its next state-machine steps for a
// single worker attempt. It implements queue.Handler.
func (p *Processor) Process(ctx context.Context, job queue.Job) error {
	if !p.validator(job.OrderID) {
		p.logger.Warn(ctx, "skipping job with non-identity order id", map[string]interface{}{
			"order_id": job.OrderID,
		})
		return nil
	}

	order, err := p.store.Find(ctx, job.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order for processing: %w", err)
	}

	order, err = p.store.Transition(ctx, job.OrderID, domain.StatusRouting, nil)
	if err != nil {
		return p.handleStepError(ctx, job, err)
	}
	p.emit(ctx, order, "routing to best venue", nil)

	pair := venue.Pair{TokenIn: order.TokenIn, TokenOut: order.TokenOut}
	_, decision, err := p.router.Route(ctx, job.OrderID, pair, order.AmountIn)
	if err != nil {
		return p.handleStepError(ctx, job, err)
	}

	order, err = p.store.Transition(ctx, job.OrderID, domain.StatusBuilding, func(o *domain.Order) {
		o.Venue = decision.Selected.Venue
	})
	if err != nil {
		return p.handleStepError(ctx, job, err)
	}
	p.emit(ctx, order, decision.Rationale, map[string]interface{}{"routingDecision": decision})

	order, err = p.store.Transition(ctx, job.OrderID, domain.StatusSubmitted, nil)
	if err != nil {
		return p.handleStepError(ctx, job, err)
	}
	p.emit(ctx, order, fmt.Sprintf("submitting swap to %s", decision.Selected.Venue), nil)

	driver, ok := p.router.DriverByName(decision.Selected.Venue)
	if !ok {
		return p.handleStepError(ctx, job, fmt.Errorf("%w: venue %q no longer registered", engineerr.ErrVenuePermanent, decision.Selected.Venue))
	}

	start := time.Now()
	result, err := driver.Swap(ctx, venue.SwapRequest{
		OrderID:           job.OrderID,
		Pair:              pair,
		AmountIn:          order.AmountIn,
		ExpectedUnitPrice: decision.Selected.UnitPrice,
		SlippageMax:       order.Slippage,
	})
	if p.metrics != nil {
		p.metrics.RecordVenueSwap(ctx, decision.Selected.Venue, time.Since(start), err == nil)
	}
	if err != nil {
		return p.handleStepError(ctx, job, err)
	}

	if !withinSlippage(decision.Selected.UnitPrice, result.ExecutedPrice, order.Slippage) {
		return p.handleStepError(ctx, job, fmt.Errorf("%w: expected %s executed %s slippage bound %s",
			engineerr.ErrSlippageExceeded, decision.Selected.UnitPrice, result.ExecutedPrice, order.Slippage))
	}

	order, err = p.store.RecordExecution(ctx, job.OrderID, decision.Selected.Venue, result.TxRef, result.ExecutedPrice, result.AmountOut)
	if err != nil {
		return p.handleStepError(ctx, job, err)
	}
	if p.metrics != nil {
		p.metrics.RecordOrderTerminal(ctx, string(domain.StatusConfirmed))
	}
	p.emit(ctx, order, fmt.Sprintf("swap confirmed: %s", result.TxRef), map[string]interface{}{"txRef": result.TxRef})
	p.hub.CloseOrderSubscriptions(job.OrderID, "order reached a terminal state")

	return nil
}

// withinSlippage implements the §5 slippage gate: |expected - executed| /
// expected <= slippage. An expected price of zero (should not happen in
// practice) is treated as automatically within bound to avoid a divide by
// zero masking a different bug.
func withinSlippage(expected, executed, slippage decimal.Decimal) bool {
	if expected.IsZero() {
		return true
	}
	deviation := expected.Sub(executed).Abs().Div(expected)
	return deviation.LessThanOrEqual(slippage)
}

// handleStepError implements step 7: increment the retry counter, and
// either let the error bubble to the queue for another attempt, or mark
// the order permanently Failed if no attempts remain or the error is
// permanent by nature.
func (p *Processor) handleStepError(ctx context.Context, job queue.Job, cause error) error {
	if _, err := p.store.IncrementRetry(ctx, job.OrderID); err != nil {
		p.logger.Error(ctx, "failed to record retry attempt", err, map[string]interface{}{
			"order_id": job.OrderID,
		})
	}

	exhausted := errors.Is(cause, engineerr.ErrVenuePermanent) || job.Attempt+1 >= p.maxAttempts
	if !exhausted {
		return cause
	}

	order, err := p.store.MarkFailed(ctx, job.OrderID, cause.Error())
	if err != nil {
		p.logger.Error(ctx, "failed to mark order failed", err, map[string]interface{}{
			"order_id": job.OrderID,
		})
		return cause
	}
	if p.metrics != nil {
		p.metrics.RecordOrderTerminal(ctx, string(domain.StatusFailed))
	}

	p.emit(ctx, order, cause.Error(), nil)
	p.hub.CloseOrderSubscriptions(job.OrderID, "order reached a terminal state")

	return cause
}

// emit persists the order's latest snapshot to the cache, appends a
// transition event to the update log, and broadcasts it to live
// subscribers, in that order: the Store write has already committed by
// the time emit runs, so subscribers never observe a status ahead of the
// Store (per the Store-before-broadcast ordering guarantee).
func (p *Processor) emit(ctx context.Context, order domain.Order, message string, data map[string]interface{}) {
	if err := p.cache.Put(ctx, order); err != nil {
		p.logger.Warn(ctx, "failed to refresh cache entry", map[string]interface{}{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}

	event := domain.TransitionEvent{
		OrderID: order.ID,
		Status:  order.Status,
		Message: message,
		At:      order.UpdatedAt,
		Data:    data,
	}
	if err := p.cache.AppendEvent(ctx, event); err != nil {
		p.logger.Warn(ctx, "failed to append transition log entry", map[string]interface{}{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}

	p.hub.Broadcast(hub.Event{
		Type:    hub.EventStatus,
		OrderID: order.ID,
		Status:  order.Status,
		Message: message,
		Data:    data,
		At:      order.UpdatedAt,
	})
}
