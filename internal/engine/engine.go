// Package engine is the composition root: it wires the Asset Normalizer,
// Router, Order Store, Hot Cache, Queue, Order Processor, and Subscription
// Hub into one running order execution engine. Grounded on the teacher's
// internal/web3/solana/service.go Service, which plays the same role for
// the Solana integration: hold every dependency as an explicit field, no
// package-level singletons.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solswap/execution-engine/internal/cache"
	"github.com/solswap/execution-engine/internal/config"
	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/internal/hub"
	"github.com/solswap/execution-engine/internal/normalizer"
	"github.com/solswap/execution-engine/internal/orders"
	"github.com/solswap/execution-engine/internal/processor"
	"github.com/solswap/execution-engine/internal/queue"
	"github.com/solswap/execution-engine/internal/router"
	"github.com/solswap/execution-engine/internal/venue"
	"github.com/solswap/execution-engine/pkg/database"
	"github.com/solswap/execution-engine/pkg/observability"
)

// Engine is the running order execution system.
type Engine struct {
	Store  *orders.Store
	Cache  *cache.Cache
	Router *router.Router
	Hub    *hub.Hub
	Queue  *queue.Queue

	logger  *observability.Logger
	metrics *observability.MetricsProvider
}

// New builds an Engine from cfg and previously-opened connections. The
// Queue is constructed but not started; call Start to launch workers.
func New(ctx context.Context, cfg *config.Config, db *database.DB, redis *database.RedisClient, logger *observability.Logger, metrics *observability.MetricsProvider) (*Engine, error) {
	store, err := orders.New(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to build order store: %w", err)
	}

	hotCache := cache.New(redis)

	r := router.New()
	r.Register(venue.NewRaydium(
		decimal.NewFromFloat(cfg.Venue.FeeRates["raydium"]),
		cfg.Venue.ExecutionDelayMin,
		cfg.Venue.ExecutionDelayMax,
	))
	r.Register(venue.NewMeteora(
		decimal.NewFromFloat(cfg.Venue.FeeRates["meteora"]),
		cfg.Venue.ExecutionDelayMin,
		cfg.Venue.ExecutionDelayMax,
	))

	h := hub.New()

	e := &Engine{
		Store:   store,
		Cache:   hotCache,
		Router:  r,
		Hub:     h,
		logger:  logger,
		metrics: metrics,
	}

	proc := processor.New(processor.Config{
		Store:       store,
		Router:      r,
		Hub:         h,
		Cache:       hotCache,
		Logger:      logger,
		Metrics:     metrics,
		MaxAttempts: cfg.Queue.MaxAttempts,
	})

	e.Queue = queue.New(queue.Config{
		Concurrency:   cfg.Queue.Concurrency,
		RatePerMinute: cfg.Queue.RateLimit,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		BaseDelay:     cfg.Queue.BaseBackoff,
		MaxDelay:      cfg.Queue.MaxBackoff,
	}, logger, proc.Process)

	return e, nil
}

// Start launches the worker pool.
func (e *Engine) Start(ctx context.Context) {
	e.Queue.Start(ctx)
}

// Stop performs the shutdown sequence in §5's order: stop accepting new
// dequeues, let in-flight workers finish their current attempt, close
// every subscription, then leave Store/Cache closing to the caller.
func (e *Engine) Stop(ctx context.Context) {
	e.Queue.Stop()
	e.Hub.CloseAll()
}

// SubmitRequest is the validated, normalized input to Submit.
type SubmitRequest struct {
	TokenIn  string
	TokenOut string
	AmountIn decimal.Decimal
	Slippage decimal.Decimal
	Type     domain.OrderType
}

const (
	minAmountIn = "0"
	maxAmountIn = "1000000"
	minSlippage = "0.0001"
	maxSlippage = "0.5"
)

// Submit validates and normalizes req, persists a new Pending order, and
// enqueues it for processing. It returns as soon as the order row is
// persisted and the job is on the in-memory queue; the order's observable
// status remains Pending until a worker leases the job.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (domain.Order, error) {
	tokenIn, err := normalizer.ParseAddress(req.TokenIn)
	if err != nil {
		return domain.Order{}, fmt.Errorf("invalid tokenIn: %w", err)
	}
	tokenOut, err := normalizer.ParseAddress(req.TokenOut)
	if err != nil {
		return domain.Order{}, fmt.Errorf("invalid tokenOut: %w", err)
	}

	if err := normalizer.ValidatePair(tokenIn, tokenOut); err != nil {
		return domain.Order{}, err
	}

	if err := validateAmount(req.AmountIn); err != nil {
		return domain.Order{}, err
	}

	slippage := req.Slippage
	if slippage.IsZero() {
		slippage = decimal.NewFromFloat(0.01)
	}
	if err := validateSlippage(slippage); err != nil {
		return domain.Order{}, err
	}

	orderType := req.Type
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}

	id := newOrderID()
	order, err := e.Store.Create(ctx, id, orders.Draft{
		Type:     orderType,
		TokenIn:  normalizer.Normalize(tokenIn),
		TokenOut: normalizer.Normalize(tokenOut),
		AmountIn: req.AmountIn,
		Slippage: slippage,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	if err := e.Cache.Put(ctx, order); err != nil {
		e.logger.Warn(ctx, "failed to seed cache on submit", map[string]interface{}{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}

	if e.metrics != nil {
		e.metrics.RecordOrderSubmitted(ctx)
	}

	if err := e.Queue.Enqueue(queue.Job{OrderID: order.ID, EnqueuedAt: time.Now().UTC()}); err != nil {
		return domain.Order{}, fmt.Errorf("failed to enqueue order: %w", err)
	}

	return order, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amountIn must be positive", engineerr.ErrValidation)
	}
	max, _ := decimal.NewFromString(maxAmountIn)
	if amount.GreaterThan(max) {
		return fmt.Errorf("%w: amountIn exceeds maximum of %s", engineerr.ErrValidation, maxAmountIn)
	}
	if amount.Exponent() < -8 {
		return fmt.Errorf("%w: amountIn supports at most 8 fractional digits", engineerr.ErrValidation)
	}
	return nil
}

func newOrderID() string {
	return uuid.NewString()
}

func validateSlippage(slippage decimal.Decimal) error {
	min, _ := decimal.NewFromString(minSlippage)
	max, _ := decimal.NewFromString(maxSlippage)
	if slippage.LessThan(min) || slippage.GreaterThan(max) {
		return fmt.Errorf("%w: slippage must be in [%s, %s]", engineerr.ErrValidation, minSlippage, maxSlippage)
	}
	return nil
}
