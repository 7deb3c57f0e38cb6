package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solswap/execution-engine/internal/config"
	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/internal/hub"
	"github.com/solswap/execution-engine/internal/queue"
	"github.com/solswap/execution-engine/internal/venue"
	"github.com/solswap/execution-engine/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{ServiceName: "test", LogLevel: "error", LogFormat: "json"})
}

var (
	wrappedSOL = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdc       = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

// fakeStore is an in-memory stand-in for *orders.Store.
type fakeStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newFakeStore(seed domain.Order) *fakeStore {
	return &fakeStore{orders: map[string]domain.Order{seed.ID: seed}}
}

func (f *fakeStore) Find(ctx context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, engineerr.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) Transition(ctx context.Context, id string, newStatus domain.OrderStatus, patch func(*domain.Order)) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, engineerr.ErrNotFound
	}
	if o.Status.IsTerminal() || !domain.CanTransition(o.Status, newStatus) {
		return domain.Order{}, engineerr.ErrIllegalTransition
	}
	o.Status = newStatus
	if patch != nil {
		patch(&o)
	}
	o.UpdatedAt = time.Now().UTC()
	if newStatus.IsTerminal() {
		t := o.UpdatedAt
		o.CompletedAt = &t
	}
	f.orders[id] = o
	return o, nil
}

func (f *fakeStore) RecordExecution(ctx context.Context, id, venueName, txRef string, executedPrice, amountOut decimal.Decimal) (domain.Order, error) {
	return f.Transition(ctx, id, domain.StatusConfirmed, func(o *domain.Order) {
		o.Venue = venueName
		o.TxRef = txRef
		o.ExecutedPrice = executedPrice
		o.AmountOut = amountOut
	})
}

func (f *fakeStore) IncrementRetry(ctx context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, engineerr.ErrNotFound
	}
	o.RetryCount++
	f.orders[id] = o
	return o, nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id, errorMessage string) (domain.Order, error) {
	return f.Transition(ctx, id, domain.StatusFailed, func(o *domain.Order) {
		o.ErrorMessage = errorMessage
	})
}

func (f *fakeStore) status(id string) domain.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].Status
}

func (f *fakeStore) retryCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].RetryCount
}

// fakeRouter lets a test control the routing decision or force a
// no-quotes error.
type fakeRouter struct {
	decision domain.RoutingDecision
	quote    domain.Quote
	err      error
	drivers  map[string]venue.Driver
}

func (r *fakeRouter) Route(ctx context.Context, orderID string, pair venue.Pair, amountIn decimal.Decimal) (domain.Quote, domain.RoutingDecision, error) {
	if r.err != nil {
		return domain.Quote{}, domain.RoutingDecision{}, r.err
	}
	return r.quote, r.decision, nil
}

func (r *fakeRouter) DriverByName(name string) (venue.Driver, bool) {
	d, ok := r.drivers[name]
	return d, ok
}

// fakeDriver swaps deterministically at a configured executed price.
type fakeDriver struct {
	name          string
	executedPrice decimal.Decimal
	amountOut     decimal.Decimal
	swapErr       error
}

func (d fakeDriver) Name() string { return d.name }

func (d fakeDriver) Quote(ctx context.Context, pair venue.Pair, amountIn decimal.Decimal) (domain.Quote, error) {
	return domain.Quote{Venue: d.name}, nil
}

func (d fakeDriver) Swap(ctx context.Context, req venue.SwapRequest) (domain.SwapResult, error) {
	if d.swapErr != nil {
		return domain.SwapResult{}, d.swapErr
	}
	return domain.SwapResult{OK: true, TxRef: d.name + "-tx", ExecutedPrice: d.executedPrice, AmountOut: d.amountOut}, nil
}

// fakeHub records broadcasts and closures without any channel machinery.
type fakeHub struct {
	mu         sync.Mutex
	broadcasts []hub.Event
	closed     []string
}

func (h *fakeHub) Broadcast(event hub.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasts = append(h.broadcasts, event)
}

func (h *fakeHub) CloseOrderSubscriptions(orderID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, orderID)
}

// fakeCache is a no-op Cache that never errors, so tests can focus on the
// state machine.
type fakeCache struct{}

func (fakeCache) Put(ctx context.Context, order domain.Order) error                { return nil }
func (fakeCache) AppendEvent(ctx context.Context, event domain.TransitionEvent) error { return nil }

func newTestOrder(id string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:        id,
		Type:      domain.OrderTypeMarket,
		Status:    domain.StatusPending,
		TokenIn:   wrappedSOL,
		TokenOut:  usdc,
		AmountIn:  decimal.NewFromFloat(1.5),
		Slippage:  decimal.NewFromFloat(0.01),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestProcess_HappyPathReachesConfirmedAndClosesSubscriptions(t *testing.T) {
	id := uuid.NewString()
	order := newTestOrder(id)
	store := newFakeStore(order)

	unitPrice := decimal.NewFromFloat(100)
	driver := fakeDriver{name: "raydium", executedPrice: unitPrice, amountOut: decimal.NewFromFloat(150)}
	r := &fakeRouter{
		quote:    domain.Quote{Venue: "raydium", UnitPrice: unitPrice},
		decision: domain.RoutingDecision{Selected: domain.Quote{Venue: "raydium", UnitPrice: unitPrice}},
		drivers:  map[string]venue.Driver{"raydium": driver},
	}
	h := &fakeHub{}

	p := New(Config{Store: store, Router: r, Hub: h, Cache: fakeCache{}, Logger: testLogger(), MaxAttempts: 3})

	err := p.Process(context.Background(), queue.Job{OrderID: id, Attempt: 0})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, store.status(id))
	assert.Contains(t, h.closed, id)
	assert.NotEmpty(t, h.broadcasts)
}

func TestProcess_SlippageExceededRetriesWhenAttemptsRemain(t *testing.T) {
	id := uuid.NewString()
	order := newTestOrder(id)
	store := newFakeStore(order)

	// Executed price deviates by 50%, well past the 1% slippage bound.
	unitPrice := decimal.NewFromFloat(100)
	driver := fakeDriver{name: "raydium", executedPrice: decimal.NewFromFloat(150), amountOut: decimal.NewFromFloat(150)}
	r := &fakeRouter{
		decision: domain.RoutingDecision{Selected: domain.Quote{Venue: "raydium", UnitPrice: unitPrice}},
		drivers:  map[string]venue.Driver{"raydium": driver},
	}
	h := &fakeHub{}

	p := New(Config{Store: store, Router: r, Hub: h, Cache: fakeCache{}, Logger: testLogger(), MaxAttempts: 3})

	err := p.Process(context.Background(), queue.Job{OrderID: id, Attempt: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineerr.ErrSlippageExceeded))

	assert.Equal(t, domain.StatusSubmitted, store.status(id))
	assert.Equal(t, 1, store.retryCount(id))
	assert.Empty(t, h.closed, "order should still be live, not terminal")
}

func TestProcess_SlippageExceededOnLastAttemptMarksFailed(t *testing.T) {
	id := uuid.NewString()
	order := newTestOrder(id)
	store := newFakeStore(order)

	unitPrice := decimal.NewFromFloat(100)
	driver := fakeDriver{name: "raydium", executedPrice: decimal.NewFromFloat(150), amountOut: decimal.NewFromFloat(150)}
	r := &fakeRouter{
		decision: domain.RoutingDecision{Selected: domain.Quote{Venue: "raydium", UnitPrice: unitPrice}},
		drivers:  map[string]venue.Driver{"raydium": driver},
	}
	h := &fakeHub{}

	p := New(Config{Store: store, Router: r, Hub: h, Cache: fakeCache{}, Logger: testLogger(), MaxAttempts: 3})

	err := p.Process(context.Background(), queue.Job{OrderID: id, Attempt: 2})
	require.Error(t, err)

	assert.Equal(t, domain.StatusFailed, store.status(id))
	assert.Contains(t, h.closed, id)
}

func TestProcess_VenuePermanentShortCircuitsRegardlessOfAttemptsRemaining(t *testing.T) {
	id := uuid.NewString()
	order := newTestOrder(id)
	store := newFakeStore(order)

	r := &fakeRouter{err: engineerr.ErrVenuePermanent}
	h := &fakeHub{}

	p := New(Config{Store: store, Router: r, Hub: h, Cache: fakeCache{}, Logger: testLogger(), MaxAttempts: 3})

	err := p.Process(context.Background(), queue.Job{OrderID: id, Attempt: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineerr.ErrVenuePermanent))
	assert.Equal(t, domain.StatusFailed, store.status(id))
}

func TestProcess_SkipsNonIdentityOrderIDWithoutMutatingState(t *testing.T) {
	store := newFakeStore(newTestOrder(uuid.NewString()))
	r := &fakeRouter{}
	h := &fakeHub{}

	p := New(Config{Store: store, Router: r, Hub: h, Cache: fakeCache{}, Logger: testLogger(), MaxAttempts: 3})

	err := p.Process(context.Background(), queue.Job{OrderID: "not-a-uuid", Attempt: 0})
	require.NoError(t, err)
	assert.Empty(t, h.broadcasts)
	assert.Empty(t, h.closed)
}

func TestWithinSlippage(t *testing.T) {
	assert.True(t, withinSlippage(decimal.NewFromFloat(100), decimal.NewFromFloat(100.5), decimal.NewFromFloat(0.01)))
	assert.False(t, withinSlippage(decimal.NewFromFloat(100), decimal.NewFromFloat(102), decimal.NewFromFloat(0.01)))
}

func TestDefaultValidator(t *testing.T) {
	assert.True(t, DefaultValidator(uuid.NewString()))
	assert.False(t, DefaultValidator("order_not-a-real-uuid"))
}
