package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/internal/venue"
)

// fakeDriver is a deterministic stand-in for a venue.Driver used to test
// ranking logic independent of the real AMM simulation.
type fakeDriver struct {
	name        string
	amountOut   decimal.Decimal
	feeRate     decimal.Decimal
	priceImpact decimal.Decimal
	quoteErr    error
}

func (f fakeDriver) Name() string { return f.name }

func (f fakeDriver) Quote(ctx context.Context, pair venue.Pair, amountIn decimal.Decimal) (domain.Quote, error) {
	if f.quoteErr != nil {
		return domain.Quote{}, f.quoteErr
	}
	return domain.Quote{
		Venue:       f.name,
		AmountIn:    amountIn,
		AmountOut:   f.amountOut,
		FeeRate:     f.feeRate,
		PriceImpact: f.priceImpact,
		At:          time.Now(),
	}, nil
}

func (f fakeDriver) Swap(ctx context.Context, req venue.SwapRequest) (domain.SwapResult, error) {
	return domain.SwapResult{OK: true, TxRef: f.name + "-tx"}, nil
}

func TestRoute_PicksHighestEffectiveOutput(t *testing.T) {
	r := New()
	r.Register(fakeDriver{name: "low", amountOut: decimal.NewFromInt(100), priceImpact: decimal.Zero})
	r.Register(fakeDriver{name: "high", amountOut: decimal.NewFromInt(110), priceImpact: decimal.Zero})

	best, decision, err := r.Route(context.Background(), "order-1", venue.Pair{}, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "high", best.Venue)
	assert.Equal(t, "high", decision.Selected.Venue)
	assert.Len(t, decision.Quotes, 2)
	assert.Contains(t, decision.Rationale, "high")
}

func TestRoute_TieBreaksOnLowerFeeRate(t *testing.T) {
	r := New()
	r.Register(fakeDriver{name: "a", amountOut: decimal.NewFromInt(100), feeRate: decimal.NewFromFloat(0.003)})
	r.Register(fakeDriver{name: "b", amountOut: decimal.NewFromInt(100), feeRate: decimal.NewFromFloat(0.001)})

	best, _, err := r.Route(context.Background(), "order-1", venue.Pair{}, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "b", best.Venue)
}

func TestRoute_TieBreaksOnRegistrationOrder(t *testing.T) {
	r := New()
	r.Register(fakeDriver{name: "first", amountOut: decimal.NewFromInt(100)})
	r.Register(fakeDriver{name: "second", amountOut: decimal.NewFromInt(100)})

	best, _, err := r.Route(context.Background(), "order-1", venue.Pair{}, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "first", best.Venue)
}

func TestRoute_IsDeterministic(t *testing.T) {
	r := New()
	r.Register(fakeDriver{name: "a", amountOut: decimal.NewFromInt(100)})
	r.Register(fakeDriver{name: "b", amountOut: decimal.NewFromInt(105)})
	r.Register(fakeDriver{name: "c", amountOut: decimal.NewFromInt(103)})

	for i := 0; i < 20; i++ {
		best, _, err := r.Route(context.Background(), "order-1", venue.Pair{}, decimal.NewFromInt(1))
		require.NoError(t, err)
		assert.Equal(t, "b", best.Venue)
	}
}

func TestRoute_SkipsFailedVenuesAndUsesSurvivors(t *testing.T) {
	r := New()
	r.Register(fakeDriver{name: "broken", quoteErr: errors.New("boom")})
	r.Register(fakeDriver{name: "ok", amountOut: decimal.NewFromInt(50)})

	best, decision, err := r.Route(context.Background(), "order-1", venue.Pair{}, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "ok", best.Venue)
	assert.Len(t, decision.Quotes, 1)
}

func TestRoute_NoQuotesWhenEveryVenueFails(t *testing.T) {
	r := New()
	r.Register(fakeDriver{name: "a", quoteErr: errors.New("boom")})
	r.Register(fakeDriver{name: "b", quoteErr: errors.New("boom")})

	_, _, err := r.Route(context.Background(), "order-1", venue.Pair{}, decimal.NewFromInt(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineerr.ErrNoQuotes))
}

func TestRoute_NoDriversRegistered(t *testing.T) {
	r := New()
	_, _, err := r.Route(context.Background(), "order-1", venue.Pair{}, decimal.NewFromInt(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineerr.ErrNoQuotes))
}
