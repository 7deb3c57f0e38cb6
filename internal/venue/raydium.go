package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/google/uuid"

	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engineerr"
)

// Raydium is a reference venue driver simulating a Raydium-style
// constant-product AMM, grounded on the teacher's RaydiumClient.
type Raydium struct {
	pools    []pool
	feeRate  decimal.Decimal
	delayMin time.Duration
	delayMax time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRaydium builds a Raydium driver seeded with the well-known SOL/USDC
// pool the teacher's RaydiumClient hard-codes for its mock quoting path.
func NewRaydium(feeRate decimal.Decimal, delayMin, delayMax time.Duration) *Raydium {
	wrappedSOL := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdc := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	return &Raydium{
		pools: []pool{
			{
				baseMint:     wrappedSOL,
				quoteMint:    usdc,
				baseReserve:  decimal.NewFromInt(100000),
				quoteReserve: decimal.NewFromInt(2000000),
				feeRate:      feeRate,
			},
		},
		feeRate:  feeRate,
		delayMin: delayMin,
		delayMax: delayMax,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// Name returns the driver's venue identifier.
func (r *Raydium) Name() string { return "raydium" }

func (r *Raydium) findPool(pair Pair) (pool, error) {
	for _, p := range r.pools {
		if p.matches(pair) {
			return p, nil
		}
	}
	return pool{}, fmt.Errorf("%w: raydium has no pool for pair", engineerr.ErrVenuePermanent)
}

// Quote returns a price estimate for the pair using the constant-product
// formula against Raydium's simulated pool reserves.
func (r *Raydium) Quote(ctx context.Context, pair Pair, amountIn decimal.Decimal) (domain.Quote, error) {
	p, err := r.findPool(pair)
	if err != nil {
		return domain.Quote{}, err
	}

	outputAmount, unitPrice, priceImpact := p.swapOutput(pair, amountIn)

	return domain.Quote{
		Venue:       r.Name(),
		TokenIn:     pair.TokenIn,
		TokenOut:    pair.TokenOut,
		AmountIn:    amountIn,
		AmountOut:   outputAmount,
		UnitPrice:   unitPrice,
		FeeRate:     r.feeRate,
		PriceImpact: priceImpact,
		At:          time.Now().UTC(),
	}, nil
}

// Swap executes the swap against the same pool the Quote used. Since this
// is a simulation with no live chain, reserves are not mutated between
// Quote and Swap within one order, so the executed price matches the
// quoted unit price exactly.
func (r *Raydium) Swap(ctx context.Context, req SwapRequest) (domain.SwapResult, error) {
	p, err := r.findPool(req.Pair)
	if err != nil {
		return domain.SwapResult{}, err
	}

	r.simulateLatency()

	select {
	case <-ctx.Done():
		return domain.SwapResult{}, fmt.Errorf("%w: %v", engineerr.ErrVenueTemporary, ctx.Err())
	default:
	}

	outputAmount, unitPrice, _ := p.swapOutput(req.Pair, req.AmountIn)

	return domain.SwapResult{
		OK:               true,
		TxRef:            "raydium_" + uuid.NewString(),
		ExecutedPrice:    unitPrice,
		AmountOut:        outputAmount,
		RealizedSlippage: decimal.Zero,
		At:               time.Now().UTC(),
	}, nil
}

func (r *Raydium) simulateLatency() {
	if r.delayMax <= r.delayMin {
		time.Sleep(r.delayMin)
		return
	}
	spread := r.delayMax - r.delayMin

	r.rngMu.Lock()
	jitter := time.Duration(r.rng.Int63n(int64(spread)))
	r.rngMu.Unlock()

	time.Sleep(r.delayMin + jitter)
}
