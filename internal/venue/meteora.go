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

// Meteora is a second reference venue driver, simulating a
// Meteora-style dynamic pool with independent reserves and fee rate so the
// Router (C3) has a genuine choice to rank between venues.
type Meteora struct {
	pools    []pool
	feeRate  decimal.Decimal
	delayMin time.Duration
	delayMax time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewMeteora builds a Meteora driver seeded with a SOL/USDC pool carrying
// deeper liquidity than Raydium's, charging the caller-supplied feeRate.
func NewMeteora(feeRate decimal.Decimal, delayMin, delayMax time.Duration) *Meteora {
	wrappedSOL := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdc := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	return &Meteora{
		pools: []pool{
			{
				baseMint:     wrappedSOL,
				quoteMint:    usdc,
				baseReserve:  decimal.NewFromInt(150000),
				quoteReserve: decimal.NewFromInt(2985000),
				feeRate:      feeRate,
			},
		},
		feeRate:  feeRate,
		delayMin: delayMin,
		delayMax: delayMax,
		rng:      rand.New(rand.NewSource(2)),
	}
}

// Name returns the driver's venue identifier.
func (m *Meteora) Name() string { return "meteora" }

func (m *Meteora) findPool(pair Pair) (pool, error) {
	for _, p := range m.pools {
		if p.matches(pair) {
			return p, nil
		}
	}
	return pool{}, fmt.Errorf("%w: meteora has no pool for pair", engineerr.ErrVenuePermanent)
}

// Quote returns a price estimate using Meteora's simulated pool reserves.
func (m *Meteora) Quote(ctx context.Context, pair Pair, amountIn decimal.Decimal) (domain.Quote, error) {
	p, err := m.findPool(pair)
	if err != nil {
		return domain.Quote{}, err
	}

	outputAmount, unitPrice, priceImpact := p.swapOutput(pair, amountIn)

	return domain.Quote{
		Venue:       m.Name(),
		TokenIn:     pair.TokenIn,
		TokenOut:    pair.TokenOut,
		AmountIn:    amountIn,
		AmountOut:   outputAmount,
		UnitPrice:   unitPrice,
		FeeRate:     m.feeRate,
		PriceImpact: priceImpact,
		At:          time.Now().UTC(),
	}, nil
}

// Swap executes the swap against the same pool state the Quote used.
func (m *Meteora) Swap(ctx context.Context, req SwapRequest) (domain.SwapResult, error) {
	p, err := m.findPool(req.Pair)
	if err != nil {
		return domain.SwapResult{}, err
	}

	m.simulateLatency()

	select {
	case <-ctx.Done():
		return domain.SwapResult{}, fmt.Errorf("%w: %v", engineerr.ErrVenueTemporary, ctx.Err())
	default:
	}

	outputAmount, unitPrice, _ := p.swapOutput(req.Pair, req.AmountIn)

	return domain.SwapResult{
		OK:               true,
		TxRef:            "meteora_" + uuid.NewString(),
		ExecutedPrice:    unitPrice,
		AmountOut:        outputAmount,
		RealizedSlippage: decimal.Zero,
		At:               time.Now().UTC(),
	}, nil
}

func (m *Meteora) simulateLatency() {
	if m.delayMax <= m.delayMin {
		time.Sleep(m.delayMin)
		return
	}
	spread := m.delayMax - m.delayMin

	m.rngMu.Lock()
	jitter := time.Duration(m.rng.Int63n(int64(spread)))
	m.rngMu.Unlock()

	time.Sleep(m.delayMin + jitter)
}
