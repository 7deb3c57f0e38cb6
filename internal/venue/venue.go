// Package venue implements the Venue Driver (C2) interface and reference
// drivers. Grounded on the teacher's internal/web3/solana/raydium_client.go
// constant-product AMM simulation (calculateSwapOutput), generalized into a
// pluggable interface the Router (C3) can fan a quote request out across.
package venue

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/solswap/execution-engine/internal/domain"
)

// Pair identifies a token pair a venue quotes against, using normalized
// (post-Normalizer) addresses.
type Pair struct {
	TokenIn  solana.PublicKey
	TokenOut solana.PublicKey
}

// SwapRequest is the input to a venue driver's Swap call.
type SwapRequest struct {
	OrderID            string
	Pair               Pair
	AmountIn           decimal.Decimal
	ExpectedUnitPrice  decimal.Decimal
	SlippageMax        decimal.Decimal
}

// Driver is implemented by every venue the engine can route to. Quote must
// be safe to call concurrently from multiple orders; Swap additionally
// must be safe to call concurrently with Quote.
type Driver interface {
	// Name is the venue's identifier, used in routing decisions and as a
	// metric/log label.
	Name() string

	// Quote returns a price estimate for swapping amountIn of pair.TokenIn
	// into pair.TokenOut. Returns an error wrapping engineerr.ErrVenueTemporary
	// or engineerr.ErrVenuePermanent on failure.
	Quote(ctx context.Context, pair Pair, amountIn decimal.Decimal) (domain.Quote, error)

	// Swap executes the swap. Returns an error wrapping
	// engineerr.ErrVenueTemporary or engineerr.ErrVenuePermanent on failure.
	Swap(ctx context.Context, req SwapRequest) (domain.SwapResult, error)
}
