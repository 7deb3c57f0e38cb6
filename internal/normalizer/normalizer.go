// Package normalizer implements the Asset Normalizer (C1): pure functions
// that canonicalize token addresses and reject nonsensical pairs before an
// order ever reaches the Router or a venue driver. Grounded on the
// teacher's handling of solana.SolMint as the native-SOL sentinel in
// internal/web3/solana/raydium_client.go.
package normalizer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/solswap/execution-engine/internal/engineerr"
)

// wrappedSOL is the SPL mint address for wrapped native SOL. Venue drivers
// only ever see wrapped addresses; the native sentinel never reaches them.
var wrappedSOL = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// ParseAddress parses a base58 token address, rejecting malformed input
// before it ever reaches normalization or the Router.
func ParseAddress(s string) (solana.PublicKey, error) {
	addr, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", engineerr.ErrValidation, err)
	}
	return addr, nil
}

// Normalize maps the native-SOL sentinel to its wrapped SPL mint and leaves
// every other address unchanged. It never fails: malformed base58 strings
// are rejected earlier, at request parsing.
func Normalize(addr solana.PublicKey) solana.PublicKey {
	if addr.Equals(solana.SolMint) {
		return wrappedSOL
	}
	return addr
}

// ValidatePair rejects a pair that normalizes to the same asset on both
// sides (e.g. native SOL against wrapped SOL, or an address against itself).
func ValidatePair(tokenIn, tokenOut solana.PublicKey) error {
	if Normalize(tokenIn).Equals(Normalize(tokenOut)) {
		return fmt.Errorf("%w: tokenIn and tokenOut normalize to the same asset", engineerr.ErrValidation)
	}
	return nil
}

// WrapPlan describes the wrap/unwrap bookkeeping a swap touching native SOL
// requires, derived once at Routing time and carried through Submitted.
type WrapPlan struct {
	NeedsWrapIn    bool
	NeedsUnwrapOut bool
	WrapAmount     decimal.Decimal
	NormalizedIn   solana.PublicKey
	NormalizedOut  solana.PublicKey
}

// WrapInstructions computes the wrap plan for a pair and amount. The
// original (un-normalized) addresses stay on the Order; only the
// normalized ones are handed to the Router and venue drivers.
func WrapInstructions(tokenIn, tokenOut solana.PublicKey, amountIn decimal.Decimal) WrapPlan {
	plan := WrapPlan{
		NormalizedIn:  Normalize(tokenIn),
		NormalizedOut: Normalize(tokenOut),
	}

	if tokenIn.Equals(solana.SolMint) {
		plan.NeedsWrapIn = true
		plan.WrapAmount = amountIn
	}
	if tokenOut.Equals(solana.SolMint) {
		plan.NeedsUnwrapOut = true
	}

	return plan
}
