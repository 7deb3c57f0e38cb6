package venue

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// pool models a constant-product (x*y=k) liquidity pool, the same
// simulation shape as the teacher's RaydiumPool/calculateSwapOutput.
type pool struct {
	baseMint     solana.PublicKey
	quoteMint    solana.PublicKey
	baseReserve  decimal.Decimal
	quoteReserve decimal.Decimal
	feeRate      decimal.Decimal
}

// matches reports whether this pool quotes the given pair, in either
// direction.
func (p pool) matches(pair Pair) bool {
	return (p.baseMint.Equals(pair.TokenIn) && p.quoteMint.Equals(pair.TokenOut)) ||
		(p.quoteMint.Equals(pair.TokenIn) && p.baseMint.Equals(pair.TokenOut))
}

// swapOutput runs the constant-product formula for amountIn of pair.TokenIn,
// returning (outputAmount, unitPrice, priceImpactPct). priceImpact grows
// monotonically with amountIn relative to the input-side reserve, per
// spec.md §4.2.
func (p pool) swapOutput(pair Pair, amountIn decimal.Decimal) (outputAmount, unitPrice, priceImpact decimal.Decimal) {
	var inputReserve, outputReserve decimal.Decimal
	if p.baseMint.Equals(pair.TokenIn) {
		inputReserve, outputReserve = p.baseReserve, p.quoteReserve
	} else {
		inputReserve, outputReserve = p.quoteReserve, p.baseReserve
	}

	fee := amountIn.Mul(p.feeRate)
	amountAfterFee := amountIn.Sub(fee)

	// Δy = (y * Δx) / (x + Δx)
	denominator := inputReserve.Add(amountAfterFee)
	outputAmount = outputReserve.Mul(amountAfterFee).Div(denominator)

	if amountIn.IsPositive() {
		unitPrice = outputAmount.Div(amountIn)
	}

	priceImpact = amountAfterFee.Div(denominator).Mul(decimal.NewFromInt(100))

	return outputAmount, unitPrice, priceImpact
}
