package normalizer

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solswap/execution-engine/internal/engineerr"
)

var usdc = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

func TestNormalize_NativeSOLMapsToWrapped(t *testing.T) {
	got := Normalize(solana.SolMint)
	assert.True(t, got.Equals(wrappedSOL))
}

func TestNormalize_OtherAddressesUnchanged(t *testing.T) {
	got := Normalize(usdc)
	assert.True(t, got.Equals(usdc))
}

func TestNormalize_IsIdempotent(t *testing.T) {
	once := Normalize(solana.SolMint)
	twice := Normalize(once)
	assert.True(t, once.Equals(twice))
}

func TestValidatePair_RejectsSameAsset(t *testing.T) {
	err := ValidatePair(usdc, usdc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineerr.ErrValidation))
}

func TestValidatePair_RejectsNativeAgainstWrappedSOL(t *testing.T) {
	err := ValidatePair(solana.SolMint, wrappedSOL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineerr.ErrValidation))
}

func TestValidatePair_AcceptsDistinctAssets(t *testing.T) {
	err := ValidatePair(solana.SolMint, usdc)
	assert.NoError(t, err)
}

func TestWrapInstructions_NativeInputNeedsWrap(t *testing.T) {
	plan := WrapInstructions(solana.SolMint, usdc, decimal.NewFromFloat(1.5))
	assert.True(t, plan.NeedsWrapIn)
	assert.False(t, plan.NeedsUnwrapOut)
	assert.True(t, plan.WrapAmount.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, plan.NormalizedIn.Equals(wrappedSOL))
	assert.True(t, plan.NormalizedOut.Equals(usdc))
}

func TestWrapInstructions_NativeOutputNeedsUnwrap(t *testing.T) {
	plan := WrapInstructions(usdc, solana.SolMint, decimal.NewFromFloat(100))
	assert.False(t, plan.NeedsWrapIn)
	assert.True(t, plan.NeedsUnwrapOut)
}

func TestWrapInstructions_NoNativeLegNoWrapping(t *testing.T) {
	plan := WrapInstructions(usdc, wrappedSOL, decimal.NewFromFloat(10))
	assert.False(t, plan.NeedsWrapIn)
	assert.False(t, plan.NeedsUnwrapOut)
}
