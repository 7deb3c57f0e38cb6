package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solswap/execution-engine/internal/engineerr"
)

func TestValidateAmount(t *testing.T) {
	require.NoError(t, validateAmount(decimal.NewFromFloat(1.5)))

	err := validateAmount(decimal.Zero)
	require.ErrorIs(t, err, engineerr.ErrValidation)

	err = validateAmount(decimal.NewFromFloat(-1))
	require.ErrorIs(t, err, engineerr.ErrValidation)

	max, _ := decimal.NewFromString(maxAmountIn)
	err = validateAmount(max.Add(decimal.NewFromInt(1)))
	require.ErrorIs(t, err, engineerr.ErrValidation)

	tooPrecise, _ := decimal.NewFromString("1.123456789")
	err = validateAmount(tooPrecise)
	require.ErrorIs(t, err, engineerr.ErrValidation)
}

func TestValidateSlippage(t *testing.T) {
	require.NoError(t, validateSlippage(decimal.NewFromFloat(0.01)))

	min, _ := decimal.NewFromString(minSlippage)
	require.NoError(t, validateSlippage(min))

	max, _ := decimal.NewFromString(maxSlippage)
	require.NoError(t, validateSlippage(max))

	err := validateSlippage(decimal.NewFromFloat(0.0))
	require.ErrorIs(t, err, engineerr.ErrValidation)

	err = validateSlippage(decimal.NewFromFloat(0.9))
	require.ErrorIs(t, err, engineerr.ErrValidation)
}

func TestNewOrderIDIsUnique(t *testing.T) {
	first := newOrderID()
	second := newOrderID()
	assert.NotEqual(t, first, second)
	assert.NotEmpty(t, first)
}
