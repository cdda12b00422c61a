package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTierAmounts(t *testing.T) {
	fee := decimal.RequireFromString("10")
	direct, indirect := TierAmounts(fee)
	assert.True(t, direct.Equal(decimal.RequireFromString("1")), "direct is 10%% of fee, got %s", direct)
	assert.True(t, indirect.Equal(decimal.RequireFromString("0.5")), "indirect is 5%% of fee, got %s", indirect)
}

func TestTierAmountsFullPrecision(t *testing.T) {
	// fee from a 0.5% rate on an odd notional
	fee := decimal.RequireFromString("0.33335")
	direct, indirect := TierAmounts(fee)
	assert.True(t, direct.Equal(decimal.RequireFromString("0.033335")))
	assert.True(t, indirect.Equal(decimal.RequireFromString("0.0166675")))
	// both tiers derive from the same base
	assert.True(t, direct.Equal(indirect.Mul(decimal.NewFromInt(2))))
}

func TestTierAmountsZeroFee(t *testing.T) {
	direct, indirect := TierAmounts(decimal.Zero)
	assert.True(t, direct.IsZero())
	assert.True(t, indirect.IsZero())
}
