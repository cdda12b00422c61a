package positions

import (
	"testing"

	"invest-platform/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestMergeBuyWeightedAverage(t *testing.T) {
	p := Position{Status: types.PositionStatusOpen}
	p = MergeBuy(p, d("10"), d("100"), d("1000"))
	assert.True(t, p.Quantity.Equal(d("10")))
	assert.True(t, p.CostPrice.Equal(d("100")))
	assert.True(t, p.TotalCost.Equal(d("1000")))

	// second buy at a higher price moves the average up
	p = MergeBuy(p, d("10"), d("120"), d("1200"))
	assert.True(t, p.Quantity.Equal(d("20")))
	assert.True(t, p.TotalCost.Equal(d("2200")))
	assert.True(t, p.CostPrice.Equal(d("110")))
	assert.True(t, p.TotalCost.Equal(p.Quantity.Mul(p.CostPrice)), "totalCost == quantity*costPrice")
}

func TestMergeBuyKeepsInvariantOnUnevenDivision(t *testing.T) {
	p := Position{Status: types.PositionStatusOpen}
	p = MergeBuy(p, d("3"), d("10"), d("30"))
	p = MergeBuy(p, d("4"), d("11"), d("44"))
	// 74 / 7 does not terminate; the basis stays exact, the unit price is derived
	assert.True(t, p.TotalCost.Equal(d("74")))
	assert.True(t, p.Quantity.Equal(d("7")))
	diff := p.TotalCost.Sub(p.Quantity.Mul(p.CostPrice)).Abs()
	assert.True(t, diff.LessThan(d("0.0000001")), "re-derived basis stays within precision: %s", diff)
}

func TestReduceSellPartialAndFull(t *testing.T) {
	p := Position{Status: types.PositionStatusOpen}
	p = MergeBuy(p, d("10"), d("100"), d("1000"))

	p = ReduceSell(p, d("4"), d("110"))
	assert.True(t, p.Quantity.Equal(d("6")))
	assert.True(t, p.TotalCost.Equal(d("600")), "remaining basis re-derived from cost price")
	assert.Equal(t, types.PositionStatusOpen, p.Status, "partial exit keeps the position open")

	p = ReduceSell(p, d("6"), d("110"))
	assert.True(t, p.Quantity.IsZero())
	assert.True(t, p.TotalCost.IsZero(), "full exit zeroes the basis")
	assert.Equal(t, types.PositionStatusClosed, p.Status)
}

func TestRevalue(t *testing.T) {
	p := Position{Quantity: d("10"), TotalCost: d("1000"), CostPrice: d("100")}
	p = Revalue(p, d("110"))
	assert.True(t, p.Profit.Equal(d("100")))
	assert.True(t, p.ProfitPercent.Equal(d("10")), "percent scale, not a fraction: got %s", p.ProfitPercent)

	p = Revalue(p, d("90"))
	assert.True(t, p.Profit.Equal(d("-100")))
	assert.True(t, p.ProfitPercent.Equal(d("-10")))
}

func TestStopPrices(t *testing.T) {
	profitAt, lossAt := StopPrices(d("100"), d("0.2"), d("0.1"))
	assert.True(t, profitAt.Equal(d("120")))
	assert.True(t, lossAt.Equal(d("90")))

	profitAt, lossAt = StopPrices(d("100"), decimal.Zero, decimal.Zero)
	assert.True(t, profitAt.IsZero())
	assert.True(t, lossAt.IsZero())
}

func TestEvaluateStop(t *testing.T) {
	cost := d("100")
	sp := d("0.2")
	sl := d("0.1")

	assert.Equal(t, types.CloseReasonNone, EvaluateStop(cost, d("110"), sp, sl))
	assert.Equal(t, types.CloseReasonStopProfit, EvaluateStop(cost, d("120"), sp, sl))
	assert.Equal(t, types.CloseReasonStopProfit, EvaluateStop(cost, d("150"), sp, sl))
	assert.Equal(t, types.CloseReasonStopLoss, EvaluateStop(cost, d("90"), sp, sl))
	assert.Equal(t, types.CloseReasonStopLoss, EvaluateStop(cost, d("50"), sp, sl))
}

func TestEvaluateStopProfitWinsWhenBothTrigger(t *testing.T) {
	// degenerate config where any price triggers both sides
	reason := EvaluateStop(d("100"), d("100"), d("-0.5"), d("2"))
	assert.Equal(t, types.CloseReasonNone, reason, "negative stop-profit rate disables that side")

	// both sides configured, price satisfies stop-profit exactly at the bound
	reason = EvaluateStop(d("100"), d("120"), d("0.2"), d("0.9"))
	assert.Equal(t, types.CloseReasonStopProfit, reason)
}

func TestEvaluateStopDisabledSides(t *testing.T) {
	assert.Equal(t, types.CloseReasonNone, EvaluateStop(d("100"), d("500"), decimal.Zero, decimal.Zero))
	assert.Equal(t, types.CloseReasonStopLoss, EvaluateStop(d("100"), d("80"), decimal.Zero, d("0.1")))
	assert.Equal(t, types.CloseReasonNone, EvaluateStop(decimal.Zero, d("80"), d("0.2"), d("0.1")))
}
