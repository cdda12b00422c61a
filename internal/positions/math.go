package positions

import (
	"invest-platform/internal/types"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// MergeBuy folds an executed buy into the position. amount is the gross
// notional (quantity * price), fees are charged on the balance only and never
// enter the cost basis. Cost price is re-derived from the totals so
// totalCost == quantity * costPrice holds after every merge.
func MergeBuy(p Position, qty, price, amount decimal.Decimal) Position {
	p.TotalCost = p.TotalCost.Add(amount)
	p.Quantity = p.Quantity.Add(qty)
	p.CostPrice = p.TotalCost.Div(p.Quantity)
	p.CurrentPrice = price
	return Revalue(p, price)
}

// ReduceSell removes sold quantity. The remaining cost basis is re-derived as
// quantity * costPrice; selling everything zeroes the basis and closes the
// position.
func ReduceSell(p Position, qty, price decimal.Decimal) Position {
	p.Quantity = p.Quantity.Sub(qty)
	if p.Quantity.IsZero() {
		p.TotalCost = decimal.Zero
		p.Status = types.PositionStatusClosed
	} else {
		// partial exits keep the position open so the next buy merges into it
		p.TotalCost = p.Quantity.Mul(p.CostPrice)
	}
	p.CurrentPrice = price
	return Revalue(p, price)
}

// Revalue recomputes floating profit against the given price. ProfitPercent
// is on the 0-100 scale: profit/totalCost*100.
func Revalue(p Position, price decimal.Decimal) Position {
	p.CurrentPrice = price
	p.Profit = p.Quantity.Mul(price).Sub(p.TotalCost)
	if p.TotalCost.IsPositive() {
		p.ProfitPercent = p.Profit.Div(p.TotalCost).Mul(hundred)
	} else {
		p.ProfitPercent = decimal.Zero
	}
	return p
}

// StopPrices derives absolute trigger prices from the cost price and the
// product's stop rates. A non-positive rate disables that side.
func StopPrices(costPrice, stopProfit, stopLoss decimal.Decimal) (profitAt, lossAt decimal.Decimal) {
	if stopProfit.IsPositive() {
		profitAt = costPrice.Mul(one.Add(stopProfit))
	}
	if stopLoss.IsPositive() {
		lossAt = costPrice.Mul(one.Sub(stopLoss))
	}
	return profitAt, lossAt
}

// EvaluateStop decides whether a position must be force-closed at the given
// price. Stop-profit is checked first; when both sides would trigger the
// close is tagged stop_profit.
func EvaluateStop(costPrice, price, stopProfit, stopLoss decimal.Decimal) types.CloseReason {
	if !costPrice.IsPositive() {
		return types.CloseReasonNone
	}
	profitAt, lossAt := StopPrices(costPrice, stopProfit, stopLoss)
	if stopProfit.IsPositive() && price.GreaterThanOrEqual(profitAt) {
		return types.CloseReasonStopProfit
	}
	if stopLoss.IsPositive() && price.LessThanOrEqual(lossAt) {
		return types.CloseReasonStopLoss
	}
	return types.CloseReasonNone
}
