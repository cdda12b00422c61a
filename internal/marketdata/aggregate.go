package marketdata

import (
	"time"

	"invest-platform/internal/types"

	"github.com/shopspring/decimal"
)

// PeriodStart truncates t to the start of its candle period. Weeks start on
// Monday.
func PeriodStart(period types.KLinePeriod, t time.Time) time.Time {
	switch period {
	case types.KLinePeriodWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return day.AddDate(0, 0, -(weekday - 1))
	case types.KLinePeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case types.KLinePeriodYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
}

// AggregatePeriod folds day candles at or after start into one candle keyed
// by start. days must be in ascending ts order. Returns false when no day
// candle falls inside the period.
func AggregatePeriod(days []Candle, period types.KLinePeriod, start time.Time) (Candle, bool) {
	var out Candle
	found := false
	for _, d := range days {
		if d.TS.Before(start) {
			continue
		}
		if !found {
			out = Candle{
				ProductID: d.ProductID,
				Period:    period,
				TS:        start,
				Open:      d.Open,
				High:      d.High,
				Low:       d.Low,
				Close:     d.Close,
				PrevClose: d.PrevClose,
				Volume:    d.Volume,
				Amount:    d.Amount,
			}
			found = true
			continue
		}
		if d.High.GreaterThan(out.High) {
			out.High = d.High
		}
		if d.Low.LessThan(out.Low) {
			out.Low = d.Low
		}
		out.Close = d.Close
		out.Volume = out.Volume.Add(d.Volume)
		out.Amount = out.Amount.Add(d.Amount)
	}
	if !found {
		return Candle{}, false
	}
	out.Change = out.Close.Sub(out.PrevClose)
	if out.PrevClose.IsPositive() {
		out.ChangePercent = out.Change.Div(out.PrevClose)
	} else {
		out.ChangePercent = decimal.Zero
	}
	return out, true
}

// PeriodChange computes the relative change of the latest day close against
// the close lookback days back. With fewer candles than the lookback the
// reference falls back to the earliest candle's open. days must be in
// ascending ts order.
func PeriodChange(days []Candle, lookback int) decimal.Decimal {
	if len(days) == 0 {
		return decimal.Zero
	}
	latest := days[len(days)-1].Close
	var ref decimal.Decimal
	if len(days) > lookback {
		ref = days[len(days)-lookback-1].Close
	} else {
		ref = days[0].Open
	}
	if !ref.IsPositive() {
		return decimal.Zero
	}
	return latest.Sub(ref).Div(ref)
}
