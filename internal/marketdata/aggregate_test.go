package marketdata

import (
	"testing"
	"time"

	"invest-platform/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func dayCandle(ts time.Time, open, high, low, close string) Candle {
	return Candle{
		ProductID: "p1",
		Period:    types.KLinePeriodDay,
		TS:        ts,
		Open:      d(open),
		High:      d(high),
		Low:       d(low),
		Close:     d(close),
		Volume:    d("10"),
		Amount:    d("100"),
		PrevClose: d(open),
	}
}

func TestPeriodStartWeekBeginsMonday(t *testing.T) {
	// 2026-08-27 is a Thursday
	thu := time.Date(2026, 8, 27, 15, 4, 5, 0, time.UTC)
	start := PeriodStart(types.KLinePeriodWeek, thu)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Monday, start.Weekday())

	// Sunday belongs to the week that started the previous Monday
	sun := time.Date(2026, 8, 30, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, start, PeriodStart(types.KLinePeriodWeek, sun))

	// Monday maps to itself
	mon := time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, start, PeriodStart(types.KLinePeriodWeek, mon))
}

func TestPeriodStartMonthAndYear(t *testing.T) {
	ts := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), PeriodStart(types.KLinePeriodMonth, ts))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), PeriodStart(types.KLinePeriodYear, ts))
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), PeriodStart(types.KLinePeriodDay, ts))
}

func TestAggregatePeriodFoldsDayCandles(t *testing.T) {
	mon := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	days := []Candle{
		dayCandle(mon, "100", "110", "95", "105"),
		dayCandle(mon.AddDate(0, 0, 1), "105", "120", "104", "118"),
		dayCandle(mon.AddDate(0, 0, 2), "118", "119", "90", "92"),
	}
	out, ok := AggregatePeriod(days, types.KLinePeriodWeek, mon)
	require.True(t, ok)
	assert.Equal(t, types.KLinePeriodWeek, out.Period)
	assert.True(t, out.TS.Equal(mon))
	assert.True(t, out.Open.Equal(d("100")), "open is first day's open")
	assert.True(t, out.High.Equal(d("120")), "high is max of highs")
	assert.True(t, out.Low.Equal(d("90")), "low is min of lows")
	assert.True(t, out.Close.Equal(d("92")), "close is last day's close")
	assert.True(t, out.Volume.Equal(d("30")))
	assert.True(t, out.Amount.Equal(d("300")))
}

func TestAggregatePeriodSkipsCandlesBeforeStart(t *testing.T) {
	mon := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	days := []Candle{
		dayCandle(mon.AddDate(0, 0, -3), "50", "55", "45", "52"),
		dayCandle(mon, "100", "110", "95", "105"),
	}
	out, ok := AggregatePeriod(days, types.KLinePeriodWeek, mon)
	require.True(t, ok)
	assert.True(t, out.Open.Equal(d("100")))
	assert.True(t, out.High.Equal(d("110")))
	assert.True(t, out.Volume.Equal(d("10")))
}

func TestAggregatePeriodEmptyWindow(t *testing.T) {
	mon := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	days := []Candle{dayCandle(mon.AddDate(0, 0, -1), "50", "55", "45", "52")}
	_, ok := AggregatePeriod(days, types.KLinePeriodWeek, mon)
	assert.False(t, ok)

	_, ok = AggregatePeriod(nil, types.KLinePeriodWeek, mon)
	assert.False(t, ok)
}

func TestPeriodChangeUsesLookbackClose(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	days := make([]Candle, 0, 10)
	for i := 0; i < 10; i++ {
		price := decimal.NewFromInt(int64(100 + i))
		days = append(days, Candle{
			TS:    base.AddDate(0, 0, i),
			Open:  price,
			Close: price,
		})
	}
	// latest close 109, reference is the close 7 entries back: days[2].close = 102
	change := PeriodChange(days, 7)
	want := d("109").Sub(d("102")).Div(d("102"))
	assert.True(t, change.Equal(want), "got %s want %s", change, want)
}

func TestPeriodChangeFallsBackToEarliestOpen(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	days := []Candle{
		{TS: base, Open: d("100"), Close: d("101")},
		{TS: base.AddDate(0, 0, 1), Open: d("101"), Close: d("110")},
	}
	change := PeriodChange(days, 30)
	want := d("110").Sub(d("100")).Div(d("100"))
	assert.True(t, change.Equal(want))
}

func TestPeriodChangeDegenerateInputs(t *testing.T) {
	assert.True(t, PeriodChange(nil, 7).IsZero())
	days := []Candle{{Open: decimal.Zero, Close: d("10")}}
	assert.True(t, PeriodChange(days, 7).IsZero(), "zero reference yields zero change")
}
