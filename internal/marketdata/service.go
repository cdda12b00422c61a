package marketdata

import (
	"context"
	"errors"
	"time"

	"invest-platform/internal/events"
	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidPrice = errors.New("price must be positive")

// Service applies price entries to products and day candles and fans the
// resulting ticker out to cache and websocket subscribers.
type Service struct {
	pool    *pgxpool.Pool
	candles *CandleStore
	cache   *Cache
	bus     *Bus
	events  events.Publisher
	log     *zap.Logger
}

func NewService(pool *pgxpool.Pool, candles *CandleStore, cache *Cache, bus *Bus, publisher events.Publisher, log *zap.Logger) *Service {
	return &Service{pool: pool, candles: candles, cache: cache, bus: bus, events: publisher, log: log}
}

// RecordPrice sets a new product price: updates the product row, merges the
// price into today's day candle and recomputes the daily change against the
// previous day close.
func (s *Service) RecordPrice(ctx context.Context, productID string, price decimal.Decimal, now time.Time) (Ticker, error) {
	if !price.IsPositive() {
		return Ticker{}, ErrInvalidPrice
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Ticker{}, err
	}
	defer tx.Rollback(ctx)

	var code string
	if err := tx.QueryRow(ctx, "select code from products where id = $1 for update", productID).Scan(&code); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticker{}, errors.New("product not found")
		}
		return Ticker{}, err
	}

	today := PeriodStart(types.KLinePeriodDay, now)
	candle, ok, err := s.candles.GetDayForUpdate(ctx, tx, productID, today)
	if err != nil {
		return Ticker{}, err
	}
	if !ok {
		prevClose := price
		if prev, found, err := s.candles.LastDayBefore(ctx, tx, productID, today); err != nil {
			return Ticker{}, err
		} else if found {
			prevClose = prev.Close
		}
		candle = Candle{
			ProductID: productID,
			Period:    types.KLinePeriodDay,
			TS:        today,
			Open:      prevClose,
			High:      prevClose,
			Low:       prevClose,
			Close:     prevClose,
			PrevClose: prevClose,
		}
	}
	candle.Close = price
	if price.GreaterThan(candle.High) {
		candle.High = price
	}
	if price.LessThan(candle.Low) {
		candle.Low = price
	}
	candle.Change = candle.Close.Sub(candle.PrevClose)
	if candle.PrevClose.IsPositive() {
		candle.ChangePercent = candle.Change.Div(candle.PrevClose)
	} else {
		candle.ChangePercent = decimal.Zero
	}
	if err := s.candles.UpsertTx(ctx, tx, candle); err != nil {
		return Ticker{}, err
	}
	_, err = tx.Exec(ctx, "update products set current_price = $2, change_daily = $3, updated_at = now() where id = $1",
		productID, price, candle.ChangePercent)
	if err != nil {
		return Ticker{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Ticker{}, err
	}

	ticker := Ticker{
		ProductID:     productID,
		Code:          code,
		Price:         price.String(),
		Change:        candle.Change.String(),
		ChangePercent: candle.ChangePercent.String(),
		At:            now,
	}
	if err := s.cache.SetTicker(ctx, ticker); err != nil {
		s.log.Warn("ticker cache update failed", zap.String("product_id", productID), zap.Error(err))
	}
	if err := s.cache.PushCandle(ctx, candle); err != nil {
		s.log.Warn("candle cache update failed", zap.String("product_id", productID), zap.Error(err))
	}
	s.bus.Publish(Event{Type: "ticker", Data: ticker})
	s.publishPrice(ticker)
	return ticker, nil
}

func (s *Service) publishPrice(t Ticker) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.events.Publish(ctx, events.Event{
		Type: events.TypePriceUpdated,
		Data: map[string]any{
			"product_id":     t.ProductID,
			"code":           t.Code,
			"price":          t.Price,
			"change":         t.Change,
			"change_percent": t.ChangePercent,
		},
	})
	if err != nil {
		s.log.Warn("price event publish failed", zap.String("product_id", t.ProductID), zap.Error(err))
	}
}

// Backfill bulk-upserts candles for one product. Day-period backfills also
// refresh the product's current price and period changes from the imported
// history.
func (s *Service) Backfill(ctx context.Context, productID string, period types.KLinePeriod, candles []Candle) (int, error) {
	count := 0
	for _, c := range candles {
		c.ProductID = productID
		c.Period = period
		c.TS = PeriodStart(period, c.TS)
		if err := s.candles.Upsert(ctx, c); err != nil {
			return count, err
		}
		count++
	}
	if period != types.KLinePeriodDay || count == 0 {
		return count, nil
	}
	if err := s.RefreshPeriodChanges(ctx, productID, true); err != nil {
		return count, err
	}
	return count, nil
}

// RefreshPeriodChanges recomputes a product's weekly/monthly/yearly change
// columns from its day candles. When syncPrice is set the current price and
// daily change are refreshed from the latest day candle as well.
func (s *Service) RefreshPeriodChanges(ctx context.Context, productID string, syncPrice bool) error {
	yearAgo := time.Now().AddDate(-1, 0, -1)
	days, err := s.candles.ListDays(ctx, productID, PeriodStart(types.KLinePeriodDay, yearAgo))
	if err != nil {
		return err
	}
	if len(days) == 0 {
		return nil
	}
	weekly := PeriodChange(days, 7)
	monthly := PeriodChange(days, 30)
	yearly := PeriodChange(days, 365)
	if syncPrice {
		latest := days[len(days)-1]
		_, err = s.pool.Exec(ctx,
			"update products set change_weekly = $2, change_monthly = $3, change_yearly = $4, current_price = $5, change_daily = $6, updated_at = now() where id = $1",
			productID, weekly, monthly, yearly, latest.Close, latest.ChangePercent)
		return err
	}
	_, err = s.pool.Exec(ctx,
		"update products set change_weekly = $2, change_monthly = $3, change_yearly = $4, updated_at = now() where id = $1",
		productID, weekly, monthly, yearly)
	return err
}
