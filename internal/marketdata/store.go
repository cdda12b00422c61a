package marketdata

import (
	"context"
	"errors"
	"time"

	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Candle struct {
	ProductID     string            `json:"product_id"`
	Period        types.KLinePeriod `json:"period"`
	TS            time.Time         `json:"ts"`
	Open          decimal.Decimal   `json:"open"`
	High          decimal.Decimal   `json:"high"`
	Low           decimal.Decimal   `json:"low"`
	Close         decimal.Decimal   `json:"close"`
	Volume        decimal.Decimal   `json:"volume"`
	Amount        decimal.Decimal   `json:"amount"`
	PrevClose     decimal.Decimal   `json:"prev_close"`
	Change        decimal.Decimal   `json:"change"`
	ChangePercent decimal.Decimal   `json:"change_percent"`
}

type CandleStore struct {
	pool *pgxpool.Pool
}

func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

const candleColumns = "product_id, period, ts, open, high, low, close, volume, amount, prev_close, change, change_percent"

const upsertCandleSQL = `
insert into klines (product_id, period, ts, open, high, low, close, volume, amount, prev_close, change, change_percent)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
on conflict (product_id, period, ts) do update set
	open = excluded.open,
	high = excluded.high,
	low = excluded.low,
	close = excluded.close,
	volume = excluded.volume,
	amount = excluded.amount,
	prev_close = excluded.prev_close,
	change = excluded.change,
	change_percent = excluded.change_percent`

// Upsert writes a candle keyed by (product, period, ts); reruns overwrite the
// same row.
func (s *CandleStore) Upsert(ctx context.Context, c Candle) error {
	_, err := s.pool.Exec(ctx, upsertCandleSQL,
		c.ProductID, string(c.Period), c.TS, c.Open, c.High, c.Low, c.Close, c.Volume, c.Amount, c.PrevClose, c.Change, c.ChangePercent)
	return err
}

func (s *CandleStore) UpsertTx(ctx context.Context, tx pgx.Tx, c Candle) error {
	_, err := tx.Exec(ctx, upsertCandleSQL,
		c.ProductID, string(c.Period), c.TS, c.Open, c.High, c.Low, c.Close, c.Volume, c.Amount, c.PrevClose, c.Change, c.ChangePercent)
	return err
}

func scanCandle(row pgx.Row) (Candle, error) {
	var c Candle
	err := row.Scan(&c.ProductID, &c.Period, &c.TS, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Amount, &c.PrevClose, &c.Change, &c.ChangePercent)
	return c, err
}

// GetDayForUpdate locks today's day candle inside the caller's tx. ok is
// false when the candle does not exist yet.
func (s *CandleStore) GetDayForUpdate(ctx context.Context, tx pgx.Tx, productID string, ts time.Time) (Candle, bool, error) {
	c, err := scanCandle(tx.QueryRow(ctx,
		"select "+candleColumns+" from klines where product_id = $1 and period = $2 and ts = $3 for update",
		productID, string(types.KLinePeriodDay), ts))
	if errors.Is(err, pgx.ErrNoRows) {
		return Candle{}, false, nil
	}
	if err != nil {
		return Candle{}, false, err
	}
	return c, true, nil
}

// LastDayBefore returns the most recent day candle strictly before ts.
func (s *CandleStore) LastDayBefore(ctx context.Context, tx pgx.Tx, productID string, ts time.Time) (Candle, bool, error) {
	c, err := scanCandle(tx.QueryRow(ctx,
		"select "+candleColumns+" from klines where product_id = $1 and period = $2 and ts < $3 order by ts desc limit 1",
		productID, string(types.KLinePeriodDay), ts))
	if errors.Is(err, pgx.ErrNoRows) {
		return Candle{}, false, nil
	}
	if err != nil {
		return Candle{}, false, err
	}
	return c, true, nil
}

// ListDays returns day candles at or after from, ascending.
func (s *CandleStore) ListDays(ctx context.Context, productID string, from time.Time) ([]Candle, error) {
	rows, err := s.pool.Query(ctx,
		"select "+candleColumns+" from klines where product_id = $1 and period = $2 and ts >= $3 order by ts asc",
		productID, string(types.KLinePeriodDay), from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByPeriod returns the latest candles for a period in ascending ts order.
func (s *CandleStore) ListByPeriod(ctx context.Context, productID string, period types.KLinePeriod, limit int) ([]Candle, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		"select "+candleColumns+" from klines where product_id = $1 and period = $2 order by ts desc limit $3",
		productID, string(period), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
