package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"invest-platform/internal/types"

	"github.com/redis/go-redis/v9"
)

const cachedCandlesPerKey = 1000

// Cache keeps recent candles and the latest ticker per product in redis.
// A nil client disables caching.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func candleKey(productID string, period types.KLinePeriod) string {
	return fmt.Sprintf("kline:%s:%s", productID, period)
}

func tickerKey(productID string) string {
	return fmt.Sprintf("ticker:%s", productID)
}

func (c *Cache) PushCandle(ctx context.Context, candle Candle) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	data, err := json.Marshal(candle)
	if err != nil {
		return err
	}
	key := candleKey(candle.ProductID, candle.Period)
	pipe := c.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -cachedCandlesPerKey, -1)
	_, err = pipe.Exec(ctx)
	return err
}

type Ticker struct {
	ProductID     string    `json:"product_id"`
	Code          string    `json:"code"`
	Price         string    `json:"price"`
	Change        string    `json:"change"`
	ChangePercent string    `json:"change_percent"`
	At            time.Time `json:"at"`
}

func (c *Cache) SetTicker(ctx context.Context, t Ticker) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, tickerKey(t.ProductID), data, 24*time.Hour).Err()
}

func (c *Cache) GetTicker(ctx context.Context, productID string) (Ticker, bool, error) {
	if c == nil || c.rdb == nil {
		return Ticker{}, false, nil
	}
	data, err := c.rdb.Get(ctx, tickerKey(productID)).Bytes()
	if err == redis.Nil {
		return Ticker{}, false, nil
	}
	if err != nil {
		return Ticker{}, false, err
	}
	var t Ticker
	if err := json.Unmarshal(data, &t); err != nil {
		return Ticker{}, false, err
	}
	return t, true, nil
}
