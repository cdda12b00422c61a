package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"invest-platform/internal/commission"
	"invest-platform/internal/events"
	"invest-platform/internal/marketdata"
	"invest-platform/internal/orders"
	"invest-platform/internal/positions"
	"invest-platform/internal/products"
	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still settling.
var ErrRunInProgress = errors.New("settlement run already in progress")

type Summary struct {
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	ProductsSettled  int           `json:"products_settled"`
	CandlesUpserted  int           `json:"candles_upserted"`
	PositionsChecked int           `json:"positions_checked"`
	PositionsClosed  int           `json:"positions_closed"`
	CommissionsPaid  int           `json:"commissions_paid"`
	Errors           int           `json:"errors"`
}

// Job runs the daily settlement: candle aggregation, position profit sync
// with stop-triggered closes, and the commission payout pass. A mutex makes
// runs single-flight; the scheduler fires once per day at the configured hour.
type Job struct {
	pool       *pgxpool.Pool
	products   *products.Store
	positions  *positions.Store
	candles    *marketdata.CandleStore
	cache      *marketdata.Cache
	orders     *orders.Service
	commission *commission.Engine
	events     events.Publisher
	log        *zap.Logger
	hour       int
	loc        *time.Location

	runMu  sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewJob(pool *pgxpool.Pool, productStore *products.Store, positionStore *positions.Store,
	candleStore *marketdata.CandleStore, cache *marketdata.Cache, orderSvc *orders.Service,
	commissionEngine *commission.Engine, publisher events.Publisher, log *zap.Logger,
	hour int, loc *time.Location) *Job {
	return &Job{
		pool:       pool,
		products:   productStore,
		positions:  positionStore,
		candles:    candleStore,
		cache:      cache,
		orders:     orderSvc,
		commission: commissionEngine,
		events:     publisher,
		log:        log,
		hour:       hour,
		loc:        loc,
		stopCh:     make(chan struct{}),
	}
}

// nextRun returns the next occurrence of the configured hour after now.
func nextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (j *Job) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			next := nextRun(time.Now(), j.hour, j.loc)
			timer := time.NewTimer(time.Until(next))
			select {
			case <-j.stopCh:
				timer.Stop()
				return
			case <-timer.C:
			}
			summary, err := j.Run(context.Background())
			if err != nil {
				if errors.Is(err, ErrRunInProgress) {
					continue
				}
				j.log.Error("scheduled settlement failed", zap.Error(err))
				continue
			}
			j.log.Info("scheduled settlement completed",
				zap.Int("products", summary.ProductsSettled),
				zap.Int("positions_closed", summary.PositionsClosed),
				zap.Int("commissions_paid", summary.CommissionsPaid),
				zap.Duration("duration", summary.Duration))
		}
	}()
}

func (j *Job) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

// Run executes one settlement pass. Item failures are logged and counted,
// they never abort the batch.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	if !j.runMu.TryLock() {
		return Summary{}, ErrRunInProgress
	}
	defer j.runMu.Unlock()

	summary := Summary{StartedAt: time.Now()}
	j.log.Info("settlement run starting")

	j.aggregateCandles(ctx, &summary)
	j.settlePositions(ctx, &summary)

	paid, err := j.commission.DistributePending(ctx)
	if err != nil {
		j.log.Error("commission payout pass failed", zap.Error(err))
		summary.Errors++
	}
	summary.CommissionsPaid = paid

	summary.Duration = time.Since(summary.StartedAt)
	j.publishSummary(summary)
	j.log.Info("settlement run finished",
		zap.Int("products", summary.ProductsSettled),
		zap.Int("candles", summary.CandlesUpserted),
		zap.Int("positions_checked", summary.PositionsChecked),
		zap.Int("positions_closed", summary.PositionsClosed),
		zap.Int("commissions_paid", summary.CommissionsPaid),
		zap.Int("errors", summary.Errors),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

var aggregatePeriods = []types.KLinePeriod{types.KLinePeriodWeek, types.KLinePeriodMonth, types.KLinePeriodYear}

func (j *Job) aggregateCandles(ctx context.Context, summary *Summary) {
	items, err := j.products.ListActive(ctx)
	if err != nil {
		j.log.Error("settlement product scan failed", zap.Error(err))
		summary.Errors++
		return
	}
	now := time.Now().In(j.loc)
	for _, p := range items {
		if err := j.settleProduct(ctx, p, now, summary); err != nil {
			j.log.Warn("product settlement failed", zap.String("product_id", p.ID), zap.String("code", p.Code), zap.Error(err))
			summary.Errors++
			continue
		}
		summary.ProductsSettled++
	}
}

func (j *Job) settleProduct(ctx context.Context, p products.Product, now time.Time, summary *Summary) error {
	yearStart := marketdata.PeriodStart(types.KLinePeriodYear, now)
	days, err := j.candles.ListDays(ctx, p.ID, yearStart.AddDate(-1, 0, 0))
	if err != nil {
		return err
	}
	for _, period := range aggregatePeriods {
		start := marketdata.PeriodStart(period, now)
		candle, ok := marketdata.AggregatePeriod(days, period, start)
		if !ok {
			continue
		}
		if err := j.candles.Upsert(ctx, candle); err != nil {
			return err
		}
		if err := j.cache.PushCandle(ctx, candle); err != nil {
			j.log.Warn("candle cache push failed", zap.String("product_id", p.ID), zap.Error(err))
		}
		summary.CandlesUpserted++
	}
	weekly := marketdata.PeriodChange(days, 7)
	monthly := marketdata.PeriodChange(days, 30)
	yearly := marketdata.PeriodChange(days, 365)
	_, err = j.pool.Exec(ctx,
		"update products set change_weekly = $2, change_monthly = $3, change_yearly = $4, daily_volume = 0, updated_at = now() where id = $1",
		p.ID, weekly, monthly, yearly)
	return err
}

func (j *Job) settlePositions(ctx context.Context, summary *Summary) {
	ids, err := j.positions.ListOpenIDs(ctx)
	if err != nil {
		j.log.Error("settlement position scan failed", zap.Error(err))
		summary.Errors++
		return
	}
	for _, id := range ids {
		summary.PositionsChecked++
		closed, err := j.settlePosition(ctx, id)
		if err != nil {
			j.log.Warn("position settlement failed", zap.String("position_id", id), zap.Error(err))
			summary.Errors++
			continue
		}
		if closed {
			summary.PositionsClosed++
		}
	}
}

// settlePosition syncs the position against the current price and closes it
// when a stop boundary is hit. Stop-profit is evaluated before stop-loss.
func (j *Job) settlePosition(ctx context.Context, positionID string) (bool, error) {
	tx, err := j.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	pos, err := j.positions.GetForUpdate(ctx, tx, positionID)
	if err != nil {
		if errors.Is(err, positions.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if pos.Status != types.PositionStatusOpen {
		return false, nil
	}
	product, err := j.products.GetByID(ctx, pos.ProductID)
	if err != nil {
		return false, err
	}
	pos = positions.Revalue(pos, product.CurrentPrice)
	pos.StopProfitPrice, pos.StopLossPrice = positions.StopPrices(pos.CostPrice, product.StopProfit, product.StopLoss)
	if err := j.positions.Save(ctx, tx, pos); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	if !pos.AutoClose || !product.AutoClose {
		return false, nil
	}
	reason := positions.EvaluateStop(pos.CostPrice, product.CurrentPrice, product.StopProfit, product.StopLoss)
	if reason == types.CloseReasonNone {
		return false, nil
	}
	res, err := j.orders.ForceClose(ctx, positionID, reason)
	if err != nil {
		return false, err
	}
	return res.Closed, nil
}

func (j *Job) publishSummary(summary Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := j.events.Publish(ctx, events.Event{
		Type: events.TypeSettlementDone,
		Data: map[string]any{
			"products_settled":  summary.ProductsSettled,
			"candles_upserted":  summary.CandlesUpserted,
			"positions_checked": summary.PositionsChecked,
			"positions_closed":  summary.PositionsClosed,
			"commissions_paid":  summary.CommissionsPaid,
			"errors":            summary.Errors,
			"duration_ms":       summary.Duration.Milliseconds(),
		},
	})
	if err != nil {
		j.log.Warn("settlement event publish failed", zap.Error(err))
	}
}
