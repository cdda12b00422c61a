package orders

import (
	"context"
	"errors"
	"time"

	"invest-platform/internal/commission"
	"invest-platform/internal/events"
	"invest-platform/internal/ledger"
	"invest-platform/internal/positions"
	"invest-platform/internal/products"
	"invest-platform/internal/types"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotTradable          = errors.New("product is not tradable")
	ErrBelowMinUnit         = errors.New("quantity below minimum unit")
	ErrBelowMinAmount       = errors.New("amount below minimum trade amount")
	ErrNoPosition           = errors.New("no open position")
	ErrInsufficientPosition = errors.New("insufficient position quantity")
	ErrConflict             = errors.New("order conflicts with a concurrent operation, retry")
)

const maxTxRetries = 3

type Service struct {
	pool       *pgxpool.Pool
	store      *Store
	positions  *positions.Store
	products   *products.Store
	ledger     *ledger.Service
	commission *commission.Engine
	events     events.Publisher
	node       *snowflake.Node
	log        *zap.Logger
}

func NewService(pool *pgxpool.Pool, store *Store, positionStore *positions.Store, productStore *products.Store,
	ledgerSvc *ledger.Service, commissionEngine *commission.Engine, publisher events.Publisher,
	node *snowflake.Node, log *zap.Logger) *Service {
	return &Service{
		pool:       pool,
		store:      store,
		positions:  positionStore,
		products:   productStore,
		ledger:     ledgerSvc,
		commission: commissionEngine,
		events:     publisher,
		node:       node,
		log:        log,
	}
}

type PlaceRequest struct {
	ProductID string
	Type      types.OrderType
	Quantity  decimal.Decimal
}

type PlaceResult struct {
	OrderID      string          `json:"order_id"`
	OrderNo      string          `json:"order_no"`
	PositionID   string          `json:"position_id"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	ActualAmount decimal.Decimal `json:"actual_amount"`
	Balance      decimal.Decimal `json:"balance"`
}

// orderAmounts derives the money legs of an execution at full precision.
// amount is the gross notional, fee is charged on it, actual is what the
// balance moves by: amount+fee for buys, amount-fee for sells.
func orderAmounts(qty, price, feeRate decimal.Decimal, side types.OrderType) (amount, fee, actual decimal.Decimal) {
	amount = qty.Mul(price)
	fee = amount.Mul(feeRate)
	if side == types.OrderTypeBuy {
		actual = amount.Add(fee)
	} else {
		actual = amount.Sub(fee)
	}
	return amount, fee, actual
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// retrySerializable runs fn up to maxTxRetries times. Only serialization
// failures (40001/40P01) are retried; any other error passes through so a
// domain failure like an insufficient balance surfaces on the first attempt.
// Exhausting the retries maps to ErrConflict.
func (s *Service) retrySerializable(op string, fn func() error) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		s.log.Debug("tx serialization failure, retrying",
			zap.String("op", op), zap.Int("attempt", attempt+1))
	}
	return ErrConflict
}

// Place executes a buy or sell at the product's current price. The whole
// execution is one serializable tx; serialization failures are retried a
// bounded number of times before surfacing as a conflict.
func (s *Service) Place(ctx context.Context, userID string, req PlaceRequest) (PlaceResult, error) {
	if req.Type != types.OrderTypeBuy && req.Type != types.OrderTypeSell {
		return PlaceResult{}, errors.New("type must be buy or sell")
	}
	if !req.Quantity.IsPositive() {
		return PlaceResult{}, errors.New("quantity must be positive")
	}
	var res PlaceResult
	err := s.retrySerializable("place", func() error {
		var err error
		res, err = s.placeOnce(ctx, userID, req)
		return err
	})
	if err != nil {
		return PlaceResult{}, err
	}
	s.publishOrderEvent(userID, req, res)
	return res, nil
}

func (s *Service) placeOnce(ctx context.Context, userID string, req PlaceRequest) (PlaceResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return PlaceResult{}, err
	}
	defer tx.Rollback(ctx)

	if _, _, err := s.ledger.LockBalance(ctx, tx, userID); err != nil {
		return PlaceResult{}, err
	}
	product, err := s.products.GetForUpdate(ctx, tx, req.ProductID)
	if err != nil {
		return PlaceResult{}, err
	}
	if product.Status != string(types.ProductStatusActive) || !product.CurrentPrice.IsPositive() {
		return PlaceResult{}, ErrNotTradable
	}
	if req.Quantity.LessThan(product.MinUnit) {
		return PlaceResult{}, ErrBelowMinUnit
	}
	amount, fee, actual := orderAmounts(req.Quantity, product.CurrentPrice, product.FeeRate, req.Type)
	if product.MinTradeAmount.IsPositive() && amount.LessThan(product.MinTradeAmount) {
		return PlaceResult{}, ErrBelowMinAmount
	}

	var balance decimal.Decimal
	var positionID string
	price := product.CurrentPrice
	switch req.Type {
	case types.OrderTypeBuy:
		balance, err = s.ledger.Debit(ctx, tx, userID, actual)
		if err != nil {
			return PlaceResult{}, err
		}
		positionID, err = s.applyBuy(ctx, tx, userID, product, req.Quantity, price, amount)
		if err != nil {
			return PlaceResult{}, err
		}
	case types.OrderTypeSell:
		pos, ok, err := s.positions.OpenForUpdate(ctx, tx, userID, req.ProductID)
		if err != nil {
			return PlaceResult{}, err
		}
		if !ok {
			return PlaceResult{}, ErrNoPosition
		}
		available := pos.Quantity.Sub(pos.FrozenQuantity)
		if available.LessThan(req.Quantity) {
			return PlaceResult{}, ErrInsufficientPosition
		}
		balance, err = s.ledger.Credit(ctx, tx, userID, actual)
		if err != nil {
			return PlaceResult{}, err
		}
		pos = positions.ReduceSell(pos, req.Quantity, price)
		if err := s.positions.Save(ctx, tx, pos); err != nil {
			return PlaceResult{}, err
		}
		positionID = pos.ID
	}

	orderNo := s.node.Generate().String()
	orderID, err := s.store.Create(ctx, tx, Order{
		OrderNo:      orderNo,
		UserID:       userID,
		ProductID:    req.ProductID,
		PositionID:   positionID,
		Type:         req.Type,
		Quantity:     req.Quantity,
		Price:        price,
		Amount:       amount,
		Fee:          fee,
		ActualAmount: actual,
		Status:       types.OrderStatusCompleted,
		Source:       types.OrderSourceUser,
	})
	if err != nil {
		return PlaceResult{}, err
	}

	txType := types.TransactionTypeBuy
	txAmount := actual.Neg()
	if req.Type == types.OrderTypeSell {
		txType = types.TransactionTypeSell
		txAmount = actual
	}
	if err := s.ledger.Append(ctx, tx, ledger.Record{
		UserID:      userID,
		Type:        txType,
		Amount:      txAmount,
		OrderID:     orderID,
		ProductID:   req.ProductID,
		Description: string(req.Type) + " " + product.Code,
	}, balance); err != nil {
		return PlaceResult{}, err
	}

	if req.Type == types.OrderTypeBuy {
		if err := s.products.BumpVolume(ctx, tx, req.ProductID, req.Quantity); err != nil {
			return PlaceResult{}, err
		}
		if err := s.commission.FanOut(ctx, tx, userID, orderID, fee); err != nil {
			return PlaceResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PlaceResult{}, err
	}
	return PlaceResult{
		OrderID:      orderID,
		OrderNo:      orderNo,
		PositionID:   positionID,
		Price:        price,
		Amount:       amount,
		Fee:          fee,
		ActualAmount: actual,
		Balance:      balance,
	}, nil
}

func (s *Service) applyBuy(ctx context.Context, tx pgx.Tx, userID string, product products.Product, qty, price, amount decimal.Decimal) (string, error) {
	pos, ok, err := s.positions.OpenForUpdate(ctx, tx, userID, product.ID)
	if err != nil {
		return "", err
	}
	if ok {
		pos = positions.MergeBuy(pos, qty, price, amount)
		pos.StopProfitPrice, pos.StopLossPrice = positions.StopPrices(pos.CostPrice, product.StopProfit, product.StopLoss)
		if err := s.positions.Save(ctx, tx, pos); err != nil {
			return "", err
		}
		return pos.ID, nil
	}
	pos = positions.MergeBuy(positions.Position{
		UserID:    userID,
		ProductID: product.ID,
		AutoClose: product.AutoClose,
		Status:    types.PositionStatusOpen,
	}, qty, price, amount)
	pos.StopProfitPrice, pos.StopLossPrice = positions.StopPrices(pos.CostPrice, product.StopProfit, product.StopLoss)
	return s.positions.Create(ctx, tx, pos)
}

func (s *Service) publishOrderEvent(userID string, req PlaceRequest, res PlaceResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.events.Publish(ctx, events.Event{
		Type: events.TypeOrderExecuted,
		Data: map[string]any{
			"order_id":   res.OrderID,
			"order_no":   res.OrderNo,
			"user_id":    userID,
			"product_id": req.ProductID,
			"type":       string(req.Type),
			"quantity":   req.Quantity.String(),
			"price":      res.Price.String(),
			"amount":     res.Amount.String(),
			"fee":        res.Fee.String(),
		},
	})
	if err != nil {
		s.log.Warn("order event publish failed", zap.String("order_id", res.OrderID), zap.Error(err))
	}
}

type ForceCloseResult struct {
	Closed     bool
	OrderID    string
	Profit     decimal.Decimal
	ActualPaid decimal.Decimal
}

// ForceClose sells a position's full quantity at the current product price on
// behalf of the settlement job. Already-closed positions are a no-op so
// concurrent closers settle exactly once.
func (s *Service) ForceClose(ctx context.Context, positionID string, reason types.CloseReason) (ForceCloseResult, error) {
	var res ForceCloseResult
	err := s.retrySerializable("force_close", func() error {
		var err error
		res, err = s.forceCloseOnce(ctx, positionID, reason)
		return err
	})
	if err != nil {
		return ForceCloseResult{}, err
	}
	if res.Closed {
		s.publishCloseEvent(positionID, reason, res)
	}
	return res, nil
}

func (s *Service) forceCloseOnce(ctx context.Context, positionID string, reason types.CloseReason) (ForceCloseResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return ForceCloseResult{}, err
	}
	defer tx.Rollback(ctx)

	pos, err := s.positions.GetForUpdate(ctx, tx, positionID)
	if err != nil {
		return ForceCloseResult{}, err
	}
	if pos.Status != types.PositionStatusOpen || !pos.Quantity.IsPositive() {
		return ForceCloseResult{Closed: false}, nil
	}
	if _, _, err := s.ledger.LockBalance(ctx, tx, pos.UserID); err != nil {
		return ForceCloseResult{}, err
	}
	product, err := s.products.GetForUpdate(ctx, tx, pos.ProductID)
	if err != nil {
		return ForceCloseResult{}, err
	}
	price := product.CurrentPrice
	qty := pos.Quantity
	amount, fee, actual := orderAmounts(qty, price, product.FeeRate, types.OrderTypeSell)

	balance, err := s.ledger.Credit(ctx, tx, pos.UserID, actual)
	if err != nil {
		return ForceCloseResult{}, err
	}
	profit := qty.Mul(price).Sub(pos.TotalCost)
	pos = positions.ReduceSell(pos, qty, price)
	if reason == types.CloseReasonStopLoss {
		pos.Status = types.PositionStatusForcedClosed
	}
	pos.Profit = profit
	if err := s.positions.Save(ctx, tx, pos); err != nil {
		return ForceCloseResult{}, err
	}

	orderNo := s.node.Generate().String()
	orderID, err := s.store.Create(ctx, tx, Order{
		OrderNo:      orderNo,
		UserID:       pos.UserID,
		ProductID:    pos.ProductID,
		PositionID:   pos.ID,
		Type:         types.OrderTypeSell,
		Quantity:     qty,
		Price:        price,
		Amount:       amount,
		Fee:          fee,
		ActualAmount: actual,
		Status:       types.OrderStatusCompleted,
		Source:       types.OrderSourceSettlement,
		Reason:       reason,
	})
	if err != nil {
		return ForceCloseResult{}, err
	}

	txType := types.TransactionTypeProfit
	if reason == types.CloseReasonStopLoss {
		txType = types.TransactionTypeLoss
	}
	if err := s.ledger.Append(ctx, tx, ledger.Record{
		UserID:      pos.UserID,
		Type:        txType,
		Amount:      actual,
		OrderID:     orderID,
		ProductID:   pos.ProductID,
		Description: "auto close " + string(reason),
	}, balance); err != nil {
		return ForceCloseResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ForceCloseResult{}, err
	}
	return ForceCloseResult{Closed: true, OrderID: orderID, Profit: profit, ActualPaid: actual}, nil
}

func (s *Service) publishCloseEvent(positionID string, reason types.CloseReason, res ForceCloseResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.events.Publish(ctx, events.Event{
		Type: events.TypePositionClosed,
		Data: map[string]any{
			"position_id": positionID,
			"order_id":    res.OrderID,
			"reason":      string(reason),
			"profit":      res.Profit.String(),
		},
	})
	if err != nil {
		s.log.Warn("close event publish failed", zap.String("position_id", positionID), zap.Error(err))
	}
}

func (s *Service) ListOrders(ctx context.Context, userID string, f ListFilter) ([]Order, error) {
	return s.store.ListByUser(ctx, userID, f)
}
