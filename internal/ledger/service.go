package ledger

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

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientFrozen  = errors.New("insufficient frozen balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Service owns user balance mutations and the append-only transaction log.
// Mutations take a caller-provided tx so the balance change and its
// transaction row commit together.
type Service struct {
	pool   *pgxpool.Pool
	events events.Publisher
	log    *zap.Logger
}

func NewService(pool *pgxpool.Pool, publisher events.Publisher, log *zap.Logger) *Service {
	return &Service{pool: pool, events: publisher, log: log}
}

type Record struct {
	UserID      string
	Type        types.TransactionType
	Amount      decimal.Decimal
	OrderID     string
	ProductID   string
	Description string
}

type Transaction struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	OrderID      string          `json:"order_id,omitempty"`
	ProductID    string          `json:"product_id,omitempty"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LockBalance takes the user row lock and returns the current balances.
func (s *Service) LockBalance(ctx context.Context, tx pgx.Tx, userID string) (balance, frozen decimal.Decimal, err error) {
	err = tx.QueryRow(ctx, "select balance, frozen_balance from users where id = $1 for update", userID).Scan(&balance, &frozen)
	return balance, frozen, err
}

func (s *Service) Credit(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, "update users set balance = balance + $2, updated_at = now() where id = $1 returning balance", userID, amount).Scan(&balance)
	return balance, err
}

func (s *Service) Debit(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, "update users set balance = balance - $2, updated_at = now() where id = $1 and balance >= $2 returning balance", userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrInsufficientBalance
	}
	return balance, err
}

// Freeze moves amount from balance to frozen_balance.
func (s *Service) Freeze(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, "update users set balance = balance - $2, frozen_balance = frozen_balance + $2, updated_at = now() where id = $1 and balance >= $2 returning balance", userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrInsufficientBalance
	}
	return balance, err
}

// Unfreeze moves amount from frozen_balance back to balance.
func (s *Service) Unfreeze(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, "update users set balance = balance + $2, frozen_balance = frozen_balance - $2, updated_at = now() where id = $1 and frozen_balance >= $2 returning balance", userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrInsufficientFrozen
	}
	return balance, err
}

// DebitFrozen burns amount out of frozen_balance when a withdrawal is approved.
func (s *Service) DebitFrozen(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, "update users set frozen_balance = frozen_balance - $2, updated_at = now() where id = $1 and frozen_balance >= $2 returning balance", userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrInsufficientFrozen
	}
	return balance, err
}

// Append writes one transaction row. balanceAfter must be the balance returned
// by the mutation in the same tx.
func (s *Service) Append(ctx context.Context, tx pgx.Tx, rec Record, balanceAfter decimal.Decimal) error {
	var orderID, productID any
	if rec.OrderID != "" {
		orderID = rec.OrderID
	}
	if rec.ProductID != "" {
		productID = rec.ProductID
	}
	_, err := tx.Exec(ctx,
		"insert into transactions (user_id, type, amount, balance_after, order_id, product_id, description) values ($1, $2, $3, $4, $5, $6, $7)",
		rec.UserID, string(rec.Type), rec.Amount, balanceAfter, orderID, productID, rec.Description)
	return err
}

func (s *Service) ListTransactions(ctx context.Context, userID string, txType string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := "select id, type, amount, balance_after, coalesce(order_id::text, ''), coalesce(product_id::text, ''), description, created_at from transactions where user_id = $1"
	args := []any{userID}
	if txType != "" {
		query += " and type = $2 order by created_at desc limit $3 offset $4"
		args = append(args, txType, limit, offset)
	} else {
		query += " order by created_at desc limit $2 offset $3"
		args = append(args, limit, offset)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Transaction, 0, limit)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.BalanceAfter, &t.OrderID, &t.ProductID, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type ProfitStats struct {
	Period         string          `json:"period"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	FloatingProfit decimal.Decimal `json:"floating_profit"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	CommissionSum  decimal.Decimal `json:"commission_sum"`
}

// ProfitStatsFor aggregates realized profit/loss transactions since the period
// start plus floating profit on open positions.
func (s *Service) ProfitStatsFor(ctx context.Context, userID, period string, now time.Time) (ProfitStats, error) {
	var since time.Time
	switch period {
	case "daily":
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "weekly":
		since = now.AddDate(0, 0, -7)
	case "monthly":
		since = now.AddDate(0, -1, 0)
	case "yearly":
		since = now.AddDate(-1, 0, 0)
	default:
		return ProfitStats{}, errors.New("invalid period: use daily, weekly, monthly or yearly")
	}
	out := ProfitStats{Period: period}
	err := s.pool.QueryRow(ctx, `
		select
			coalesce(sum(case when type = 'profit' then amount when type = 'loss' then -amount else 0 end), 0),
			coalesce(sum(case when type = 'commission' then amount else 0 end), 0)
		from transactions
		where user_id = $1 and created_at >= $2 and type in ('profit', 'loss', 'commission')
	`, userID, since).Scan(&out.RealizedProfit, &out.CommissionSum)
	if err != nil {
		return out, err
	}
	err = s.pool.QueryRow(ctx, "select coalesce(sum(profit), 0) from positions where user_id = $1 and status = 'open'", userID).Scan(&out.FloatingProfit)
	if err != nil {
		return out, err
	}
	out.TotalProfit = out.RealizedProfit.Add(out.FloatingProfit)
	return out, nil
}
