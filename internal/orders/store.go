package orders

import (
	"context"
	"fmt"
	"time"

	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID           string            `json:"id"`
	OrderNo      string            `json:"order_no"`
	UserID       string            `json:"user_id"`
	ProductID    string            `json:"product_id"`
	PositionID   string            `json:"position_id,omitempty"`
	Type         types.OrderType   `json:"type"`
	Quantity     decimal.Decimal   `json:"quantity"`
	Price        decimal.Decimal   `json:"price"`
	Amount       decimal.Decimal   `json:"amount"`
	Fee          decimal.Decimal   `json:"fee"`
	ActualAmount decimal.Decimal   `json:"actual_amount"`
	Status       types.OrderStatus `json:"status"`
	Source       types.OrderSource `json:"source"`
	Reason       types.CloseReason `json:"reason,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts an executed order inside the caller's tx.
func (s *Store) Create(ctx context.Context, tx pgx.Tx, o Order) (string, error) {
	var positionID any
	if o.PositionID != "" {
		positionID = o.PositionID
	}
	var id string
	err := tx.QueryRow(ctx, `
		insert into orders (order_no, user_id, product_id, position_id, type, quantity, price, amount, fee, actual_amount, status, source, reason)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		returning id
	`, o.OrderNo, o.UserID, o.ProductID, positionID, string(o.Type), o.Quantity, o.Price, o.Amount, o.Fee,
		o.ActualAmount, string(o.Status), string(o.Source), string(o.Reason)).Scan(&id)
	return id, err
}

type ListFilter struct {
	Type      string
	ProductID string
	Limit     int
	Offset    int
}

func (s *Store) ListByUser(ctx context.Context, userID string, f ListFilter) ([]Order, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `select id, order_no, user_id, product_id, coalesce(position_id::text, ''), type, quantity, price, amount, fee, actual_amount, status, source, reason, created_at from orders where user_id = $1`
	args := []any{userID}
	if f.Type != "" {
		args = append(args, f.Type)
		query += fmt.Sprintf(" and type = $%d", len(args))
	}
	if f.ProductID != "" {
		args = append(args, f.ProductID)
		query += fmt.Sprintf(" and product_id = $%d", len(args))
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" order by created_at desc limit $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" offset $%d", len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Order, 0, f.Limit)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNo, &o.UserID, &o.ProductID, &o.PositionID, &o.Type, &o.Quantity, &o.Price,
			&o.Amount, &o.Fee, &o.ActualAmount, &o.Status, &o.Source, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
