package positions

import (
	"context"
	"errors"
	"time"

	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("position not found")

type Position struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user_id"`
	ProductID       string               `json:"product_id"`
	Quantity        decimal.Decimal      `json:"quantity"`
	FrozenQuantity  decimal.Decimal      `json:"frozen_quantity"`
	CostPrice       decimal.Decimal      `json:"cost_price"`
	TotalCost       decimal.Decimal      `json:"total_cost"`
	CurrentPrice    decimal.Decimal      `json:"current_price"`
	Profit          decimal.Decimal      `json:"profit"`
	ProfitPercent   decimal.Decimal      `json:"profit_percent"`
	StopProfitPrice decimal.Decimal      `json:"stop_profit_price"`
	StopLossPrice   decimal.Decimal      `json:"stop_loss_price"`
	AutoClose       bool                 `json:"auto_close"`
	Status          types.PositionStatus `json:"status"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const positionColumns = "id, user_id, product_id, quantity, frozen_quantity, cost_price, total_cost, current_price, profit, profit_percent, stop_profit_price, stop_loss_price, auto_close, status, created_at, updated_at"

func scanPosition(row pgx.Row) (Position, error) {
	var p Position
	err := row.Scan(&p.ID, &p.UserID, &p.ProductID, &p.Quantity, &p.FrozenQuantity, &p.CostPrice, &p.TotalCost,
		&p.CurrentPrice, &p.Profit, &p.ProfitPercent, &p.StopProfitPrice, &p.StopLossPrice, &p.AutoClose,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// OpenForUpdate locks the single open position for (user, product). ok is
// false when the user holds no open position in the product.
func (s *Store) OpenForUpdate(ctx context.Context, tx pgx.Tx, userID, productID string) (Position, bool, error) {
	p, err := scanPosition(tx.QueryRow(ctx,
		"select "+positionColumns+" from positions where user_id = $1 and product_id = $2 and status = $3 for update",
		userID, productID, string(types.PositionStatusOpen)))
	if errors.Is(err, ErrNotFound) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, err
	}
	return p, true, nil
}

// GetForUpdate locks a position row by id inside the caller's tx.
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Position, error) {
	return scanPosition(tx.QueryRow(ctx, "select "+positionColumns+" from positions where id = $1 for update", id))
}

func (s *Store) Create(ctx context.Context, tx pgx.Tx, p Position) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		insert into positions (user_id, product_id, quantity, cost_price, total_cost, current_price, profit, profit_percent, stop_profit_price, stop_loss_price, auto_close, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning id
	`, p.UserID, p.ProductID, p.Quantity, p.CostPrice, p.TotalCost, p.CurrentPrice, p.Profit, p.ProfitPercent,
		p.StopProfitPrice, p.StopLossPrice, p.AutoClose, string(p.Status)).Scan(&id)
	return id, err
}

// Save writes back the mutable fields of a position inside the caller's tx.
func (s *Store) Save(ctx context.Context, tx pgx.Tx, p Position) error {
	tag, err := tx.Exec(ctx, `
		update positions
		set quantity = $2, cost_price = $3, total_cost = $4, current_price = $5, profit = $6, profit_percent = $7,
			stop_profit_price = $8, stop_loss_price = $9, status = $10, updated_at = now()
		where id = $1
	`, p.ID, p.Quantity, p.CostPrice, p.TotalCost, p.CurrentPrice, p.Profit, p.ProfitPercent,
		p.StopProfitPrice, p.StopLossPrice, string(p.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListOpenByUser(ctx context.Context, userID string) ([]Position, error) {
	rows, err := s.pool.Query(ctx,
		"select "+positionColumns+" from positions where user_id = $1 and status = $2 order by created_at desc",
		userID, string(types.PositionStatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Position, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx,
		"select "+positionColumns+" from positions where user_id = $1 order by created_at desc limit $2 offset $3",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListOpenIDs returns ids of all open positions, used by the settlement job.
func (s *Store) ListOpenIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "select id from positions where status = $1 order by created_at asc", string(types.PositionStatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
