package products

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	ImageURL       string          `json:"image_url"`
	Status         string          `json:"status"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	FeeRate        decimal.Decimal `json:"fee_rate"`
	MinUnit        decimal.Decimal `json:"min_unit"`
	MinTradeAmount decimal.Decimal `json:"min_trade_amount"`
	StopProfit     decimal.Decimal `json:"stop_profit"`
	StopLoss       decimal.Decimal `json:"stop_loss"`
	AutoClose      bool            `json:"auto_close"`
	ChangeDaily    decimal.Decimal `json:"change_daily"`
	ChangeWeekly   decimal.Decimal `json:"change_weekly"`
	ChangeMonthly  decimal.Decimal `json:"change_monthly"`
	ChangeYearly   decimal.Decimal `json:"change_yearly"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
	DailyVolume    decimal.Decimal `json:"daily_volume"`
	Popularity     int64           `json:"popularity"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const productColumns = "id, code, name, category, description, image_url, status, current_price, fee_rate, min_unit, min_trade_amount, stop_profit, stop_loss, auto_close, change_daily, change_weekly, change_monthly, change_yearly, total_volume, daily_volume, popularity, created_at, updated_at"

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Description, &p.ImageURL, &p.Status,
		&p.CurrentPrice, &p.FeeRate, &p.MinUnit, &p.MinTradeAmount, &p.StopProfit, &p.StopLoss, &p.AutoClose,
		&p.ChangeDaily, &p.ChangeWeekly, &p.ChangeMonthly, &p.ChangeYearly,
		&p.TotalVolume, &p.DailyVolume, &p.Popularity, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (s *Store) GetByID(ctx context.Context, id string) (Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, "select "+productColumns+" from products where id = $1", id))
}

func (s *Store) GetByCode(ctx context.Context, code string) (Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, "select "+productColumns+" from products where code = $1", code))
}

// GetForUpdate locks the product row inside the caller's tx.
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Product, error) {
	return scanProduct(tx.QueryRow(ctx, "select "+productColumns+" from products where id = $1 for update", id))
}

type ListFilter struct {
	Category string
	Status   string
	Sort     string
	Limit    int
	Offset   int
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]Product, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := "select " + productColumns + " from products where 1=1"
	args := []any{}
	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(" and category = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" and status = $%d", len(args))
	}
	switch f.Sort {
	case "popularity":
		query += " order by popularity desc"
	case "change":
		query += " order by change_daily desc"
	case "volume":
		query += " order by total_volume desc"
	default:
		query += " order by created_at desc"
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" limit $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" offset $%d", len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Product, 0, f.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListActive(ctx context.Context) ([]Product, error) {
	return s.List(ctx, ListFilter{Status: string(types.ProductStatusActive), Limit: 200})
}

// BumpVolume adds executed quantity to the volume counters and increments
// popularity, inside the caller's tx.
func (s *Store) BumpVolume(ctx context.Context, tx pgx.Tx, id string, qty decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		"update products set total_volume = total_volume + $2, daily_volume = daily_volume + $2, popularity = popularity + 1, updated_at = now() where id = $1",
		id, qty)
	return err
}
