package commission

import (
	"context"
	"errors"
	"time"

	"invest-platform/internal/ledger"
	"invest-platform/internal/types"
	"invest-platform/internal/users"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// Two-tier rates applied to the order fee.
	DirectRate   = decimal.RequireFromString("0.10")
	IndirectRate = decimal.RequireFromString("0.05")
)

// TierAmounts splits an order fee into the direct and indirect commission
// amounts at full precision.
func TierAmounts(fee decimal.Decimal) (direct, indirect decimal.Decimal) {
	return fee.Mul(DirectRate), fee.Mul(IndirectRate)
}

// Engine creates and pays referral commissions. FanOut runs inside the order
// tx and credits inviters synchronously; DistributePending is the settlement
// reconciliation pass for records that were left in calculated state.
type Engine struct {
	pool   *pgxpool.Pool
	users  *users.Store
	ledger *ledger.Service
	log    *zap.Logger
}

func NewEngine(pool *pgxpool.Pool, userStore *users.Store, ledgerSvc *ledger.Service, log *zap.Logger) *Engine {
	return &Engine{pool: pool, users: userStore, ledger: ledgerSvc, log: log}
}

// FanOut records and pays the two commission tiers for a buy order inside the
// caller's tx. No-op for users without an inviter or for zero fees.
func (e *Engine) FanOut(ctx context.Context, tx pgx.Tx, buyerID, orderID string, fee decimal.Decimal) error {
	if !fee.IsPositive() {
		return nil
	}
	direct, indirect, err := e.users.InviterChain(ctx, tx, buyerID)
	if err != nil {
		return err
	}
	if direct == "" {
		return nil
	}
	directAmount, indirectAmount := TierAmounts(fee)
	if err := e.payTier(ctx, tx, direct, buyerID, orderID, types.CommissionTierDirect, DirectRate, fee, directAmount); err != nil {
		return err
	}
	if indirect != "" {
		if err := e.payTier(ctx, tx, indirect, buyerID, orderID, types.CommissionTierIndirect, IndirectRate, fee, indirectAmount); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) payTier(ctx context.Context, tx pgx.Tx, inviterID, inviteeID, orderID string, tier types.CommissionTier, rate, base, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	var commissionID string
	err := tx.QueryRow(ctx, `
		insert into commissions (inviter_id, invitee_id, order_id, tier, rate, base_amount, amount, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (order_id, tier) do nothing
		returning id
	`, inviterID, inviteeID, orderID, string(tier), rate, base, amount, string(types.CommissionStatusCalculated)).Scan(&commissionID)
	if errors.Is(err, pgx.ErrNoRows) {
		// already recorded for this order
		return nil
	}
	if err != nil {
		return err
	}
	balance, err := e.ledger.Credit(ctx, tx, inviterID, amount)
	if err != nil {
		return err
	}
	if err := e.ledger.Append(ctx, tx, ledger.Record{
		UserID:      inviterID,
		Type:        types.TransactionTypeCommission,
		Amount:      amount,
		OrderID:     orderID,
		Description: string(tier) + " referral commission",
	}, balance); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "update commissions set status = $2, paid_at = now() where id = $1",
		commissionID, string(types.CommissionStatusPaid))
	return err
}

// DistributePending pays out commissions still in calculated state, each in
// its own tx. One failing record is logged and skipped.
func (e *Engine) DistributePending(ctx context.Context) (paid int, err error) {
	rows, err := e.pool.Query(ctx,
		"select id from commissions where status = $1 order by created_at asc limit 500",
		string(types.CommissionStatusCalculated))
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := e.payOne(ctx, id); err != nil {
			e.log.Warn("commission payout failed", zap.String("commission_id", id), zap.Error(err))
			continue
		}
		paid++
	}
	return paid, nil
}

func (e *Engine) payOne(ctx context.Context, commissionID string) error {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	var inviterID, orderID, tier, status string
	var amount decimal.Decimal
	err = tx.QueryRow(ctx,
		"select inviter_id, order_id, tier, status, amount from commissions where id = $1 for update",
		commissionID).Scan(&inviterID, &orderID, &tier, &status, &amount)
	if err != nil {
		return err
	}
	if status != string(types.CommissionStatusCalculated) {
		return nil
	}
	balance, err := e.ledger.Credit(ctx, tx, inviterID, amount)
	if err != nil {
		return err
	}
	if err := e.ledger.Append(ctx, tx, ledger.Record{
		UserID:      inviterID,
		Type:        types.TransactionTypeCommission,
		Amount:      amount,
		OrderID:     orderID,
		Description: tier + " referral commission",
	}, balance); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "update commissions set status = $2, paid_at = now() where id = $1",
		commissionID, string(types.CommissionStatusPaid))
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type Commission struct {
	ID         string          `json:"id"`
	InviteeID  string          `json:"invitee_id"`
	OrderID    string          `json:"order_id"`
	Tier       string          `json:"tier"`
	Rate       decimal.Decimal `json:"rate"`
	BaseAmount decimal.Decimal `json:"base_amount"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListByInviter returns commissions earned by a user, newest first.
func (e *Engine) ListByInviter(ctx context.Context, inviterID string, limit, offset int) ([]Commission, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := e.pool.Query(ctx, `
		select id, invitee_id, order_id, tier, rate, base_amount, amount, status, paid_at, created_at
		from commissions where inviter_id = $1 order by created_at desc limit $2 offset $3
	`, inviterID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Commission, 0, limit)
	for rows.Next() {
		var c Commission
		if err := rows.Scan(&c.ID, &c.InviteeID, &c.OrderID, &c.Tier, &c.Rate, &c.BaseAmount, &c.Amount, &c.Status, &c.PaidAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
