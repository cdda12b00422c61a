package ledger

import (
	"context"
	"errors"
	"time"

	"invest-platform/internal/events"
	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotVerified     = errors.New("identity verification required")
	ErrRequestNotFound = errors.New("request not found")
	ErrAlreadyAudited  = errors.New("request already audited")
)

type DepositRequest struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Channel   string          `json:"channel"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	AuditedBy string          `json:"audited_by,omitempty"`
	AuditNote string          `json:"audit_note,omitempty"`
	AuditedAt *time.Time      `json:"audited_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type WithdrawRequest struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	AccountInfo string          `json:"account_info"`
	Status      string          `json:"status"`
	AuditedBy   string          `json:"audited_by,omitempty"`
	AuditNote   string          `json:"audit_note,omitempty"`
	AuditedAt   *time.Time      `json:"audited_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RequestDeposit files a pending deposit. Money only moves when an admin
// approves it.
func (s *Service) RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal, channel, reference string) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	var id string
	err := s.pool.QueryRow(ctx,
		"insert into deposit_requests (user_id, amount, channel, reference) values ($1, $2, $3, $4) returning id",
		userID, amount, channel, reference).Scan(&id)
	return id, err
}

// RequestWithdraw freezes the amount and files a pending withdrawal. Requires
// a verified account.
func (s *Service) RequestWithdraw(ctx context.Context, userID string, amount decimal.Decimal, accountInfo string) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	var status string
	if err := s.pool.QueryRow(ctx, "select verification_status from users where id = $1", userID).Scan(&status); err != nil {
		return "", err
	}
	if status != string(types.VerificationStatusVerified) {
		return "", ErrNotVerified
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)
	if _, _, err := s.LockBalance(ctx, tx, userID); err != nil {
		return "", err
	}
	balance, err := s.Freeze(ctx, tx, userID, amount)
	if err != nil {
		return "", err
	}
	if err := s.Append(ctx, tx, Record{
		UserID:      userID,
		Type:        types.TransactionTypeFreeze,
		Amount:      amount.Neg(),
		Description: "withdraw request hold",
	}, balance); err != nil {
		return "", err
	}
	var id string
	err = tx.QueryRow(ctx,
		"insert into withdraw_requests (user_id, amount, account_info) values ($1, $2, $3) returning id",
		userID, amount, accountInfo).Scan(&id)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// AuditDeposit approves or rejects a pending deposit. Approval credits the
// balance and appends a deposit transaction in the same tx.
func (s *Service) AuditDeposit(ctx context.Context, requestID, admin, note string, approve bool) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	var userID, status string
	var amount decimal.Decimal
	err = tx.QueryRow(ctx, "select user_id, amount, status from deposit_requests where id = $1 for update", requestID).Scan(&userID, &amount, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRequestNotFound
	}
	if err != nil {
		return err
	}
	if status != string(types.RequestStatusPending) {
		return ErrAlreadyAudited
	}
	next := types.RequestStatusRejected
	if approve {
		next = types.RequestStatusApproved
		if _, _, err := s.LockBalance(ctx, tx, userID); err != nil {
			return err
		}
		balance, err := s.Credit(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		if err := s.Append(ctx, tx, Record{
			UserID:      userID,
			Type:        types.TransactionTypeDeposit,
			Amount:      amount,
			Description: "deposit approved",
		}, balance); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx,
		"update deposit_requests set status = $2, audited_by = $3, audit_note = $4, audited_at = now() where id = $1",
		requestID, string(next), admin, note)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.publishAudit(events.TypeDepositAudited, requestID, userID, amount, approve)
	return nil
}

// AuditWithdraw approves or rejects a pending withdrawal. Approval burns the
// frozen hold, rejection releases it back to balance.
func (s *Service) AuditWithdraw(ctx context.Context, requestID, admin, note string, approve bool) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	var userID, status string
	var amount decimal.Decimal
	err = tx.QueryRow(ctx, "select user_id, amount, status from withdraw_requests where id = $1 for update", requestID).Scan(&userID, &amount, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRequestNotFound
	}
	if err != nil {
		return err
	}
	if status != string(types.RequestStatusPending) {
		return ErrAlreadyAudited
	}
	if _, _, err := s.LockBalance(ctx, tx, userID); err != nil {
		return err
	}
	next := types.RequestStatusRejected
	if approve {
		next = types.RequestStatusApproved
		balance, err := s.DebitFrozen(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		if err := s.Append(ctx, tx, Record{
			UserID:      userID,
			Type:        types.TransactionTypeWithdraw,
			Amount:      amount.Neg(),
			Description: "withdraw approved",
		}, balance); err != nil {
			return err
		}
	} else {
		balance, err := s.Unfreeze(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		if err := s.Append(ctx, tx, Record{
			UserID:      userID,
			Type:        types.TransactionTypeUnfreeze,
			Amount:      amount,
			Description: "withdraw rejected",
		}, balance); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx,
		"update withdraw_requests set status = $2, audited_by = $3, audit_note = $4, audited_at = now() where id = $1",
		requestID, string(next), admin, note)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.publishAudit(events.TypeWithdrawAudited, requestID, userID, amount, approve)
	return nil
}

// publishAudit reports an audit decision after the tx committed. Best effort.
func (s *Service) publishAudit(eventType, requestID, userID string, amount decimal.Decimal, approved bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.events.Publish(ctx, events.Event{
		Type: eventType,
		Data: map[string]any{
			"request_id": requestID,
			"user_id":    userID,
			"amount":     amount.String(),
			"approved":   approved,
		},
	})
	if err != nil {
		s.log.Warn("audit event publish failed",
			zap.String("type", eventType), zap.String("request_id", requestID), zap.Error(err))
	}
}

func (s *Service) ListDepositRequests(ctx context.Context, userID, status string, limit int) ([]DepositRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := "select id, user_id, amount, channel, reference, status, audited_by, audit_note, audited_at, created_at from deposit_requests"
	var args []any
	switch {
	case userID != "" && status != "":
		query += " where user_id = $1 and status = $2 order by created_at desc limit $3"
		args = []any{userID, status, limit}
	case userID != "":
		query += " where user_id = $1 order by created_at desc limit $2"
		args = []any{userID, limit}
	case status != "":
		query += " where status = $1 order by created_at asc limit $2"
		args = []any{status, limit}
	default:
		query += " order by created_at desc limit $1"
		args = []any{limit}
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]DepositRequest, 0, limit)
	for rows.Next() {
		var d DepositRequest
		if err := rows.Scan(&d.ID, &d.UserID, &d.Amount, &d.Channel, &d.Reference, &d.Status, &d.AuditedBy, &d.AuditNote, &d.AuditedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Service) ListWithdrawRequests(ctx context.Context, userID, status string, limit int) ([]WithdrawRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := "select id, user_id, amount, account_info, status, audited_by, audit_note, audited_at, created_at from withdraw_requests"
	var args []any
	switch {
	case userID != "" && status != "":
		query += " where user_id = $1 and status = $2 order by created_at desc limit $3"
		args = []any{userID, status, limit}
	case userID != "":
		query += " where user_id = $1 order by created_at desc limit $2"
		args = []any{userID, limit}
	case status != "":
		query += " where status = $1 order by created_at asc limit $2"
		args = []any{status, limit}
	default:
		query += " order by created_at desc limit $1"
		args = []any{limit}
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]WithdrawRequest, 0, limit)
	for rows.Next() {
		var wr WithdrawRequest
		if err := rows.Scan(&wr.ID, &wr.UserID, &wr.Amount, &wr.AccountInfo, &wr.Status, &wr.AuditedBy, &wr.AuditNote, &wr.AuditedAt, &wr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, wr)
	}
	return out, rows.Err()
}
