package users

import (
	"context"
	"errors"
	"time"

	"invest-platform/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("user not found")
	ErrVerificationPending = errors.New("verification already submitted")
)

type User struct {
	ID                 string          `json:"id"`
	Username           string          `json:"username"`
	Email              string          `json:"email"`
	Balance            decimal.Decimal `json:"balance"`
	FrozenBalance      decimal.Decimal `json:"frozen_balance"`
	InviteCode         string          `json:"invite_code"`
	InviterID          string          `json:"inviter_id,omitempty"`
	RealName           string          `json:"real_name,omitempty"`
	IDCard             string          `json:"id_card,omitempty"`
	VerificationStatus string          `json:"verification_status"`
	Status             string          `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = "id, username, email, balance, frozen_balance, invite_code, coalesce(inviter_id::text, ''), real_name, id_card, verification_status, status, created_at"

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Balance, &u.FrozenBalance, &u.InviteCode, &u.InviterID, &u.RealName, &u.IDCard, &u.VerificationStatus, &u.Status, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (s *Store) GetByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, "select "+userColumns+" from users where id = $1", id))
}

func (s *Store) GetByInviteCode(ctx context.Context, code string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, "select "+userColumns+" from users where invite_code = $1", code))
}

// InviterChain resolves the direct and indirect inviter of a user inside the
// caller's tx. Either may be empty.
func (s *Store) InviterChain(ctx context.Context, tx pgx.Tx, userID string) (direct, indirect string, err error) {
	err = tx.QueryRow(ctx, `
		select coalesce(u.inviter_id::text, ''), coalesce(p.inviter_id::text, '')
		from users u
		left join users p on p.id = u.inviter_id
		where u.id = $1
	`, userID).Scan(&direct, &indirect)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrNotFound
	}
	return direct, indirect, err
}

func (s *Store) SubmitVerification(ctx context.Context, userID, realName, idCard string) error {
	tag, err := s.pool.Exec(ctx, `
		update users
		set real_name = $2, id_card = $3, verification_status = $4, updated_at = now()
		where id = $1 and verification_status in ($5, $6)
	`, userID, realName, idCard,
		string(types.VerificationStatusPending),
		string(types.VerificationStatusUnverified), string(types.VerificationStatusRejected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVerificationPending
	}
	return nil
}

func (s *Store) AuditVerification(ctx context.Context, userID string, approve bool) error {
	next := types.VerificationStatusRejected
	if approve {
		next = types.VerificationStatusVerified
	}
	tag, err := s.pool.Exec(ctx, `
		update users set verification_status = $2, updated_at = now()
		where id = $1 and verification_status = $3
	`, userID, string(next), string(types.VerificationStatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type Invitee struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	CreatedAt     time.Time       `json:"created_at"`
	CommissionSum decimal.Decimal `json:"commission_sum"`
}

// ListInvitees returns directly invited users with the commission each one has
// generated for the inviter.
func (s *Store) ListInvitees(ctx context.Context, inviterID string) ([]Invitee, error) {
	rows, err := s.pool.Query(ctx, `
		select u.id, u.username, u.created_at,
			coalesce((select sum(c.amount) from commissions c where c.inviter_id = $1 and c.invitee_id = u.id), 0)
		from users u
		where u.inviter_id = $1
		order by u.created_at desc
	`, inviterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invitee
	for rows.Next() {
		var inv Invitee
		if err := rows.Scan(&inv.ID, &inv.Username, &inv.CreatedAt, &inv.CommissionSum); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID, ip string) error {
	_, err := s.pool.Exec(ctx, "update users set last_login_at = now(), last_login_ip = $2 where id = $1", userID, ip)
	return err
}

func (s *Store) ListPendingVerifications(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, "select "+userColumns+" from users where verification_status = $1 order by updated_at asc limit $2",
		string(types.VerificationStatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
