package admin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type LogStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewLogStore(pool *pgxpool.Pool, log *zap.Logger) *LogStore {
	return &LogStore{pool: pool, log: log}
}

// Record writes an admin action to the audit log. Best effort, a failure is
// logged but never fails the action itself.
func (s *LogStore) Record(ctx context.Context, username, module, action string, details map[string]any, ip, userAgent string) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	_, err = s.pool.Exec(ctx,
		"insert into admin_logs (admin_username, module, action, details, ip, user_agent) values ($1, $2, $3, $4, $5, $6)",
		username, module, action, payload, ip, userAgent)
	if err != nil {
		s.log.Warn("admin audit log write failed",
			zap.String("admin", username), zap.String("module", module), zap.String("action", action), zap.Error(err))
	}
}

type LogEntry struct {
	ID        string         `json:"id"`
	Admin     string         `json:"admin"`
	Module    string         `json:"module"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *LogStore) List(ctx context.Context, module string, limit, offset int) ([]LogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := "select id, admin_username, module, action, details, ip, user_agent, created_at from admin_logs"
	args := []any{}
	if module != "" {
		query += " where module = $1 order by created_at desc limit $2 offset $3"
		args = append(args, module, limit, offset)
	} else {
		query += " order by created_at desc limit $1 offset $2"
		args = append(args, limit, offset)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LogEntry, 0, limit)
	for rows.Next() {
		var e LogEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.Admin, &e.Module, &e.Action, &details, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			e.Details = map[string]any{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
