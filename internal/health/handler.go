package health

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"invest-platform/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Handler struct {
	pool      *pgxpool.Pool
	startedAt time.Time
	httpAddr  string
	mode      string
}

func NewHandler(pool *pgxpool.Pool, startedAt time.Time, httpAddr, mode string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{pool: pool, startedAt: start, httpAddr: httpAddr, mode: mode}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
}

type databaseStats struct {
	Reachable bool      `json:"reachable"`
	PingMs    int64     `json:"ping_ms"`
	Error     string    `json:"error,omitempty"`
	Pool      poolStats `json:"pool"`
}

type poolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}

type fullResponse struct {
	Status     string        `json:"status"`
	Timestamp  string        `json:"timestamp"`
	UptimeSec  int64         `json:"uptime_sec"`
	HTTPAddr   string        `json:"http_addr"`
	Mode       string        `json:"mode"`
	PID        int           `json:"pid"`
	GoVersion  string        `json:"go_version"`
	Goroutines int           `json:"goroutines"`
	Database   databaseStats `json:"database"`
}

func (h *Handler) uptimeSec(now time.Time) int64 {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		uptime = 0
	}
	return int64(uptime.Seconds())
}

func (h *Handler) collectDB(ctx context.Context) databaseStats {
	out := databaseStats{}
	if h.pool == nil {
		out.Error = "pool not configured"
		return out
	}
	stat := h.pool.Stat()
	out.Pool = poolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		AcquireCount:  stat.AcquireCount(),
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	start := time.Now()
	err := h.pool.Ping(pingCtx)
	out.PingMs = time.Since(start).Milliseconds()
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Reachable = true
	return out
}

// Live reports process liveness only.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: h.uptimeSec(now),
	})
}

// Ready reports 503 until the database answers a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	db := h.collectDB(r.Context())
	status := "ok"
	code := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": now.Format(time.RFC3339),
		"database":  db,
	})
}

// Full is the diagnostic endpoint with runtime and pool detail.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	db := h.collectDB(r.Context())
	status := "ok"
	code := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, fullResponse{
		Status:     status,
		Timestamp:  now.Format(time.RFC3339),
		UptimeSec:  h.uptimeSec(now),
		HTTPAddr:   h.httpAddr,
		Mode:       h.mode,
		PID:        os.Getpid(),
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		Database:   db,
	})
}
