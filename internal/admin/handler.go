package admin

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"invest-platform/internal/httputil"
	"invest-platform/internal/ledger"
	"invest-platform/internal/marketdata"
	"invest-platform/internal/settlement"
	"invest-platform/internal/types"
	"invest-platform/internal/users"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	pool   *pgxpool.Pool
	users  *users.Store
	ledger *ledger.Service
	market *marketdata.Service
	job    *settlement.Job
	logs   *LogStore
	log    *zap.Logger

	secret []byte
	issuer string
	ttl    time.Duration
}

func NewHandler(pool *pgxpool.Pool, userStore *users.Store, ledgerSvc *ledger.Service,
	marketSvc *marketdata.Service, job *settlement.Job, logs *LogStore, log *zap.Logger,
	secret []byte, issuer string, ttl time.Duration) *Handler {
	return &Handler{
		pool:   pool,
		users:  userStore,
		ledger: ledgerSvc,
		market: marketSvc,
		job:    job,
		logs:   logs,
		log:    log,
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
	}
}

func (h *Handler) audit(r *http.Request, module, action string, details map[string]any) {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	h.logs.Record(r.Context(), usernameFrom(r.Context()), module, action, details, ip, r.UserAgent())
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	var hash, role, status string
	err := h.pool.QueryRow(r.Context(),
		"select password_hash, role, status from admin_users where username = $1", req.Username).Scan(&hash, &role, &status)
	if err != nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid credentials"})
		return
	}
	if status != "active" {
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "account disabled"})
		return
	}
	token, err := signToken(h.secret, h.issuer, req.Username, role, h.ttl)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to sign token"})
		return
	}
	_, _ = h.pool.Exec(r.Context(), "update admin_users set last_login_at = now() where username = $1", req.Username)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"token": token, "role": role})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r.Context())
	var role string
	var lastLogin *time.Time
	err := h.pool.QueryRow(r.Context(), "select role, last_login_at from admin_users where username = $1", username).Scan(&role, &lastLogin)
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "admin not found"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"username": username, "role": role, "last_login_at": lastLogin})
}

type productRequest struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	ImageURL       string `json:"image_url"`
	Status         string `json:"status"`
	CurrentPrice   string `json:"current_price"`
	FeeRate        string `json:"fee_rate"`
	MinUnit        string `json:"min_unit"`
	MinTradeAmount string `json:"min_trade_amount"`
	StopProfit     string `json:"stop_profit"`
	StopLoss       string `json:"stop_loss"`
	AutoClose      *bool  `json:"auto_close"`
}

func parseOptionalDecimal(raw, fallback string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.Code == "" || req.Name == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "code and name required"})
		return
	}
	price, err1 := parseOptionalDecimal(req.CurrentPrice, "0")
	feeRate, err2 := parseOptionalDecimal(req.FeeRate, "0.005")
	minUnit, err3 := parseOptionalDecimal(req.MinUnit, "1")
	minAmount, err4 := parseOptionalDecimal(req.MinTradeAmount, "0")
	stopProfit, err5 := parseOptionalDecimal(req.StopProfit, "0")
	stopLoss, err6 := parseOptionalDecimal(req.StopLoss, "0")
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid numeric field"})
			return
		}
	}
	status := req.Status
	if status == "" {
		status = string(types.ProductStatusActive)
	}
	autoClose := true
	if req.AutoClose != nil {
		autoClose = *req.AutoClose
	}
	var id string
	err := h.pool.QueryRow(r.Context(), `
		insert into products (code, name, category, description, image_url, status, current_price, fee_rate, min_unit, min_trade_amount, stop_profit, stop_loss, auto_close)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		returning id
	`, req.Code, req.Name, req.Category, req.Description, req.ImageURL, status,
		price, feeRate, minUnit, minAmount, stopProfit, stopLoss, autoClose).Scan(&id)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "failed to create product (duplicate code?)"})
		return
	}
	h.audit(r, "products", "create", map[string]any{"product_id": id, "code": req.Code})
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"product_id": id})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req productRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	sets := []string{}
	args := []any{id}
	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if req.Name != "" {
		addSet("name", req.Name)
	}
	if req.Category != "" {
		addSet("category", req.Category)
	}
	if req.Description != "" {
		addSet("description", req.Description)
	}
	if req.ImageURL != "" {
		addSet("image_url", req.ImageURL)
	}
	if req.Status != "" {
		switch types.ProductStatus(req.Status) {
		case types.ProductStatusActive, types.ProductStatusSuspended, types.ProductStatusDelisted:
		default:
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid status"})
			return
		}
		addSet("status", req.Status)
	}
	for column, raw := range map[string]string{
		"fee_rate":         req.FeeRate,
		"min_unit":         req.MinUnit,
		"min_trade_amount": req.MinTradeAmount,
		"stop_profit":      req.StopProfit,
		"stop_loss":        req.StopLoss,
	} {
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid " + column})
			return
		}
		addSet(column, v)
	}
	if req.AutoClose != nil {
		addSet("auto_close", *req.AutoClose)
	}
	if len(sets) == 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "nothing to update"})
		return
	}
	query := "update products set " + strings.Join(sets, ", ") + ", updated_at = now() where id = $1"
	tag, err := h.pool.Exec(r.Context(), query, args...)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to update product"})
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "product not found"})
		return
	}
	h.audit(r, "products", "update", map[string]any{"product_id": id})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setPriceRequest struct {
	Price string `json:"price"`
}

// SetPrice is the manual price entry: it updates the product, merges today's
// day candle and pushes the new ticker out.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setPriceRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid price"})
		return
	}
	ticker, err := h.market.RecordPrice(r.Context(), id, price, time.Now())
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	h.audit(r, "products", "set_price", map[string]any{"product_id": id, "price": price.String()})
	httputil.WriteJSON(w, http.StatusOK, ticker)
}

type backfillCandle struct {
	TS     string `json:"ts"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
	Amount string `json:"amount"`
}

type backfillRequest struct {
	Period  string           `json:"period"`
	Candles []backfillCandle `json:"candles"`
}

func (h *Handler) BackfillKLines(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req backfillRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	period := types.KLinePeriod(req.Period)
	switch period {
	case types.KLinePeriodDay, types.KLinePeriodWeek, types.KLinePeriodMonth, types.KLinePeriodYear:
	default:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid period"})
		return
	}
	if len(req.Candles) == 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "candles required"})
		return
	}
	candles := make([]marketdata.Candle, 0, len(req.Candles))
	var prevClose decimal.Decimal
	for i, raw := range req.Candles {
		ts, err := time.Parse("2006-01-02", raw.TS)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid ts, want YYYY-MM-DD"})
			return
		}
		open, err1 := decimal.NewFromString(raw.Open)
		high, err2 := decimal.NewFromString(raw.High)
		low, err3 := decimal.NewFromString(raw.Low)
		closePx, err4 := decimal.NewFromString(raw.Close)
		volume, err5 := parseOptionalDecimal(raw.Volume, "0")
		amount, err6 := parseOptionalDecimal(raw.Amount, "0")
		for _, err := range []error{err1, err2, err3, err4, err5, err6} {
			if err != nil {
				httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid candle values"})
				return
			}
		}
		if i == 0 {
			prevClose = open
		}
		change := closePx.Sub(prevClose)
		changePercent := decimal.Zero
		if prevClose.IsPositive() {
			changePercent = change.Div(prevClose)
		}
		candles = append(candles, marketdata.Candle{
			TS:            ts,
			Open:          open,
			High:          high,
			Low:           low,
			Close:         closePx,
			Volume:        volume,
			Amount:        amount,
			PrevClose:     prevClose,
			Change:        change,
			ChangePercent: changePercent,
		})
		prevClose = closePx
	}
	count, err := h.market.Backfill(r.Context(), id, period, candles)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	h.audit(r, "klines", "backfill", map[string]any{"product_id": id, "period": string(period), "count": count})
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"imported": count})
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(types.RequestStatusPending)
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.ledger.ListDepositRequests(r.Context(), "", status, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load deposit requests"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type auditRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func (h *Handler) AuditDeposit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req auditRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	err := h.ledger.AuditDeposit(r.Context(), id, usernameFrom(r.Context()), req.Note, req.Approve)
	if err != nil {
		writeAuditError(w, err)
		return
	}
	h.audit(r, "deposits", "audit", map[string]any{"request_id": id, "approve": req.Approve})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(types.RequestStatusPending)
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.ledger.ListWithdrawRequests(r.Context(), "", status, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load withdraw requests"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) AuditWithdraw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req auditRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	err := h.ledger.AuditWithdraw(r.Context(), id, usernameFrom(r.Context()), req.Note, req.Approve)
	if err != nil {
		writeAuditError(w, err)
		return
	}
	h.audit(r, "withdrawals", "audit", map[string]any{"request_id": id, "approve": req.Approve})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeAuditError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrRequestNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrAlreadyAudited):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "audit failed"})
	}
}

func (h *Handler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.users.ListPendingVerifications(r.Context(), limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load verifications"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) AuditVerification(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req auditRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.users.AuditVerification(r.Context(), userID, req.Approve); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "no pending verification for user"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "audit failed"})
		return
	}
	h.audit(r, "verifications", "audit", map[string]any{"user_id": userID, "approve": req.Approve})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats is the admin dashboard counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := map[string]any{}
	var totalUsers, verifiedUsers, activeProducts, openPositions int64
	var pendingDeposits, pendingWithdrawals, pendingVerifications int64
	var ordersToday int64
	err := h.pool.QueryRow(ctx, `
		select
			(select count(*) from users),
			(select count(*) from users where verification_status = 'verified'),
			(select count(*) from products where status = 'active'),
			(select count(*) from positions where status = 'open'),
			(select count(*) from deposit_requests where status = 'pending'),
			(select count(*) from withdraw_requests where status = 'pending'),
			(select count(*) from users where verification_status = 'pending'),
			(select count(*) from orders where created_at >= date_trunc('day', now()))
	`).Scan(&totalUsers, &verifiedUsers, &activeProducts, &openPositions,
		&pendingDeposits, &pendingWithdrawals, &pendingVerifications, &ordersToday)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load stats"})
		return
	}
	var feeSum, volumeSum decimal.Decimal
	err = h.pool.QueryRow(ctx,
		"select coalesce(sum(fee), 0), coalesce(sum(amount), 0) from orders where created_at >= date_trunc('day', now())").Scan(&feeSum, &volumeSum)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load stats"})
		return
	}
	out["users"] = map[string]any{"total": totalUsers, "verified": verifiedUsers, "pending_verifications": pendingVerifications}
	out["products"] = map[string]any{"active": activeProducts}
	out["positions"] = map[string]any{"open": openPositions}
	out["requests"] = map[string]any{"pending_deposits": pendingDeposits, "pending_withdrawals": pendingWithdrawals}
	out["orders_today"] = map[string]any{"count": ordersToday, "fee_sum": feeSum, "volume_sum": volumeSum}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, err := h.logs.List(r.Context(), r.URL.Query().Get("module"), limit, offset)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load logs"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// TriggerSettlement runs one settlement pass synchronously.
func (h *Handler) TriggerSettlement(w http.ResponseWriter, r *http.Request) {
	summary, err := h.job.Run(r.Context())
	if err != nil {
		if errors.Is(err, settlement.ErrRunInProgress) {
			httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "settlement failed"})
		return
	}
	h.audit(r, "settlement", "trigger", map[string]any{
		"positions_closed": summary.PositionsClosed,
		"commissions_paid": summary.CommissionsPaid,
	})
	httputil.WriteJSON(w, http.StatusOK, summary)
}
