package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"invest-platform/internal/httputil"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type depositRequestBody struct {
	Amount    string `json:"amount"`
	Channel   string `json:"channel"`
	Reference string `json:"reference"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request, userID string) {
	var req depositRequestBody
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	id, err := h.svc.RequestDeposit(r.Context(), userID, amount, req.Channel, req.Reference)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to create deposit request"})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"request_id": id, "status": "pending"})
}

type withdrawRequestBody struct {
	Amount      string `json:"amount"`
	AccountInfo string `json:"account_info"`
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, userID string) {
	var req withdrawRequestBody
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	id, err := h.svc.RequestWithdraw(r.Context(), userID, amount, req.AccountInfo)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotVerified):
			httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ErrInsufficientBalance):
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		default:
			httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to create withdraw request"})
		}
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"request_id": id, "status": "pending"})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request, userID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, err := h.svc.ListTransactions(r.Context(), userID, r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load transactions"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) ProfitStats(w http.ResponseWriter, r *http.Request, userID string) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "daily"
	}
	stats, err := h.svc.ProfitStatsFor(r.Context(), userID, period, time.Now())
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) DepositHistory(w http.ResponseWriter, r *http.Request, userID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.ListDepositRequests(r.Context(), userID, "", limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load deposit requests"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) WithdrawHistory(w http.ResponseWriter, r *http.Request, userID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.ListWithdrawRequests(r.Context(), userID, "", limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load withdraw requests"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
