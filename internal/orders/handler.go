package orders

import (
	"errors"
	"net/http"
	"strconv"

	"invest-platform/internal/httputil"
	"invest-platform/internal/ledger"
	"invest-platform/internal/positions"
	"invest-platform/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc       *Service
	positions *positions.Store
}

func NewHandler(svc *Service, positionStore *positions.Store) *Handler {
	return &Handler{svc: svc, positions: positionStore}
}

type placeOrderRequest struct {
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Quantity  string `json:"quantity"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.ProductID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "product_id is required"})
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil || !qty.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid quantity"})
		return
	}
	res, err := h.svc.Place(r.Context(), userID, PlaceRequest{
		ProductID: req.ProductID,
		Type:      types.OrderType(req.Type),
		Quantity:  qty,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ledger.ErrInsufficientBalance),
			errors.Is(err, ErrNotTradable),
			errors.Is(err, ErrBelowMinUnit),
			errors.Is(err, ErrBelowMinAmount),
			errors.Is(err, ErrNoPosition),
			errors.Is(err, ErrInsufficientPosition):
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		default:
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		}
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	items, err := h.svc.ListOrders(r.Context(), userID, ListFilter{
		Type:      q.Get("type"),
		ProductID: q.Get("product_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load orders"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.URL.Query().Get("all") == "true" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		items, err := h.positions.ListByUser(r.Context(), userID, limit, offset)
		if err != nil {
			httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load positions"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}
	items, err := h.positions.ListOpenByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load positions"})
		return
	}
	if items == nil {
		items = []positions.Position{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
