package products

import (
	"errors"
	"net/http"
	"strconv"

	"invest-platform/internal/httputil"
	"invest-platform/internal/marketdata"
	"invest-platform/internal/types"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	store   *Store
	candles *marketdata.CandleStore
	cache   *marketdata.Cache
}

func NewHandler(store *Store, candles *marketdata.CandleStore, cache *marketdata.Cache) *Handler {
	return &Handler{store: store, candles: candles, cache: cache}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	status := q.Get("status")
	if status == "" {
		status = string(types.ProductStatusActive)
	}
	items, err := h.store.List(r.Context(), ListFilter{
		Category: q.Get("category"),
		Status:   status,
		Sort:     q.Get("sort"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load products"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		p, err = h.store.GetByCode(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "product not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load product"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// Rankings returns active products ordered by popularity, daily change or volume.
func (h *Handler) Rankings(w http.ResponseWriter, r *http.Request) {
	sort := r.URL.Query().Get("by")
	if sort == "" {
		sort = "popularity"
	}
	if sort != "popularity" && sort != "change" && sort != "volume" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid ranking: use popularity, change or volume"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	items, err := h.store.List(r.Context(), ListFilter{Status: string(types.ProductStatusActive), Sort: sort, Limit: limit})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load rankings"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"by": sort, "items": items})
}

// Ticker returns the latest price snapshot, served from the cache when a
// fresh one is there and rebuilt from the product row otherwise.
func (h *Handler) Ticker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		p, err = h.store.GetByCode(r.Context(), id)
	}
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "product not found"})
		return
	}
	t, ok, err := h.cache.GetTicker(r.Context(), p.ID)
	if err != nil || !ok {
		t = marketdata.Ticker{
			ProductID:     p.ID,
			Code:          p.Code,
			Price:         p.CurrentPrice.String(),
			Change:        "0",
			ChangePercent: p.ChangeDaily.String(),
			At:            p.UpdatedAt,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) KLines(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		p, err = h.store.GetByCode(r.Context(), id)
	}
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "product not found"})
		return
	}
	period := types.KLinePeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = types.KLinePeriodDay
	}
	switch period {
	case types.KLinePeriodDay, types.KLinePeriodWeek, types.KLinePeriodMonth, types.KLinePeriodYear:
	default:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid period: use day, week, month or year"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	candles, err := h.candles.ListByPeriod(r.Context(), p.ID, period, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load klines"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"product_id": p.ID, "period": period, "items": candles})
}
