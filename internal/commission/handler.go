package commission

import (
	"net/http"
	"strconv"

	"invest-platform/internal/httputil"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// List returns the commissions the authenticated user has earned as inviter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, err := h.engine.ListByInviter(r.Context(), userID, limit, offset)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load commissions"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
