package users

import (
	"errors"
	"net/http"
	"strings"

	"invest-platform/internal/httputil"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request, userID string) {
	u, err := h.store.GetByID(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "user not found"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

type verificationRequest struct {
	RealName string `json:"real_name"`
	IDCard   string `json:"id_card"`
}

func (h *Handler) SubmitVerification(w http.ResponseWriter, r *http.Request, userID string) {
	var req verificationRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	req.RealName = strings.TrimSpace(req.RealName)
	req.IDCard = strings.TrimSpace(req.IDCard)
	if req.RealName == "" || req.IDCard == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "real_name and id_card required"})
		return
	}
	if err := h.store.SubmitVerification(r.Context(), userID, req.RealName, req.IDCard); err != nil {
		if errors.Is(err, ErrVerificationPending) {
			httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to submit verification"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}

func (h *Handler) Invitees(w http.ResponseWriter, r *http.Request, userID string) {
	items, err := h.store.ListInvitees(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load invitees"})
		return
	}
	if items == nil {
		items = []Invitee{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
