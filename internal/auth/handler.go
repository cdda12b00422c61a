package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"invest-platform/internal/httputil"
	"invest-platform/internal/users"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc   *Service
	users *users.Store
}

func NewHandler(svc *Service, userStore *users.Store) *Handler {
	return &Handler{svc: svc, users: userStore}
}

type registerRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"invite_code"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	userID, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, req.InviteCode)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"user_id": userID})
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	userID, token, err := h.svc.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: err.Error()})
		case errors.Is(err, ErrAccountDisabled):
			httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: err.Error()})
		default:
			httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "login failed"})
		}
		return
	}
	_ = h.users.UpdateLastLogin(r.Context(), userID, clientIP(r))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"token": token, "user_id": userID})
}

// CheckInviteCode lets the registration form validate a code before submit.
func (h *Handler) CheckInviteCode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	u, err := h.users.GetByInviteCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, map[string]any{"valid": false})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to check invite code"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"valid": true, "inviter": u.Username})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
