package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"invest-platform/internal/httputil"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	ctxKeyUsername ctxKey = "admin_username"
	ctxKeyRole     ctxKey = "admin_role"
)

func signToken(secret []byte, issuer, username, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss":   issuer,
		"sub":   username,
		"role":  role,
		"scope": "admin",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func parseToken(secret []byte, issuer, token string) (username, role string, err error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}
	if iss, _ := claims["iss"].(string); iss != issuer {
		return "", "", errors.New("invalid issuer")
	}
	if scope, _ := claims["scope"].(string); scope != "admin" {
		return "", "", errors.New("not an admin token")
	}
	username, _ = claims["sub"].(string)
	role, _ = claims["role"].(string)
	if username == "" {
		return "", "", errors.New("invalid subject")
	}
	return username, role, nil
}

// AuthMiddleware guards admin routes with the admin-scoped JWT.
func AuthMiddleware(secret []byte, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing bearer token"})
				return
			}
			username, role, err := parseToken(secret, issuer, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: err.Error()})
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUsername, username)
			ctx = context.WithValue(ctx, ctxKeyRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func usernameFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUsername).(string)
	return v
}
