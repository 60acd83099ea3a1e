package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"taphouse-backend/internal/token"
)

// AuthHandler staff login and the bearer-token middleware
type AuthHandler struct {
	username string
	password string
	secret   string
	ttl      time.Duration
	logger   *zap.Logger
}

// NewAuthHandler creates the auth handler
func NewAuthHandler(username, password, secret string, ttl time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		username: username,
		password: password,
		secret:   secret,
		ttl:      ttl,
		logger:   logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in_sec"`
}

// Login issues a JWT for the staff account
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) == 1
	if !userOK || !passOK {
		h.logger.Warn("failed login attempt", zap.String("username", req.Username))
		writeJSON(w, http.StatusUnauthorized, Fail("invalid credentials"))
		return
	}

	signed, err := token.Build(h.secret, req.Username, h.ttl)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(loginResponse{Token: signed, ExpiresIn: int64(h.ttl.Seconds())}))
}

type contextKey string

const actorKey contextKey = "actor"

// RequireAuth guards operator endpoints with a bearer token and records
// the authenticated username for audit actor attribution
func (h *AuthHandler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, Fail("missing bearer token"))
			return
		}
		username, err := token.Parse(h.secret, strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, Fail("invalid or expired token"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey, username)))
	}
}

func actor(r *http.Request) string {
	if v, ok := r.Context().Value(actorKey).(string); ok {
		return v
	}
	return ""
}
