package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/readmodel"
)

// LoginRequest accepts either a username or an email as the identifier
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Success     bool                     `json:"success"`
	AccessToken string                   `json:"access_token"`
	TokenType   string                   `json:"token_type"`
	ExpiresAt   time.Time                `json:"expires_at"`
	User        *readmodel.UserReadModel `json:"user"`
}

// Register creates a customer account and signs it in
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req command.RegisterUser
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.commands.RegisterUser(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.queries.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger(r).Info("user registered", zap.Int64("user_id", id))
	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login verifies credentials. Unknown users and wrong passwords look the same.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		respondJSONError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.queries.FindUserForLogin(r.Context(), req.Username)
	if errors.Is(err, query.ErrUserNotFound) {
		respondJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.hasher.Check(req.Password, user.PasswordHash) {
		respondJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !user.IsActive {
		respondJSONError(w, "account is deactivated", http.StatusForbidden)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

// Me returns the signed-in account
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.queries.GetUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req command.UpdateProfile
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = middleware.GetUserID(r.Context())

	if err := h.commands.UpdateProfile(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.queries.GetUser(r.Context(), req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (h *Handlers) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user *readmodel.UserReadModel) {
	token, expiresAt, err := h.jwt.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, status, AuthResponse{
		Success:     true,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	})
}
