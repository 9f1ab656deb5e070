// Package http provides the HTTP handlers and routing of the NikahPrep API.
package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/service"
	"go.uber.org/zap"
)

// AuthService defines the account operations required by AuthHandler.
type AuthService interface {
	Register(ctx context.Context, email, displayName, password string) (*models.Session, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	Profile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, p service.ProfileUpdate) (*models.User, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// AuthHandler handles registration, sessions, password resets and the
// caller's profile.
type AuthHandler struct {
	// AuthService performs the underlying account operations.
	AuthService AuthService
	Log         *zap.Logger
}

// RegisterRequest represents the JSON payload for user registration.
type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// Register handles POST /api/auth/register and answers 201 with a session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	sess, err := h.AuthService.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// LoginRequest represents the JSON payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		badRequest(w, "invalid request")
		return
	}
	sess, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /api/auth/refresh. The presented token is rotated.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		badRequest(w, "invalid request")
		return
	}
	sess, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		badRequest(w, "invalid request")
		return
	}
	if err := h.AuthService.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset handles POST /api/auth/password-reset. It answers
// 202 whether or not the email belongs to an account.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		badRequest(w, "invalid request")
		return
	}
	if err := h.AuthService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetPassword handles POST /api/auth/password-reset/confirm.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		badRequest(w, "invalid request")
		return
	}
	if err := h.AuthService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Profile handles GET /api/me.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.AuthService.Profile(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateProfile handles PATCH /api/me.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	u, err := h.AuthService.UpdateProfile(r.Context(), middleware.GetUserIDFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteAccount handles DELETE /api/me.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.DeleteAccount(r.Context(), middleware.GetUserIDFromContext(r.Context())); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
