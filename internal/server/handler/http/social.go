package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CoupleService defines the partner link operations required by
// SocialHandler.
type CoupleService interface {
	Invite(ctx context.Context, userID, email string) (*models.Couple, error)
	Accept(ctx context.Context, userID, coupleID string) (*models.Couple, error)
	Get(ctx context.Context, userID string) (service.CoupleView, error)
	Leave(ctx context.Context, userID string) error
}

// NotificationService defines the notification operations required by
// SocialHandler.
type NotificationService interface {
	List(ctx context.Context, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// SocialHandler serves couple links and notifications.
type SocialHandler struct {
	Couples       CoupleService
	Notifications NotificationService
	Log           *zap.Logger
}

// Invite handles POST /api/couple/invite with {"email": "..."}.
func (h *SocialHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	c, err := h.Couples.Invite(r.Context(), middleware.GetUserIDFromContext(r.Context()), req.Email)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Accept handles POST /api/couple/{id}/accept.
func (h *SocialHandler) Accept(w http.ResponseWriter, r *http.Request) {
	c, err := h.Couples.Accept(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Couple handles GET /api/couple.
func (h *SocialHandler) Couple(w http.ResponseWriter, r *http.Request) {
	v, err := h.Couples.Get(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Leave handles DELETE /api/couple.
func (h *SocialHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.Couples.Leave(r.Context(), middleware.GetUserIDFromContext(r.Context())); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotifications handles GET /api/notifications.
func (h *SocialHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.Notifications.List(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkRead handles POST /api/notifications/{id}/read.
func (h *SocialHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.MarkRead(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *SocialHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.MarkAllRead(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
