package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/atinyakov/NikahPrep/internal/service"
	"go.uber.org/zap"
)

// DashboardService builds the dashboard of a user.
type DashboardService interface {
	Get(ctx context.Context, userID string) (service.Dashboard, error)
}

// DashboardHandler serves GET /api/dashboard.
type DashboardHandler struct {
	Dashboard DashboardService
	Log       *zap.Logger
}

// Get handles GET /api/dashboard.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.Dashboard.Get(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
