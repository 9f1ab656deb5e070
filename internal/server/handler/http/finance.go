package http

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/atinyakov/NikahPrep/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RecordService defines the finance tracker operations required by
// FinanceHandler.
type RecordService interface {
	Budget(ctx context.Context, userID string) (service.BudgetView, error)
	SaveBudget(ctx context.Context, userID string, values form.Values) (service.BudgetView, error)
	Mahr(ctx context.Context, userID string) (service.MahrView, error)
	SaveMahr(ctx context.Context, userID string, values form.Values) (service.MahrView, error)
	Wedding(ctx context.Context, userID string) (service.WeddingView, error)
	SaveWedding(ctx context.Context, userID string, values form.Values) (service.WeddingView, error)
	Goals(ctx context.Context, userID string) (service.GoalsView, error)
	SaveGoal(ctx context.Context, userID, name string, values form.Values) (service.GoalView, error)
	DeleteGoal(ctx context.Context, userID, name string) error
	ExportCSV(ctx context.Context, userID string, w io.Writer) error
}

// FinanceHandler serves the budget, mahr, wedding budget and savings goals.
// Save endpoints take a flat JSON object of raw form input such as
// {"income_primary": "1,234.50"}; fields left out keep their value.
type FinanceHandler struct {
	Records RecordService
	Log     *zap.Logger
}

// get serves a GET endpoint returning load's result.
func get[V any](h *FinanceHandler, load func(context.Context, string) (V, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := load(r.Context(), middleware.GetUserIDFromContext(r.Context()))
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// put serves a PUT endpoint that saves form input.
func put[V any](h *FinanceHandler, save func(context.Context, string, form.Values) (V, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := decodeValues(r)
		if err != nil {
			badRequest(w, "invalid request")
			return
		}
		v, err := save(r.Context(), middleware.GetUserIDFromContext(r.Context()), values)
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GetBudget handles GET /api/budget.
func (h *FinanceHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	get(h, h.Records.Budget)(w, r)
}

// PutBudget handles PUT /api/budget.
func (h *FinanceHandler) PutBudget(w http.ResponseWriter, r *http.Request) {
	put(h, h.Records.SaveBudget)(w, r)
}

// GetMahr handles GET /api/mahr.
func (h *FinanceHandler) GetMahr(w http.ResponseWriter, r *http.Request) {
	get(h, h.Records.Mahr)(w, r)
}

// PutMahr handles PUT /api/mahr.
func (h *FinanceHandler) PutMahr(w http.ResponseWriter, r *http.Request) {
	put(h, h.Records.SaveMahr)(w, r)
}

// GetWedding handles GET /api/wedding-budget.
func (h *FinanceHandler) GetWedding(w http.ResponseWriter, r *http.Request) {
	get(h, h.Records.Wedding)(w, r)
}

// PutWedding handles PUT /api/wedding-budget.
func (h *FinanceHandler) PutWedding(w http.ResponseWriter, r *http.Request) {
	put(h, h.Records.SaveWedding)(w, r)
}

// ListGoals handles GET /api/savings-goals.
func (h *FinanceHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	get(h, h.Records.Goals)(w, r)
}

// PutGoal handles PUT /api/savings-goals/{name}.
func (h *FinanceHandler) PutGoal(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	put(h, func(ctx context.Context, userID string, values form.Values) (service.GoalView, error) {
		return h.Records.SaveGoal(ctx, userID, name, values)
	})(w, r)
}

// DeleteGoal handles DELETE /api/savings-goals/{name}.
func (h *FinanceHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if err := h.Records.DeleteGoal(r.Context(), userID, chi.URLParam(r, "name")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportCSV handles GET /api/export/finance.csv.
func (h *FinanceHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Records.ExportCSV(r.Context(), middleware.GetUserIDFromContext(r.Context()), &buf); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="finance.csv"`)
	_, _ = buf.WriteTo(w)
}
