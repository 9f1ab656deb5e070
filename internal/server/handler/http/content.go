package http

import (
	"context"
	"net/http"
	"time"

	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CatalogService defines the checklist, module, prompt and resource
// operations required by ContentHandler.
type CatalogService interface {
	Checklist(ctx context.Context, userID string) (service.ChecklistView, error)
	SetChecklistItem(ctx context.Context, userID, itemID string, completed bool) (models.ChecklistEntry, error)
	Modules(ctx context.Context, userID string) ([]service.ModuleSummary, error)
	Module(ctx context.Context, userID, slug string) (service.ModuleView, error)
	CompleteLesson(ctx context.Context, userID, lessonID string) (time.Time, error)
	UncompleteLesson(ctx context.Context, userID, lessonID string) error
	Note(ctx context.Context, userID, slug string) (models.ModuleNote, error)
	SaveNote(ctx context.Context, userID, slug, body string) (models.ModuleNote, error)
	Prompts(ctx context.Context, userID string) (service.PromptsView, error)
	SavePromptNote(ctx context.Context, userID string, f service.DiscussionForm) (models.DiscussionNote, error)
	Resources(ctx context.Context, userID, kind string) ([]models.Resource, error)
	SetFavorite(ctx context.Context, userID, resourceID string, favorite bool) error
}

// ContentHandler serves the catalog together with the caller's progress.
type ContentHandler struct {
	Catalog CatalogService
	Log     *zap.Logger
}

func (h *ContentHandler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Checklist handles GET /api/checklist.
func (h *ContentHandler) Checklist(w http.ResponseWriter, r *http.Request) {
	v, err := h.Catalog.Checklist(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	h.respond(w, r, v, err)
}

// SetChecklistItem handles PUT /api/checklist/{itemID} with {"completed": bool}.
func (h *ContentHandler) SetChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Completed *bool `json:"completed"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Completed == nil {
		badRequest(w, "invalid request")
		return
	}
	userID := middleware.GetUserIDFromContext(r.Context())
	v, err := h.Catalog.SetChecklistItem(r.Context(), userID, chi.URLParam(r, "itemID"), *req.Completed)
	h.respond(w, r, v, err)
}

// Modules handles GET /api/modules.
func (h *ContentHandler) Modules(w http.ResponseWriter, r *http.Request) {
	v, err := h.Catalog.Modules(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	h.respond(w, r, v, err)
}

// Module handles GET /api/modules/{slug}.
func (h *ContentHandler) Module(w http.ResponseWriter, r *http.Request) {
	v, err := h.Catalog.Module(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "slug"))
	h.respond(w, r, v, err)
}

// CompleteLesson handles PUT /api/lessons/{id}/complete.
func (h *ContentHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	at, err := h.Catalog.CompleteLesson(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	h.respond(w, r, map[string]time.Time{"completed_at": at}, err)
}

// UncompleteLesson handles DELETE /api/lessons/{id}/complete.
func (h *ContentHandler) UncompleteLesson(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.UncompleteLesson(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Note handles GET /api/modules/{slug}/notes.
func (h *ContentHandler) Note(w http.ResponseWriter, r *http.Request) {
	v, err := h.Catalog.Note(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "slug"))
	h.respond(w, r, v, err)
}

// SaveNote handles PUT /api/modules/{slug}/notes with {"body": "..."}.
func (h *ContentHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request")
		return
	}
	v, err := h.Catalog.SaveNote(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "slug"), req.Body)
	h.respond(w, r, v, err)
}

// Prompts handles GET /api/prompts.
func (h *ContentHandler) Prompts(w http.ResponseWriter, r *http.Request) {
	v, err := h.Catalog.Prompts(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	h.respond(w, r, v, err)
}

// SavePromptNote handles PUT /api/prompts/{id}/note with an optional body
// and discussed flag.
func (h *ContentHandler) SavePromptNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body      *string `json:"body"`
		Discussed *bool   `json:"discussed"`
	}
	if err := decodeJSON(r, &req); err != nil || (req.Body == nil && req.Discussed == nil) {
		badRequest(w, "invalid request")
		return
	}
	f := service.DiscussionForm{PromptID: chi.URLParam(r, "id"), Body: req.Body, Discussed: req.Discussed}
	v, err := h.Catalog.SavePromptNote(r.Context(), middleware.GetUserIDFromContext(r.Context()), f)
	h.respond(w, r, v, err)
}

// Resources handles GET /api/resources, optionally filtered by ?kind=.
func (h *ContentHandler) Resources(w http.ResponseWriter, r *http.Request) {
	v, err := h.Catalog.Resources(r.Context(), middleware.GetUserIDFromContext(r.Context()), r.URL.Query().Get("kind"))
	h.respond(w, r, v, err)
}

// AddFavorite handles PUT /api/resources/{id}/favorite.
func (h *ContentHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	h.setFavorite(w, r, true)
}

// RemoveFavorite handles DELETE /api/resources/{id}/favorite.
func (h *ContentHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	h.setFavorite(w, r, false)
}

func (h *ContentHandler) setFavorite(w http.ResponseWriter, r *http.Request, favorite bool) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if err := h.Catalog.SetFavorite(r.Context(), userID, chi.URLParam(r, "id"), favorite); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
