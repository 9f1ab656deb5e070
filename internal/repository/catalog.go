package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/lib/pq"
)

// PostgresCatalogRepository reads the shared catalog joined with one
// user's progress and keeps that progress.
type PostgresCatalogRepository struct {
	DB *sql.DB
}

// NewPostgresCatalogRepository creates a PostgresCatalogRepository.
func NewPostgresCatalogRepository(db *sql.DB) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{DB: db}
}

// ListChecklist returns every checklist item with the user's completion.
func (r *PostgresCatalogRepository) ListChecklist(ctx context.Context, userID string) ([]models.ChecklistEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT i.id, i.category, i.title, i.description, i.position,
		       COALESCE(p.completed, false), p.completed_at
		FROM checklist_items i
		LEFT JOIN checklist_progress p ON p.item_id = i.id AND p.user_id = $1
		ORDER BY i.position, i.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list checklist: %w", err)
	}
	defer rows.Close()

	var out []models.ChecklistEntry
	for rows.Next() {
		var e models.ChecklistEntry
		if err := rows.Scan(&e.ID, &e.Category, &e.Title, &e.Description, &e.Position, &e.Completed, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetChecklistItem records the completion of an item. completed_at is set
// when completed and cleared otherwise.
func (r *PostgresCatalogRepository) SetChecklistItem(ctx context.Context, userID, itemID string, completed bool) (models.ChecklistEntry, error) {
	var e models.ChecklistEntry
	err := r.DB.QueryRowContext(ctx, `
		WITH p AS (
			INSERT INTO checklist_progress (user_id, item_id, completed, completed_at)
			VALUES ($1, $2, $3, CASE WHEN $3 THEN now() END)
			ON CONFLICT (user_id, item_id) DO UPDATE
			SET completed = EXCLUDED.completed, completed_at = EXCLUDED.completed_at, updated_at = now()
			RETURNING item_id, completed, completed_at
		)
		SELECT i.id, i.category, i.title, i.description, i.position, p.completed, p.completed_at
		FROM p JOIN checklist_items i ON i.id = p.item_id
	`, userID, itemID, completed).Scan(&e.ID, &e.Category, &e.Title, &e.Description, &e.Position, &e.Completed, &e.CompletedAt)
	if err != nil {
		return models.ChecklistEntry{}, fmt.Errorf("set checklist item: %w", mapError(err))
	}
	return e, nil
}

// ListModules returns the modules with the user's lesson counts.
func (r *PostgresCatalogRepository) ListModules(ctx context.Context, userID string) ([]models.ModuleProgress, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT m.id, m.slug, m.title, m.summary, m.position,
		       COUNT(l.id), COUNT(lp.lesson_id)
		FROM modules m
		LEFT JOIN lessons l ON l.module_id = m.id
		LEFT JOIN lesson_progress lp ON lp.lesson_id = l.id AND lp.user_id = $1
		GROUP BY m.id
		ORDER BY m.position, m.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var out []models.ModuleProgress
	for rows.Next() {
		var m models.ModuleProgress
		if err := rows.Scan(&m.ID, &m.Slug, &m.Title, &m.Summary, &m.Position, &m.LessonsTotal, &m.LessonsDone); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetModule fetches a module by slug, without lessons.
func (r *PostgresCatalogRepository) GetModule(ctx context.Context, slug string) (models.Module, error) {
	var m models.Module
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, slug, title, summary, position FROM modules WHERE slug = $1
	`, slug).Scan(&m.ID, &m.Slug, &m.Title, &m.Summary, &m.Position)
	if err != nil {
		return models.Module{}, fmt.Errorf("get module %q: %w", slug, mapError(err))
	}
	return m, nil
}

// ListLessons returns the lessons of the given modules with the user's
// completion time.
func (r *PostgresCatalogRepository) ListLessons(ctx context.Context, userID string, moduleIDs []string) ([]models.Lesson, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT l.id, l.module_id, l.title, l.body, l.position, lp.completed_at
		FROM lessons l
		LEFT JOIN lesson_progress lp ON lp.lesson_id = l.id AND lp.user_id = $1
		WHERE l.module_id = ANY($2)
		ORDER BY l.module_id, l.position, l.id
	`, userID, pq.Array(moduleIDs))
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	var out []models.Lesson
	for rows.Next() {
		var l models.Lesson
		if err := rows.Scan(&l.ID, &l.ModuleID, &l.Title, &l.Body, &l.Position, &l.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CompleteLesson marks a lesson done. Completing twice keeps the first time.
func (r *PostgresCatalogRepository) CompleteLesson(ctx context.Context, userID, lessonID string) (time.Time, error) {
	var at time.Time
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO lesson_progress (user_id, lesson_id) VALUES ($1, $2)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET completed_at = lesson_progress.completed_at
		RETURNING completed_at
	`, userID, lessonID).Scan(&at)
	if err != nil {
		return time.Time{}, fmt.Errorf("complete lesson: %w", mapError(err))
	}
	return at, nil
}

// UncompleteLesson clears the completion of a lesson. It is a no-op when
// the lesson was not completed.
func (r *PostgresCatalogRepository) UncompleteLesson(ctx context.Context, userID, lessonID string) error {
	if _, err := r.DB.ExecContext(ctx, `
		DELETE FROM lesson_progress WHERE user_id = $1 AND lesson_id = $2
	`, userID, lessonID); err != nil {
		return fmt.Errorf("uncomplete lesson: %w", err)
	}
	return nil
}

// ListPrompts returns the discussion prompts with the user's notes.
func (r *PostgresCatalogRepository) ListPrompts(ctx context.Context, userID string) ([]models.PromptEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT d.id, d.category, d.question, d.position, n.body, n.discussed, n.updated_at
		FROM discussion_prompts d
		LEFT JOIN discussion_notes n ON n.prompt_id = d.id AND n.user_id = $1
		ORDER BY d.position, d.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var out []models.PromptEntry
	for rows.Next() {
		var (
			e         models.PromptEntry
			body      sql.NullString
			discussed sql.NullBool
			updated   sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Category, &e.Question, &e.Position, &body, &discussed, &updated); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		if updated.Valid {
			e.Note = &models.DiscussionNote{
				UserID:    userID,
				PromptID:  e.ID,
				Body:      body.String,
				Discussed: discussed.Bool,
				UpdatedAt: updated.Time,
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListResources returns the resources with the user's favorite flag,
// optionally filtered by kind.
func (r *PostgresCatalogRepository) ListResources(ctx context.Context, userID, kind string) ([]models.Resource, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT r.id, r.title, r.url, r.kind, r.description, f.resource_id IS NOT NULL
		FROM resources r
		LEFT JOIN resource_favorites f ON f.resource_id = r.id AND f.user_id = $1
		WHERE $2 = '' OR r.kind = $2
		ORDER BY r.title, r.id
	`, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		var res models.Resource
		if err := rows.Scan(&res.ID, &res.Title, &res.URL, &res.Kind, &res.Description, &res.Favorite); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// SetFavorite adds or removes a resource from the user's favorites.
// Both directions are idempotent.
func (r *PostgresCatalogRepository) SetFavorite(ctx context.Context, userID, resourceID string, favorite bool) error {
	var err error
	if favorite {
		_, err = r.DB.ExecContext(ctx, `
			INSERT INTO resource_favorites (user_id, resource_id) VALUES ($1, $2)
			ON CONFLICT (user_id, resource_id) DO NOTHING
		`, userID, resourceID)
	} else {
		_, err = r.DB.ExecContext(ctx, `
			DELETE FROM resource_favorites WHERE user_id = $1 AND resource_id = $2
		`, userID, resourceID)
	}
	if err != nil {
		return fmt.Errorf("set favorite: %w", mapError(err))
	}
	return nil
}
