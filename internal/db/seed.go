package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atinyakov/NikahPrep/internal/content"
)

// Seed upserts the shared catalog inside one transaction. Running it again
// with the same catalog leaves the tables unchanged.
func Seed(ctx context.Context, db *sql.DB, c *content.Catalog) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, it := range c.Checklist {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO checklist_items (id, category, title, description, position)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				category = EXCLUDED.category,
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				position = EXCLUDED.position
		`, it.ID, it.Category, it.Title, it.Description, it.Position); err != nil {
			return fmt.Errorf("seed checklist item %s: %w", it.ID, err)
		}
	}

	for _, m := range c.Modules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO modules (id, slug, title, summary, position)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				slug = EXCLUDED.slug,
				title = EXCLUDED.title,
				summary = EXCLUDED.summary,
				position = EXCLUDED.position
		`, m.ID, m.Slug, m.Title, m.Summary, m.Position); err != nil {
			return fmt.Errorf("seed module %s: %w", m.ID, err)
		}
		for _, l := range m.Lessons {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO lessons (id, module_id, title, body, position)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET
					module_id = EXCLUDED.module_id,
					title = EXCLUDED.title,
					body = EXCLUDED.body,
					position = EXCLUDED.position
			`, l.ID, m.ID, l.Title, l.Body, l.Position); err != nil {
				return fmt.Errorf("seed lesson %s: %w", l.ID, err)
			}
		}
	}

	for _, p := range c.Prompts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO discussion_prompts (id, category, question, position)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				category = EXCLUDED.category,
				question = EXCLUDED.question,
				position = EXCLUDED.position
		`, p.ID, p.Category, p.Question, p.Position); err != nil {
			return fmt.Errorf("seed prompt %s: %w", p.ID, err)
		}
	}

	for _, r := range c.Resources {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resources (id, title, url, kind, description)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				url = EXCLUDED.url,
				kind = EXCLUDED.kind,
				description = EXCLUDED.description
		`, r.ID, r.Title, r.URL, r.Kind, r.Description); err != nil {
			return fmt.Errorf("seed resource %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
