// Package repository provides PostgreSQL persistence for users, their
// records and the shared catalog. Every per-user query filters on user_id.
package repository

import (
	"database/sql"
	"errors"

	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/lib/pq"
)

// mapError translates driver errors into model sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503": // foreign_key_violation
			return models.ErrNotFound
		}
	}
	return err
}
