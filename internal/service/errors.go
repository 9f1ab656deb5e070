// Package service provides the business logic of NikahPrep: accounts and
// sessions, the finance trackers, catalog progress, couples and
// notifications. Persistence is delegated to repository interfaces.
package service

import (
	"errors"

	"github.com/atinyakov/NikahPrep/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist or is
	// not owned by the caller.
	ErrNotFound = models.ErrNotFound
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = models.ErrConflict
	// ErrForbidden is returned when the caller may not act on a row that
	// exists.
	ErrForbidden = errors.New("forbidden")
)
