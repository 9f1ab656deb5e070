package models

import "errors"

var (
	// ErrNotFound reports a missing row, or one the caller does not own.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation.
	ErrConflict = errors.New("already exists")
)
