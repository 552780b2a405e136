package store

import "errors"

var (
	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the entry already exists (unique constraint).
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indicates the entry was already settled.
	ErrConflict = errors.New("conflict")
)
