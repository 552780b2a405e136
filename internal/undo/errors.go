package undo

import "errors"

var (
	// ErrNotFound is returned when no mutation with the given id awaits a
	// decision, either because it never did or because it was resolved.
	ErrNotFound = errors.New("no pending mutation with this id")

	// ErrDuplicate is returned when registering an id already pending.
	ErrDuplicate = errors.New("mutation already pending")
)
