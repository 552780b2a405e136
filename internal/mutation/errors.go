package mutation

import "errors"

var (
	// ErrUndone is returned by Handle.Wait for an undoable mutation the
	// user cancelled. No upstream call was made.
	ErrUndone = errors.New("mutation undone")

	// ErrMissingID is returned when a mutation cannot address its record:
	// an update or delete without an id, or an optimistic or undoable
	// create whose data carries no id.
	ErrMissingID = errors.New("mutation requires a record id")

	// ErrNoResource is returned when neither the hook nor the call names a
	// resource.
	ErrNoResource = errors.New("mutation requires a resource")
)
