package mutation

import (
	"fmt"
	"strings"
)

// Mode selects when a mutation reaches the cache relative to the upstream
// call.
type Mode string

const (
	// Pessimistic patches the cache from the upstream response.
	Pessimistic Mode = "pessimistic"
	// Optimistic patches the cache first and rolls back on failure.
	Optimistic Mode = "optimistic"
	// Undoable patches the cache first and defers the upstream call until
	// the mutation is confirmed.
	Undoable Mode = "undoable"
)

// ParseMode parses a mode name. The empty string parses as the zero Mode,
// which defers to the next level of defaults.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", Pessimistic, Optimistic, Undoable:
		return m, nil
	}
	return "", fmt.Errorf("unknown mutation mode %q", s)
}

func (m Mode) optimistic() bool { return m == Optimistic || m == Undoable }

func firstMode(modes ...Mode) Mode {
	for _, m := range modes {
		if m != "" {
			return m
		}
	}
	return Pessimistic
}
