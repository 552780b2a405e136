package store

import (
	"encoding/json"
	"time"
)

// Journal statuses. A mutation starts pending and settles exactly once.
const (
	StatusPending    = "pending"
	StatusCommitted  = "committed"
	StatusRolledBack = "rolled_back"
	StatusUndone     = "undone"
	StatusFailed     = "failed"
)

// MutationEntry is one journaled mutation.
type MutationEntry struct {
	ID        string          `json:"id"`
	Resource  string          `json:"resource"`
	Operation string          `json:"operation"`
	Mode      string          `json:"mode"`
	Status    string          `json:"status"`
	IDs       json.RawMessage `json:"ids,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int             `json:"latency_ms"`
	CreatedAt time.Time       `json:"created_at"`
	SettledAt *time.Time      `json:"settled_at,omitempty"`
}

// Settlement is the final state written to a pending entry.
type Settlement struct {
	Status    string
	Error     string
	LatencyMs int
	SettledAt time.Time
}

// MutationFilter narrows a journal query. Nil fields match everything.
type MutationFilter struct {
	Resource  *string
	Operation *string
	Mode      *string
	Status    *string
	After     *time.Time
	Before    *time.Time
	Limit     int
	Offset    int
}

// MutationStats aggregates the journal over a time window.
type MutationStats struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	Committed    int     `json:"committed"`
	RolledBack   int     `json:"rolled_back"`
	Undone       int     `json:"undone"`
	Failed       int     `json:"failed"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
