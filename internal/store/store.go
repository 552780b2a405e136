package store

import (
	"context"
	"time"
)

// Store is the composite interface for all data access.
type Store interface {
	MutationStore
	Tx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
	Close() error
}

// MutationStore manages the mutation journal.
type MutationStore interface {
	InsertMutation(ctx context.Context, m *MutationEntry) error
	SettleMutation(ctx context.Context, id string, s Settlement) error
	GetMutation(ctx context.Context, id string) (*MutationEntry, error)
	QueryMutations(ctx context.Context, f MutationFilter) ([]MutationEntry, int, error)
	GetMutationStats(ctx context.Context, after, before time.Time) (*MutationStats, error)
	PruneMutations(ctx context.Context, before time.Time) (int, error)
}
