// Package journal records every mutation with its redacted parameters and
// its final outcome, and fans the entries out to live subscribers.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/revittco/mutacache/internal/eventbus"
	"github.com/revittco/mutacache/internal/store"
)

// Journal writes mutation entries with parameter redaction. A nil Journal
// discards everything.
type Journal struct {
	store  store.MutationStore
	bus    *eventbus.Bus[store.MutationEntry]
	hints  []string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithRedactionHints adds key substrings to redact on top of the global
// patterns.
func WithRedactionHints(hints ...string) Option {
	return func(j *Journal) { j.hints = append(j.hints, hints...) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// New creates a Journal. The bus parameter is optional (nil-safe).
func New(s store.MutationStore, bus *eventbus.Bus[store.MutationEntry], opts ...Option) *Journal {
	j := &Journal{store: s, bus: bus, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Begin inserts m as pending. params and ids are encoded to JSON, params
// after redaction.
func (j *Journal) Begin(ctx context.Context, m *store.MutationEntry, ids, params any) error {
	if j == nil {
		return nil
	}
	m.Status = store.StatusPending
	if m.CreatedAt.IsZero() {
		m.CreatedAt = j.now().UTC()
	}
	m.IDs = j.encode(ids, "[]")
	m.Params = Redact(j.encode(params, "{}"), j.hints)

	if err := j.store.InsertMutation(ctx, m); err != nil {
		return fmt.Errorf("insert mutation: %w", err)
	}
	j.bus.Publish(*m)
	return nil
}

// Settle records the final status of m. cause may be nil.
func (j *Journal) Settle(ctx context.Context, m *store.MutationEntry, status string, cause error) error {
	if j == nil {
		return nil
	}
	now := j.now().UTC()
	s := store.Settlement{
		Status:    status,
		LatencyMs: int(now.Sub(m.CreatedAt).Milliseconds()),
		SettledAt: now,
	}
	if cause != nil {
		s.Error = cause.Error()
	}
	if err := j.store.SettleMutation(ctx, m.ID, s); err != nil {
		return fmt.Errorf("settle mutation %s: %w", m.ID, err)
	}
	m.Status = s.Status
	m.Error = s.Error
	m.LatencyMs = s.LatencyMs
	m.SettledAt = &now
	j.bus.Publish(*m)
	return nil
}

// Bus returns the bus entries are published on, or nil.
func (j *Journal) Bus() *eventbus.Bus[store.MutationEntry] {
	if j == nil {
		return nil
	}
	return j.bus
}

func (j *Journal) encode(v any, fallback string) json.RawMessage {
	if v == nil {
		return json.RawMessage(fallback)
	}
	data, err := json.Marshal(v)
	if err != nil {
		j.logger.Debug("journal: value not encodable", "error", err)
		return json.RawMessage(fallback)
	}
	return data
}
