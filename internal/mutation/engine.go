// Package mutation applies create, update and delete mutations to the data
// provider and keeps every cached view of the affected records consistent
// in one of three modes: pessimistic, optimistic and undoable.
package mutation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/journal"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/record"
	"github.com/revittco/mutacache/internal/store"
	"github.com/revittco/mutacache/internal/tick"
	"github.com/revittco/mutacache/internal/undo"
)

// DefaultGraceWindow is how long an undoable patch suppresses refetching
// of the keys it touched.
const DefaultGraceWindow = 5 * time.Second

// Outcome describes a settled mutation, for metrics.
type Outcome struct {
	Resource  string
	Operation string
	Mode      Mode
	// Status is one of the store.Status* journal statuses.
	Status   string
	Duration time.Duration
	// Restored and Conflicts count the keys a rollback put back and the
	// keys it invalidated because another write got there first.
	Restored  int
	Conflicts int
}

// Engine holds what every mutation hook shares: the provider, the cache,
// the undo manager and the scheduler that runs next-tick callbacks.
type Engine struct {
	dp      provider.DataProvider
	store   *cache.Store
	undo    *undo.Manager
	sched   tick.Scheduler
	journal *journal.Journal
	logger  *slog.Logger
	mode    Mode
	grace   time.Duration
	observe func(Outcome)

	// mu serialises the snapshot-and-patch and rollback steps of all
	// mutations, so their writes to one key never interleave.
	mu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithJournal records every mutation in j.
func WithJournal(j *journal.Journal) EngineOption {
	return func(e *Engine) { e.journal = j }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithObserver calls fn once per settled mutation.
func WithObserver(fn func(Outcome)) EngineOption {
	return func(e *Engine) { e.observe = fn }
}

// WithDefaultMode sets the mode of hooks and calls that name none.
// Defaults to Pessimistic.
func WithDefaultMode(m Mode) EngineOption {
	return func(e *Engine) { e.mode = m }
}

// WithGraceWindow overrides DefaultGraceWindow.
func WithGraceWindow(d time.Duration) EngineOption {
	return func(e *Engine) { e.grace = d }
}

// New creates an Engine. Callbacks deferred to the next tick run on sched.
func New(dp provider.DataProvider, s *cache.Store, um *undo.Manager, sched tick.Scheduler, opts ...EngineOption) *Engine {
	e := &Engine{
		dp:      dp,
		store:   s,
		undo:    um,
		sched:   sched,
		logger:  slog.Default(),
		mode:    Pessimistic,
		grace:   DefaultGraceWindow,
		observe: func(Outcome) {},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Store returns the cache the engine patches.
func (e *Engine) Store() *cache.Store { return e.store }

// Undo returns the manager undoable mutations wait on.
func (e *Engine) Undo() *undo.Manager { return e.undo }

// DefaultMode returns the engine-wide default mode.
func (e *Engine) DefaultMode() Mode { return e.mode }

// dropOne removes every single-record entry of ids.
func (e *Engine) dropOne(resource string, ids []record.Identifier) {
	for _, id := range record.Dedupe(ids) {
		for _, ent := range e.store.GetByPrefix(cachekey.OnePrefix(resource, id)) {
			e.store.Remove(ent.Key)
		}
	}
}

// invalidate marks every view the mutation could have touched stale.
func (e *Engine) invalidate(resource string, ids []record.Identifier) {
	for _, p := range cachekey.Affected(resource, ids, false) {
		e.store.Invalidate(p)
	}
}

func (e *Engine) begin(m *store.MutationEntry, ids, params any) {
	if err := e.journal.Begin(context.Background(), m, ids, params); err != nil {
		e.logger.Warn("journal begin failed", "mutation_id", m.ID, "error", err)
	}
}

func (e *Engine) settle(m *store.MutationEntry, o Outcome, cause error) {
	if err := e.journal.Settle(context.Background(), m, o.Status, cause); err != nil {
		e.logger.Warn("journal settle failed", "mutation_id", m.ID, "error", err)
	}
	e.observe(o)
}
