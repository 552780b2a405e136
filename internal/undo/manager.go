// Package undo defers the upstream commit of undoable mutations until an
// external confirm or cancel decision arrives. Decisions are addressed per
// mutation id, so any number of undoable mutations can wait at once.
package undo

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/revittco/mutacache/internal/eventbus"
	"github.com/revittco/mutacache/internal/record"
)

// Decision is the outcome of an undoable mutation. IsUndo cancels it;
// otherwise it is confirmed and committed upstream.
type Decision struct {
	IsUndo bool `json:"is_undo"`
}

var (
	Confirm = Decision{IsUndo: false}
	Undo    = Decision{IsUndo: true}
)

// Status values of a Pending mutation.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusUndone    = "undone"
)

// Pending describes a mutation awaiting its decision.
type Pending struct {
	ID         string              `json:"id"`
	Resource   string              `json:"resource"`
	Operation  string              `json:"operation"`
	IDs        []record.Identifier `json:"ids,omitempty"`
	Status     string              `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	ResolvedAt *time.Time          `json:"resolved_at,omitempty"`
	// ResolvedBy is "user", "emit", "timeout" or "shutdown".
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// Handler receives the decision of one mutation. It runs synchronously on
// the resolving goroutine and must not block.
type Handler func(Decision)

type entry struct {
	p       Pending
	seq     uint64
	handler Handler
	timer   *time.Timer
}

// Manager holds one handler per pending mutation id.
type Manager struct {
	bus         *eventbus.Bus[Event]
	autoConfirm time.Duration
	now         func() time.Time

	mu      sync.Mutex
	seq     uint64
	pending map[string]*entry
	once    []Handler
}

// Option configures a Manager.
type Option func(*Manager)

// WithAutoConfirm confirms a mutation nobody decided on after d. Zero, the
// default, waits indefinitely.
func WithAutoConfirm(d time.Duration) Option {
	return func(m *Manager) { m.autoConfirm = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager publishing to bus, which may be nil.
func NewManager(bus *eventbus.Bus[Event], opts ...Option) *Manager {
	m := &Manager{
		bus:     bus,
		now:     time.Now,
		pending: make(map[string]*entry),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Register stores h as the one-shot handler of p.ID.
func (m *Manager) Register(p Pending, h Handler) error {
	m.mu.Lock()
	if _, ok := m.pending[p.ID]; ok {
		m.mu.Unlock()
		return ErrDuplicate
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now().UTC()
	}
	p.Status = StatusPending
	m.seq++
	e := &entry{p: p, seq: m.seq, handler: h}
	m.pending[p.ID] = e
	if m.autoConfirm > 0 {
		e.timer = time.AfterFunc(m.autoConfirm, func() {
			if err := m.resolve(p.ID, Confirm, "timeout"); err == nil {
				slog.Info("undoable mutation auto-confirmed", "mutation_id", p.ID, "after", m.autoConfirm)
			}
		})
	}
	m.mu.Unlock()

	m.publish("pending", p)
	return nil
}

// Resolve delivers d to the mutation with the given id.
func (m *Manager) Resolve(id string, d Decision) error {
	return m.resolve(id, d, "user")
}

func (m *Manager) resolve(id string, d Decision, by string) error {
	m.mu.Lock()
	e, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	m.fire(e, d, by)
	return nil
}

// Once registers a handler for the next Emit only.
func (m *Manager) Once(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.once = append(m.once, h)
}

// Emit delivers d to every pending mutation, then to the Once handlers,
// and clears them. Confirmations run oldest first; undos run newest first
// so stacked patches unwind in reverse. It returns the number of handlers
// invoked.
func (m *Manager) Emit(d Decision) int {
	m.mu.Lock()
	entries := m.drainLocked()
	once := m.once
	m.once = nil
	m.mu.Unlock()

	if d.IsUndo {
		slices.Reverse(entries)
	}

	for _, e := range entries {
		m.fire(e, d, "emit")
	}
	for _, h := range once {
		h(d)
	}
	return len(entries) + len(once)
}

// ListPending returns the mutations awaiting a decision, oldest first.
func (m *Manager) ListPending() []Pending {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]*entry, 0, len(m.pending))
	for _, e := range m.pending {
		entries = append(entries, e)
	}
	sortEntries(entries)
	out := make([]Pending, len(entries))
	for i, e := range entries {
		out[i] = e.p
	}
	return out
}

// Get returns the pending mutation with the given id.
func (m *Manager) Get(id string) (Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.pending[id]; ok {
		return e.p, true
	}
	return Pending{}, false
}

// Shutdown undoes every pending mutation, so none is committed without a
// decision.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := m.drainLocked()
	m.once = nil
	m.mu.Unlock()

	slices.Reverse(entries)
	for _, e := range entries {
		m.fire(e, Undo, "shutdown")
	}
}

func (m *Manager) drainLocked() []*entry {
	entries := make([]*entry, 0, len(m.pending))
	for _, e := range m.pending {
		entries = append(entries, e)
	}
	m.pending = make(map[string]*entry)
	sortEntries(entries)
	return entries
}

func (m *Manager) fire(e *entry, d Decision, by string) {
	if e.timer != nil {
		e.timer.Stop()
	}
	now := m.now().UTC()
	e.p.ResolvedAt = &now
	e.p.ResolvedBy = by
	e.p.Status = StatusConfirmed
	if d.IsUndo {
		e.p.Status = StatusUndone
	}
	e.handler(d)
	m.publish("resolved", e.p)
}

func (m *Manager) publish(typ string, p Pending) {
	m.bus.Publish(Event{Type: typ, Pending: &p})
}

func sortEntries(entries []*entry) {
	slices.SortFunc(entries, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
}
