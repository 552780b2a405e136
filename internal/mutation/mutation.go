package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/patch"
	"github.com/revittco/mutacache/internal/record"
	"github.com/revittco/mutacache/internal/store"
	"github.com/revittco/mutacache/internal/undo"
)

// MutateFunc issues the upstream call of a mutation.
type MutateFunc[P, R any] func(ctx context.Context, resource string, p P) (R, error)

// Params is implemented by the provider's mutation params.
type Params[P any] interface {
	WithDefaults(defaults P) P
	Snapshot() P
}

// Options configure a mutation hook.
type Options[P, R any] struct {
	// Mode is the hook's mode. Zero uses the engine default.
	Mode Mode

	// OnSuccess receives the upstream result in pessimistic mode and the
	// optimistic result, on the next tick, in the other modes.
	OnSuccess func(data R, p P)
	OnError   func(err error, p P)
	OnSettled func(data R, err error, p P)
	// OnUndo runs when an undoable mutation is cancelled.
	OnUndo func(p P)

	// Middleware wraps the upstream call only. Cache patches and rollback
	// keep using the params the mutation was called with.
	Middleware func(next MutateFunc[P, R]) MutateFunc[P, R]
}

// CallOptions override a hook's Options for one call. Non-nil callbacks
// replace the hook's.
type CallOptions[P, R any] struct {
	Mode      Mode
	OnSuccess func(data R, p P)
	OnError   func(err error, p P)
	OnSettled func(data R, err error, p P)
}

// Status of a mutation hook.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusUndone  Status = "undone"
)

// State is the observable state of a hook's latest call.
type State[P, R any] struct {
	Status    Status
	Data      R
	Error     error
	Params    P
	IsPending bool
}

// Mutation is a mutation hook: a resource, default params and options
// shared by every call.
type Mutation[P Params[P], R any] struct {
	engine   *Engine
	op       operation[P, R]
	resource string
	defaults P
	opts     Options[P, R]

	mu    sync.Mutex
	seq   uint64
	state State[P, R]
}

func newMutation[P Params[P], R any](e *Engine, op operation[P, R], resource string, defaults P, opts Options[P, R]) *Mutation[P, R] {
	return &Mutation[P, R]{
		engine:   e,
		op:       op,
		resource: resource,
		defaults: defaults,
		opts:     opts,
		state:    State[P, R]{Status: StatusIdle},
	}
}

// State returns the state of the latest call.
func (m *Mutation[P, R]) State() State[P, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle follows one call.
type Handle[R any] struct {
	ID   string
	Mode Mode

	optimistic R
	done       chan struct{}
	data       R
	err        error
}

// Optimistic returns the value patched into the cache before the upstream
// call. It is the zero value in pessimistic mode.
func (h *Handle[R]) Optimistic() R { return h.optimistic }

// Done is closed once the mutation settles.
func (h *Handle[R]) Done() <-chan struct{} { return h.done }

// Wait blocks until the mutation settles and returns its result.
func (h *Handle[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-h.done:
		return h.data, h.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (h *Handle[R]) finish(data R, err error) {
	h.data, h.err = data, err
	close(h.done)
}

// run is the immutable record of one call.
type run[P Params[P], R any] struct {
	m        *Mutation[P, R]
	seq      uint64
	id       string
	resource string
	params   P
	ids      []record.Identifier
	mode     Mode
	started  time.Time

	onSuccess func(R, P)
	onError   func(error, P)
	onSettled func(R, error, P)

	snap   *snapshot
	entry  *store.MutationEntry
	handle *Handle[R]
}

// Mutate runs the mutation. params are layered over the hook defaults and
// copied, so later changes by the caller never reach a pending mutation.
// An empty resource uses the hook's.
func (m *Mutation[P, R]) Mutate(ctx context.Context, resource string, params P, call ...CallOptions[P, R]) *Handle[R] {
	var co CallOptions[P, R]
	if len(call) > 0 {
		co = call[0]
	}
	if resource == "" {
		resource = m.resource
	}
	p := params.WithDefaults(m.defaults).Snapshot()

	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	r := &run[P, R]{
		m:         m,
		seq:       seq,
		id:        uuid.NewString(),
		resource:  resource,
		params:    p,
		ids:       m.op.ids(p),
		mode:      firstMode(co.Mode, m.opts.Mode, m.engine.mode),
		started:   time.Now(),
		onSuccess: m.opts.OnSuccess,
		onError:   m.opts.OnError,
		onSettled: m.opts.OnSettled,
	}
	if co.OnSuccess != nil {
		r.onSuccess = co.OnSuccess
	}
	if co.OnError != nil {
		r.onError = co.OnError
	}
	if co.OnSettled != nil {
		r.onSettled = co.OnSettled
	}
	r.handle = &Handle[R]{ID: r.id, Mode: r.mode, done: make(chan struct{})}
	r.start(ctx)
	return r.handle
}

func (r *run[P, R]) start(ctx context.Context) {
	e := r.m.engine
	if r.resource == "" {
		r.reject(ErrNoResource)
		return
	}
	if err := r.m.op.validate(r.params, r.mode); err != nil {
		r.reject(err)
		return
	}

	r.setState(func(s *State[P, R]) {
		s.Status, s.IsPending, s.Params, s.Error = StatusPending, true, r.params, nil
		var zero R
		s.Data = zero
	})
	r.entry = &store.MutationEntry{
		ID:        r.id,
		Resource:  r.resource,
		Operation: r.m.op.name,
		Mode:      string(r.mode),
	}
	e.begin(r.entry, r.ids, r.params)

	if r.mode == Pessimistic {
		go r.pessimistic(ctx)
		return
	}
	r.applyOptimistic()

	bg := context.WithoutCancel(ctx)
	if r.mode == Optimistic {
		go r.commit(bg)
		return
	}
	p := undo.Pending{
		ID:        r.id,
		Resource:  r.resource,
		Operation: r.m.op.name,
		IDs:       r.ids,
	}
	err := e.undo.Register(p, func(d undo.Decision) {
		if d.IsUndo {
			r.undo()
			return
		}
		go r.commit(bg)
	})
	if err != nil {
		e.logger.Error("register undoable mutation", "mutation_id", r.id, "error", err)
		r.rollback(err)
	}
}

// applyOptimistic snapshots the affected keys, cancels fetches racing on
// them, patches the cache and schedules OnSuccess for the next tick.
func (r *run[P, R]) applyOptimistic() {
	e := r.m.engine
	updatedAt := e.store.Now()
	if r.mode == Undoable {
		updatedAt = updatedAt.Add(e.grace)
	}

	e.mu.Lock()
	prefixes := cachekey.Affected(r.resource, r.ids, false)
	r.snap = takeSnapshot(e.store, prefixes)
	for _, p := range prefixes {
		e.store.Cancel(p)
	}
	effect, optimistic := r.m.op.optimistic(e.store, r.resource, r.params)
	written := patch.Apply(e.store, r.resource, effect, cache.WithUpdatedAt(updatedAt))
	r.snap.wrote(e.store, written)
	e.mu.Unlock()

	r.handle.optimistic = optimistic
	e.logger.Debug("optimistic patch applied",
		"mutation_id", r.id,
		"resource", r.resource,
		"operation", r.m.op.name,
		"mode", r.mode,
		"keys", len(written),
	)

	if r.onSuccess != nil {
		onSuccess, params := r.onSuccess, r.params
		e.sched.Schedule(func() { onSuccess(optimistic, params) })
	}
}

func (r *run[P, R]) upstream(ctx context.Context) (R, error) {
	e := r.m.engine
	call := MutateFunc[P, R](func(ctx context.Context, resource string, p P) (R, error) {
		return r.m.op.call(ctx, e.dp, resource, p)
	})
	if mw := r.m.opts.Middleware; mw != nil {
		call = mw(call)
	}
	return call(ctx, r.resource, r.params.Snapshot())
}

func (r *run[P, R]) pessimistic(ctx context.Context) {
	e := r.m.engine
	res, err := r.upstream(ctx)
	if err != nil {
		r.fail(err, store.StatusFailed, 0, 0)
		return
	}

	if effect, ok := r.m.op.committed(r.params, res); ok {
		e.mu.Lock()
		patch.Apply(e.store, r.resource, effect)
		if r.m.op.deletes {
			e.dropOne(r.resource, r.ids)
		}
		e.mu.Unlock()
	}
	r.succeed(res, true)
}

// commit issues the upstream call of an optimistic or confirmed undoable
// mutation and settles it.
func (r *run[P, R]) commit(ctx context.Context) {
	e := r.m.engine
	res, err := r.upstream(ctx)
	if err != nil {
		r.rollback(err)
		return
	}
	if r.m.op.deletes {
		e.mu.Lock()
		e.dropOne(r.resource, r.ids)
		e.mu.Unlock()
	}
	e.invalidate(r.resource, r.ids)
	r.succeed(res, false)
}

func (r *run[P, R]) rollback(cause error) {
	e := r.m.engine
	e.mu.Lock()
	restored, conflicts := r.snap.restore(e.store)
	e.mu.Unlock()
	e.invalidate(r.resource, r.ids)

	e.logger.Info("mutation rolled back",
		"mutation_id", r.id,
		"resource", r.resource,
		"operation", r.m.op.name,
		"restored", restored,
		"conflicts", conflicts,
		"error", cause,
	)
	r.fail(cause, store.StatusRolledBack, restored, conflicts)
}

func (r *run[P, R]) undo() {
	e := r.m.engine
	e.mu.Lock()
	restored, conflicts := r.snap.restore(e.store)
	e.mu.Unlock()

	r.setState(func(s *State[P, R]) {
		s.Status, s.IsPending, s.Error = StatusUndone, false, ErrUndone
	})
	e.settle(r.entry, r.outcome(store.StatusUndone, restored, conflicts), nil)
	if fn := r.m.opts.OnUndo; fn != nil {
		fn(r.params)
	}
	var zero R
	r.handle.finish(zero, ErrUndone)
}

func (r *run[P, R]) succeed(res R, callOnSuccess bool) {
	e := r.m.engine
	r.setState(func(s *State[P, R]) {
		s.Status, s.IsPending, s.Data, s.Error = StatusSuccess, false, res, nil
	})
	e.settle(r.entry, r.outcome(store.StatusCommitted, 0, 0), nil)
	if callOnSuccess && r.onSuccess != nil {
		r.onSuccess(res, r.params)
	}
	if r.onSettled != nil {
		r.onSettled(res, nil, r.params)
	}
	r.handle.finish(res, nil)
}

func (r *run[P, R]) fail(err error, status string, restored, conflicts int) {
	r.setState(func(s *State[P, R]) {
		s.Status, s.IsPending, s.Error = StatusError, false, err
	})
	r.m.engine.settle(r.entry, r.outcome(status, restored, conflicts), err)
	r.callError(err)
}

// reject settles a call that never started: nothing was journaled or
// patched.
func (r *run[P, R]) reject(err error) {
	r.setState(func(s *State[P, R]) {
		s.Status, s.IsPending, s.Params, s.Error = StatusError, false, r.params, err
	})
	r.callError(err)
}

func (r *run[P, R]) callError(err error) {
	var zero R
	if r.onError != nil {
		r.onError(err, r.params)
	}
	if r.onSettled != nil {
		r.onSettled(zero, err, r.params)
	}
	r.handle.finish(zero, err)
}

func (r *run[P, R]) outcome(status string, restored, conflicts int) Outcome {
	return Outcome{
		Resource:  r.resource,
		Operation: r.m.op.name,
		Mode:      r.mode,
		Status:    status,
		Duration:  time.Since(r.started),
		Restored:  restored,
		Conflicts: conflicts,
	}
}

// setState updates the hook state unless a newer call has started.
func (r *run[P, R]) setState(fn func(*State[P, R])) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.seq == r.m.seq {
		fn(&r.m.state)
	}
}
