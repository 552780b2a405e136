package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revittco/mutacache/internal/aggregate"
	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/journal"
	"github.com/revittco/mutacache/internal/patch"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/provider/memory"
	"github.com/revittco/mutacache/internal/record"
	"github.com/revittco/mutacache/internal/store"
	"github.com/revittco/mutacache/internal/store/sqlite"
	"github.com/revittco/mutacache/internal/tick"
	"github.com/revittco/mutacache/internal/undo"
)

var errUpstream = errors.New("upstream unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine *Engine
	base   *memory.Provider
	store  *cache.Store
	undo   *undo.Manager
	sched  *tick.Manual
	clock  *fakeClock
}

var listParams = provider.GetListParams{
	Pagination: provider.Pagination{Page: 1, PerPage: 10},
	Sort:       provider.Sort{Field: "id", Order: "ASC"},
}

var (
	oneKey  = cachekey.One("posts", 1, nil)
	listKey = cachekey.List("posts", listParams)
	manyKey = cachekey.Many("posts", []record.Identifier{1, 2}, nil)
)

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	f := &fixture{
		base: memory.New(map[string][]record.Record{
			"posts": {
				{"id": 1, "title": "Hello"},
				{"id": 2, "title": "World"},
			},
		}),
		clock: &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		undo:  undo.NewManager(nil),
		sched: tick.NewManual(),
	}
	f.store = cache.New(cache.DefaultConfig(), cache.WithClock(f.clock.Now), cache.WithValidator(patch.Validate))
	f.engine = New(f.base, f.store, f.undo, f.sched, opts...)

	f.store.Set(oneKey, record.Record{"id": 1, "title": "Hello"})
	f.store.Set(listKey, record.List{
		Data:  []record.Record{{"id": 1, "title": "Hello"}, {"id": 2, "title": "World"}},
		Total: record.IntPtr(2),
	})
	f.store.Set(manyKey, []record.Record{{"id": 1, "title": "Hello"}, {"id": 2, "title": "World"}})
	f.store.Set(cachekey.One("comments", 9, nil), record.Record{"id": 9, "post_id": 1})
	return f
}

// values returns every cached value, keyed by its serialised key.
func (f *fixture) values() map[string]any {
	out := make(map[string]any)
	for _, e := range f.store.GetByPrefix(cache.Key{}) {
		out[e.Key.String()] = e.Value
	}
	return out
}

func (f *fixture) title(t *testing.T) string {
	t.Helper()
	v, ok := f.store.Get(oneKey)
	require.True(t, ok, "getOne entry missing")
	return v.(record.Record)["title"].(string)
}

func (f *fixture) waitCalls(t *testing.T, m provider.Method, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.base.CallsTo(m)) == n }, time.Second, time.Millisecond)
}

func wait[R any](t *testing.T, h *Handle[R]) (R, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

func TestPessimistic_CacheUntouchedUntilUpstreamResolves(t *testing.T) {
	f := newFixture(t)
	before := f.values()
	release := f.base.Hold(provider.MethodUpdate)

	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Pessimistic})
	h := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "New"}})
	f.waitCalls(t, provider.MethodUpdate, 1)

	if diff := cmp.Diff(before, f.values()); diff != "" {
		t.Fatalf("cache changed before upstream resolved (-before +now):\n%s", diff)
	}
	assert.True(t, m.State().IsPending)

	release()
	got, err := wait(t, h)
	require.NoError(t, err)
	assert.Equal(t, "New", got["title"])
	assert.Equal(t, "New", f.title(t))

	v, _ := f.store.Get(listKey)
	assert.Equal(t, "New", v.(record.List).Data[0]["title"])
	assert.Equal(t, StatusSuccess, m.State().Status)
}

func TestPessimistic_ErrorLeavesCacheAndCallsOnError(t *testing.T) {
	f := newFixture(t)
	before := f.values()
	f.base.FailNext(provider.MethodDelete, errUpstream)

	var gotErr error
	m := Delete(f.engine, "posts", provider.DeleteParams{}, DeleteOptions{
		OnError: func(err error, _ provider.DeleteParams) { gotErr = err },
	})
	_, err := wait(t, m.Mutate(context.Background(), "", provider.DeleteParams{ID: 1}))

	assert.ErrorIs(t, err, errUpstream)
	assert.ErrorIs(t, gotErr, errUpstream)
	assert.Empty(t, cmp.Diff(before, f.values()))
	assert.Equal(t, StatusError, m.State().Status)
}

func TestPessimistic_DeleteDropsSingleRecord(t *testing.T) {
	f := newFixture(t)
	m := DeleteMany(f.engine, "posts", provider.DeleteManyParams{}, DeleteManyOptions{})
	_, err := wait(t, m.Mutate(context.Background(), "", provider.DeleteManyParams{IDs: []record.Identifier{1}}))
	require.NoError(t, err)

	_, ok := f.store.Get(oneKey)
	assert.False(t, ok)
	v, _ := f.store.Get(listKey)
	l := v.(record.List)
	assert.Len(t, l.Data, 1)
	assert.Equal(t, 1, *l.Total)
}

func TestPessimistic_CreateSeedsSingleRecord(t *testing.T) {
	f := newFixture(t)
	m := Create(f.engine, "posts", provider.CreateParams{}, CreateOptions{})
	got, err := wait(t, m.Mutate(context.Background(), "", provider.CreateParams{Data: record.Record{"title": "Third"}}))
	require.NoError(t, err)
	assert.Equal(t, 3, got["id"])

	v, ok := f.store.Get(cachekey.One("posts", 3, nil))
	require.True(t, ok)
	assert.Equal(t, "Third", v.(record.Record)["title"])
}

func TestOptimistic_RollbackRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		method provider.Method
		run    func(e *Engine, mode Mode) error
	}{
		{"create", provider.MethodCreate, func(e *Engine, mode Mode) error {
			m := Create(e, "posts", provider.CreateParams{}, CreateOptions{Mode: mode})
			_, err := wait(t, m.Mutate(ctx, "", provider.CreateParams{Data: record.Record{"id": 3, "title": "Third"}}))
			return err
		}},
		{"update", provider.MethodUpdate, func(e *Engine, mode Mode) error {
			m := Update(e, "posts", provider.UpdateParams{}, UpdateOptions{Mode: mode})
			_, err := wait(t, m.Mutate(ctx, "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "New"}}))
			return err
		}},
		{"updateMany", provider.MethodUpdateMany, func(e *Engine, mode Mode) error {
			m := UpdateMany(e, "posts", provider.UpdateManyParams{}, UpdateManyOptions{Mode: mode})
			_, err := wait(t, m.Mutate(ctx, "", provider.UpdateManyParams{IDs: []record.Identifier{1, 2}, Data: record.Record{"published": true}}))
			return err
		}},
		{"delete", provider.MethodDelete, func(e *Engine, mode Mode) error {
			m := Delete(e, "posts", provider.DeleteParams{}, DeleteOptions{Mode: mode})
			_, err := wait(t, m.Mutate(ctx, "", provider.DeleteParams{ID: 2}))
			return err
		}},
		{"deleteMany", provider.MethodDeleteMany, func(e *Engine, mode Mode) error {
			m := DeleteMany(e, "posts", provider.DeleteManyParams{}, DeleteManyOptions{Mode: mode})
			_, err := wait(t, m.Mutate(ctx, "", provider.DeleteManyParams{IDs: []record.Identifier{1, 2}}))
			return err
		}},
	}
	for _, tt := range tests {
		for _, mode := range []Mode{Optimistic, Undoable} {
			t.Run(tt.name+"/"+string(mode), func(t *testing.T) {
				f := newFixture(t, autoConfirmUndo(mode))
				before := f.values()
				f.base.FailNext(tt.method, errUpstream)

				err := tt.run(f.engine, mode)
				require.ErrorIs(t, err, errUpstream)

				if diff := cmp.Diff(before, f.values()); diff != "" {
					t.Fatalf("cache after rollback differs (-before +after):\n%s", diff)
				}
			})
		}
	}
}

// autoConfirmUndo confirms undoable mutations as soon as they are
// registered, so table tests can treat both optimistic modes alike.
func autoConfirmUndo(mode Mode) EngineOption {
	return func(e *Engine) {
		if mode != Undoable {
			return
		}
		e.undo = undo.NewManager(nil, undo.WithAutoConfirm(time.Millisecond))
	}
}

func TestOptimistic_PatchesImmediatelyAndInvalidatesOnSuccess(t *testing.T) {
	f := newFixture(t)
	release := f.base.Hold(provider.MethodUpdate)

	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Optimistic})
	h := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "New"}})

	assert.Equal(t, "New", f.title(t))
	assert.Equal(t, record.Record{"id": 1, "title": "New"}, h.Optimistic())
	v, _ := f.store.Get(manyKey)
	assert.Equal(t, "New", v.([]record.Record)[0]["title"])
	e, _ := f.store.Entry(oneKey)
	assert.False(t, e.Invalidated)

	release()
	_, err := wait(t, h)
	require.NoError(t, err)

	e, _ = f.store.Entry(oneKey)
	assert.True(t, e.Invalidated, "committed keys are refetched on next read")
	assert.Equal(t, "New", e.Value.(record.Record)["title"])
	ce, _ := f.store.Entry(cachekey.One("comments", 9, nil))
	assert.False(t, ce.Invalidated, "other resources are untouched")
}

func TestOptimistic_OnSuccessRunsOnNextTick(t *testing.T) {
	f := newFixture(t)
	var got record.Record
	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Optimistic})
	h := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "New"}}, CallOptions[provider.UpdateParams, record.Record]{
		OnSuccess: func(r record.Record, _ provider.UpdateParams) { got = r },
	})
	_, err := wait(t, h)
	require.NoError(t, err)

	assert.Nil(t, got, "OnSuccess must not run synchronously")
	require.Equal(t, 1, f.sched.Tick())
	assert.Equal(t, "New", got["title"])
}

func TestOptimistic_OnSuccessNotBlockedBySharedWindowRead(t *testing.T) {
	base := memory.New(map[string][]record.Record{
		"posts": {{"id": 1, "title": "Hello"}},
		"tags":  {{"id": 7, "name": "go"}},
	})
	release := base.Hold(provider.MethodGetMany)
	defer release()

	s := cache.New(cache.DefaultConfig())
	sched := tick.NewWindow(5 * time.Millisecond)
	agg := aggregate.New(base, s, sched)
	e := New(base, s, undo.NewManager(nil), sched)

	agg.RequestMany("tags", []record.Identifier{7}, func([]record.Record) {}, func(error) {})

	succeeded := make(chan record.Record, 1)
	m := Update(e, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Optimistic})
	h := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "New"}}, CallOptions[provider.UpdateParams, record.Record]{
		OnSuccess: func(r record.Record, _ provider.UpdateParams) { succeeded <- r },
	})

	select {
	case r := <-succeeded:
		assert.Equal(t, "New", r["title"])
	case <-time.After(500 * time.Millisecond):
		t.Fatal("OnSuccess waited on an unrelated getMany in the same tick")
	}
	_, err := wait(t, h)
	require.NoError(t, err)
}

func TestOptimistic_CancelsInFlightFetch(t *testing.T) {
	f := newFixture(t)
	f.store.Invalidate(oneKey)
	release := f.base.Hold(provider.MethodGetOne)
	defer release()

	fetchErr := make(chan error, 1)
	go func() {
		_, err := f.store.Fetch(context.Background(), oneKey, func(ctx context.Context) (any, error) {
			res, err := f.base.GetOne(ctx, "posts", provider.GetOneParams{ID: 1})
			return res.Data, err
		})
		fetchErr <- err
	}()
	require.Eventually(t, func() bool { return f.store.InFlight(oneKey) }, time.Second, time.Millisecond)

	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Undoable})
	m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "New"}})
	release()

	assert.ErrorIs(t, <-fetchErr, cache.ErrCancelled)
	assert.Equal(t, "New", f.title(t), "the cancelled fetch must not overwrite the patch")
}

func TestUndoable_CancelRestoresWithoutUpstream(t *testing.T) {
	f := newFixture(t)
	var undone bool
	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{
		Mode:   Undoable,
		OnUndo: func(provider.UpdateParams) { undone = true },
	})
	h := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "World"}})
	assert.Equal(t, "World", f.title(t))

	require.NoError(t, f.undo.Resolve(h.ID, undo.Undo))
	_, err := wait(t, h)

	assert.ErrorIs(t, err, ErrUndone)
	assert.True(t, undone)
	assert.Equal(t, "Hello", f.title(t))
	assert.Empty(t, f.base.CallsTo(provider.MethodUpdate))
	assert.Equal(t, StatusUndone, m.State().Status)
}

func TestUndoable_ConfirmCallsUpstreamOnceWithCapturedParams(t *testing.T) {
	f := newFixture(t)
	data := record.Record{"title": "World"}
	m := Update(f.engine, "posts", provider.UpdateParams{ID: 1}, UpdateOptions{Mode: Undoable})
	h := m.Mutate(context.Background(), "", provider.UpdateParams{Data: data})

	// The caller reuses its map before the decision arrives.
	data["title"] = "Changed later"
	assert.Empty(t, f.base.CallsTo(provider.MethodUpdate))
	assert.Equal(t, "World", f.title(t))

	require.NoError(t, f.undo.Resolve(h.ID, undo.Confirm))
	_, err := wait(t, h)
	require.NoError(t, err)

	calls := f.base.CallsTo(provider.MethodUpdate)
	require.Len(t, calls, 1)
	p := calls[0].Params.(provider.UpdateParams)
	assert.Equal(t, 1, p.ID)
	assert.Equal(t, "World", p.Data["title"])
}

func TestUndoable_GraceWindowHoldsPatch(t *testing.T) {
	f := newFixture(t)
	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Undoable})
	m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "World"}})

	f.clock.Advance(DefaultGraceWindow - time.Second)
	v, ok := f.store.GetFresh(oneKey)
	require.True(t, ok, "patched entry must stay fresh during the grace window")
	assert.Equal(t, "World", v.(record.Record)["title"])

	f.clock.Advance(time.Second)
	_, ok = f.store.GetFresh(oneKey)
	assert.False(t, ok)
}

func TestUndoable_ConcurrentMutationsResolveIndependently(t *testing.T) {
	f := newFixture(t)
	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Undoable})
	h1 := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "One"}})
	h2 := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 2, Data: record.Record{"title": "Two"}})
	require.Len(t, f.undo.ListPending(), 2)

	require.NoError(t, f.undo.Resolve(h2.ID, undo.Undo))
	require.NoError(t, f.undo.Resolve(h1.ID, undo.Confirm))

	_, err := wait(t, h1)
	require.NoError(t, err)
	_, err = wait(t, h2)
	require.ErrorIs(t, err, ErrUndone)

	v, _ := f.store.Get(listKey)
	data := v.(record.List).Data
	assert.Equal(t, "One", data[0]["title"])
	assert.Equal(t, "World", data[1]["title"])
	assert.Len(t, f.base.CallsTo(provider.MethodUpdate), 1)
}

func TestUndoable_EmitResolvesEveryPendingMutation(t *testing.T) {
	f := newFixture(t)
	m := Delete(f.engine, "posts", provider.DeleteParams{}, DeleteOptions{Mode: Undoable})
	h1 := m.Mutate(context.Background(), "", provider.DeleteParams{ID: 1})
	h2 := m.Mutate(context.Background(), "", provider.DeleteParams{ID: 2})

	assert.Equal(t, 2, f.undo.Emit(undo.Undo))
	_, err1 := wait(t, h1)
	_, err2 := wait(t, h2)
	assert.ErrorIs(t, err1, ErrUndone)
	assert.ErrorIs(t, err2, ErrUndone)

	v, _ := f.store.Get(listKey)
	assert.Len(t, v.(record.List).Data, 2)
}

func TestDelete_KeepsSingleRecordUntilCommitted(t *testing.T) {
	f := newFixture(t)
	m := Delete(f.engine, "posts", provider.DeleteParams{}, DeleteOptions{Mode: Undoable})
	h := m.Mutate(context.Background(), "", provider.DeleteParams{ID: 1})

	v, _ := f.store.Get(listKey)
	l := v.(record.List)
	assert.Len(t, l.Data, 1)
	assert.Equal(t, 1, *l.Total)
	_, ok := f.store.Get(oneKey)
	assert.True(t, ok, "single record survives until the delete is committed")
	assert.Equal(t, "Hello", h.Optimistic()["title"])

	require.NoError(t, f.undo.Resolve(h.ID, undo.Confirm))
	_, err := wait(t, h)
	require.NoError(t, err)
	_, ok = f.store.Get(oneKey)
	assert.False(t, ok)
}

func TestRollback_KeepsLaterWrite(t *testing.T) {
	f := newFixture(t)
	var conflicts int
	f.engine.observe = func(o Outcome) { conflicts += o.Conflicts }

	first := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Undoable})
	h1 := first.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "A"}})

	release := f.base.Hold(provider.MethodUpdate)
	second := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Optimistic})
	h2 := second.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "B"}})

	require.NoError(t, f.undo.Resolve(h1.ID, undo.Undo))
	_, err := wait(t, h1)
	require.ErrorIs(t, err, ErrUndone)

	assert.Equal(t, "B", f.title(t), "undoing the first mutation must not clobber the second")
	e, _ := f.store.Entry(oneKey)
	assert.True(t, e.Invalidated)
	assert.Positive(t, conflicts)

	release()
	_, err = wait(t, h2)
	require.NoError(t, err)
}

func TestMiddleware_WrapsUpstreamOnly(t *testing.T) {
	f := newFixture(t)
	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{
		Mode: Optimistic,
		Middleware: func(next MutateFunc[provider.UpdateParams, record.Record]) MutateFunc[provider.UpdateParams, record.Record] {
			return func(ctx context.Context, resource string, p provider.UpdateParams) (record.Record, error) {
				p.Data["title"] = p.Data["title"].(string) + " (sent)"
				p.Data["edited_by"] = "middleware"
				return next(ctx, resource, p)
			}
		},
	})
	release := f.base.Hold(provider.MethodUpdate)
	h := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "New"}})
	f.waitCalls(t, provider.MethodUpdate, 1)

	assert.Equal(t, "New", f.title(t), "cache patch uses the params as called")
	p := f.base.CallsTo(provider.MethodUpdate)[0].Params.(provider.UpdateParams)
	assert.Equal(t, "New (sent)", p.Data["title"])
	assert.Equal(t, "middleware", p.Data["edited_by"])

	release()
	_, err := wait(t, h)
	require.NoError(t, err)
	assert.Equal(t, "New (sent)", f.base.Records("posts")[0]["title"])
}

func TestCallbacks_CallTimeTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	var calls []string
	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{
		Mode:      Pessimistic,
		OnError:   func(error, provider.UpdateParams) { calls = append(calls, "hook error") },
		OnSettled: func(record.Record, error, provider.UpdateParams) { calls = append(calls, "hook settled") },
	})
	f.base.FailNext(provider.MethodUpdate, errUpstream)
	h := m.Mutate(context.Background(), "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "x"}}, CallOptions[provider.UpdateParams, record.Record]{
		OnError: func(error, provider.UpdateParams) { calls = append(calls, "call error") },
	})
	_, err := wait(t, h)
	require.Error(t, err)
	assert.Equal(t, []string{"call error", "hook settled"}, calls)
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var onErr error
	c := Create(f.engine, "posts", provider.CreateParams{}, CreateOptions{
		Mode:    Optimistic,
		OnError: func(err error, _ provider.CreateParams) { onErr = err },
	})
	_, err := wait(t, c.Mutate(ctx, "", provider.CreateParams{Data: record.Record{"title": "no id"}}))
	assert.ErrorIs(t, err, ErrMissingID)
	assert.ErrorIs(t, onErr, ErrMissingID)
	assert.Empty(t, f.base.CallsTo(provider.MethodCreate))

	u := Update(f.engine, "", provider.UpdateParams{}, UpdateOptions{})
	_, err = wait(t, u.Mutate(ctx, "", provider.UpdateParams{ID: 1}))
	assert.ErrorIs(t, err, ErrNoResource)
	_, err = wait(t, u.Mutate(ctx, "posts", provider.UpdateParams{}))
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestMode_Precedence(t *testing.T) {
	f := newFixture(t, WithDefaultMode(Undoable))
	ctx := context.Background()

	hookDefault := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{})
	h := hookDefault.Mutate(ctx, "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "x"}})
	assert.Equal(t, Undoable, h.Mode)
	f.undo.Emit(undo.Undo)

	hookMode := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{Mode: Optimistic})
	h = hookMode.Mutate(ctx, "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "y"}},
		CallOptions[provider.UpdateParams, record.Record]{Mode: Pessimistic})
	assert.Equal(t, Pessimistic, h.Mode)
	_, err := wait(t, h)
	require.NoError(t, err)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": "", "Undoable": Undoable, " optimistic ": Optimistic, "pessimistic": Pessimistic} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("eager")
	assert.Error(t, err)
}

func TestJournal_RecordsEveryOutcome(t *testing.T) {
	db, err := sqlite.New(context.Background(), t.TempDir()+"/journal.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var mu sync.Mutex
	var outcomes []Outcome
	f := newFixture(t,
		WithJournal(journal.New(db, nil)),
		WithObserver(func(o Outcome) {
			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, o)
		}),
	)
	ctx := context.Background()
	m := Update(f.engine, "posts", provider.UpdateParams{}, UpdateOptions{})

	_, err = wait(t, m.Mutate(ctx, "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "a", "password": "hunter2"}}))
	require.NoError(t, err)

	f.base.FailNext(provider.MethodUpdate, errUpstream)
	_, err = wait(t, m.Mutate(ctx, "", provider.UpdateParams{ID: 1, Data: record.Record{"title": "b"}}, CallOptions[provider.UpdateParams, record.Record]{Mode: Optimistic}))
	require.Error(t, err)

	h := m.Mutate(ctx, "", provider.UpdateParams{ID: 2, Data: record.Record{"title": "c"}}, CallOptions[provider.UpdateParams, record.Record]{Mode: Undoable})
	require.NoError(t, f.undo.Resolve(h.ID, undo.Undo))
	_, err = wait(t, h)
	require.ErrorIs(t, err, ErrUndone)

	statuses := map[string]int{}
	entries, total, err := db.QueryMutations(ctx, store.MutationFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	for _, e := range entries {
		statuses[e.Status]++
		assert.NotContains(t, string(e.Params), "hunter2")
	}
	assert.Equal(t, map[string]int{
		store.StatusCommitted:  1,
		store.StatusRolledBack: 1,
		store.StatusUndone:     1,
	}, statuses)

	got, err := db.GetMutation(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, string(Undoable), got.Mode)
	assert.JSONEq(t, `[2]`, string(got.IDs))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 3)
	assert.Equal(t, store.StatusRolledBack, outcomes[1].Status)
	assert.Positive(t, outcomes[1].Restored)
}
