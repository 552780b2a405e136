package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revittco/mutacache/internal/aggregate"
	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/provider/memory"
	"github.com/revittco/mutacache/internal/record"
	"github.com/revittco/mutacache/internal/tick"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*Reader, *memory.Provider, *cache.Store, *fixedClock) {
	t.Helper()
	r, base, store, clk, _ := setupWith(t, tick.NewWindow(time.Millisecond))
	return r, base, store, clk
}

func setupWith(t *testing.T, sched tick.Scheduler) (*Reader, *memory.Provider, *cache.Store, *fixedClock, *aggregate.Aggregator) {
	t.Helper()
	clk := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	base := memory.New(map[string][]record.Record{
		"posts": {
			{"id": 1, "title": "Hello", "author_id": 7},
			{"id": 2, "title": "World", "author_id": 7},
			{"id": 3, "title": "Again", "author_id": 8},
		},
	})
	store := cache.New(cache.DefaultConfig(), cache.WithClock(clk.Now))
	dp := provider.Chain(base, provider.Prefetched(NewPrefetcher(store)))
	agg := aggregate.New(dp, store, sched)
	return NewReader(dp, store, agg), base, store, clk, agg
}

func TestReader_GraceWindowSuppressesRefetch(t *testing.T) {
	r, base, store, clk := setup(t)
	ctx := context.Background()
	key := cachekey.One("posts", 1, nil)

	store.Set(key, record.Record{"id": 1, "title": "World"}, cache.WithUpdatedAt(clk.Now().Add(5*time.Second)))

	clk.Advance(4 * time.Second)
	got, err := r.GetOne(ctx, "posts", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "World", got["title"])
	assert.Empty(t, base.CallsTo(provider.MethodGetOne))

	clk.Advance(time.Second)
	got, err = r.GetOne(ctx, "posts", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got["title"], "refetched once the window is over")
	assert.Len(t, base.CallsTo(provider.MethodGetOne), 1)
}

func TestReader_GetListAndReference(t *testing.T) {
	r, _, store, _ := setup(t)
	ctx := context.Background()

	p := provider.GetListParams{Pagination: provider.Pagination{Page: 1, PerPage: 2}, Sort: provider.Sort{Field: "id", Order: "ASC"}}
	l, err := r.GetList(ctx, "posts", p)
	require.NoError(t, err)
	assert.Len(t, l.Data, 2)
	assert.Equal(t, 3, *l.Total)
	_, ok := store.Get(cachekey.List("posts", p))
	assert.True(t, ok)

	ref, err := r.GetManyReference(ctx, "posts", provider.GetManyReferenceParams{Target: "author_id", ID: 7})
	require.NoError(t, err)
	assert.Len(t, ref.Data, 2)
}

func TestReader_GetManyCachesCallerKey(t *testing.T) {
	r, base, store, _ := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var a, b []record.Record
	wg.Add(2)
	go func() { defer wg.Done(); a, _ = r.GetMany(ctx, "posts", []record.Identifier{1, 2}) }()
	go func() { defer wg.Done(); b, _ = r.GetMany(ctx, "posts", []record.Identifier{3}) }()
	wg.Wait()

	assert.Len(t, a, 2)
	assert.Len(t, b, 1)
	assert.LessOrEqual(t, len(base.CallsTo(provider.MethodGetMany)), 2)

	_, ok := store.Get(cachekey.Many("posts", []record.Identifier{1, 2}, nil))
	assert.True(t, ok)
	_, ok = store.Get(cachekey.Many("posts", []record.Identifier{3}, nil))
	assert.True(t, ok)
}

func TestReader_GetManyKeepsConcurrentWrite(t *testing.T) {
	sched := tick.NewManual()
	r, base, store, _, agg := setupWith(t, sched)
	key := cachekey.Many("posts", []record.Identifier{2}, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	for _, id := range []record.Identifier{2, 3} {
		go func() {
			defer wg.Done()
			_, _ = r.GetMany(context.Background(), "posts", []record.Identifier{id})
		}()
	}
	require.Eventually(t, func() bool { return agg.Pending("posts") == 2 }, time.Second, time.Millisecond)

	release := base.Hold(provider.MethodGetMany)
	go sched.Tick()
	require.Eventually(t, func() bool { return len(base.CallsTo(provider.MethodGetMany)) == 1 }, time.Second, time.Millisecond)

	optimistic := []record.Record{{"id": 2, "title": "optimistic"}}
	store.Set(key, optimistic)
	release()
	wg.Wait()

	v, _ := store.Get(key)
	assert.Equal(t, optimistic, v, "a read started before the write must not overwrite it")
	v, ok := store.Get(cachekey.Many("posts", []record.Identifier{3}, nil))
	require.True(t, ok)
	assert.Len(t, v, 1)
}

func TestReader_CancelledGetManyNeverWrites(t *testing.T) {
	r, base, store, _ := setup(t)
	key := cachekey.Many("posts", []record.Identifier{2}, nil)
	release := base.Hold(provider.MethodGetMany)

	errc := make(chan error, 1)
	go func() {
		_, err := r.GetMany(context.Background(), "posts", []record.Identifier{2})
		errc <- err
	}()
	require.Eventually(t, func() bool { return store.InFlight(key) }, time.Second, time.Millisecond)

	store.Cancel(cachekey.Op("posts", cachekey.OpGetMany))
	optimistic := []record.Record{{"id": 2, "title": "optimistic"}}
	store.Set(key, optimistic)
	release()

	assert.ErrorIs(t, <-errc, cache.ErrCancelled)
	v, _ := store.Get(key)
	assert.Equal(t, optimistic, v)
}

func TestReader_InfiniteList(t *testing.T) {
	r, _, _, _ := setup(t)
	ctx := context.Background()
	p := provider.GetListParams{Pagination: provider.Pagination{PerPage: 2}, Sort: provider.Sort{Field: "id", Order: "ASC"}}

	inf, err := r.GetInfiniteList(ctx, "posts", p)
	require.NoError(t, err)
	require.Len(t, inf.Pages, 1)

	inf, more, err := r.FetchNextPage(ctx, "posts", p)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, inf.Pages, 2)
	assert.Equal(t, []any{1, 2}, inf.PageParams)
	assert.Equal(t, 3, inf.Pages[1].Data[0]["id"])

	_, more, err = r.FetchNextPage(ctx, "posts", p)
	require.NoError(t, err)
	assert.False(t, more)
}

func TestPrefetcher(t *testing.T) {
	store := cache.New(cache.DefaultConfig())
	NewPrefetcher(store).Prefetch("authors", []record.Record{{"id": 7, "name": "Ann"}, {"name": "no id"}})

	v, ok := store.Get(cachekey.One("authors", "7", nil))
	require.True(t, ok)
	assert.Equal(t, "Ann", v.(record.Record)["name"])
	assert.Equal(t, 1, store.Len())
}
