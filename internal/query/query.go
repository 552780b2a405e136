// Package query is the read side of the engine: it serves getOne, getList,
// getMany, getManyReference and getInfiniteList from the cache, fetching
// from the data provider when an entry is missing or stale.
package query

import (
	"context"
	"fmt"

	"github.com/revittco/mutacache/internal/aggregate"
	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/record"
)

// Reader reads through the cache.
type Reader struct {
	dp    provider.DataProvider
	store *cache.Store
	agg   *aggregate.Aggregator
}

// NewReader creates a Reader. getMany reads are batched through agg.
func NewReader(dp provider.DataProvider, store *cache.Store, agg *aggregate.Aggregator) *Reader {
	return &Reader{dp: dp, store: store, agg: agg}
}

func fetchAs[T any](ctx context.Context, store *cache.Store, key cache.Key, load func(ctx context.Context) (T, error)) (T, error) {
	v, err := store.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache entry %s holds %T", key, v)
	}
	return t, nil
}

// GetOne reads a single record.
func (r *Reader) GetOne(ctx context.Context, resource string, id record.Identifier, meta map[string]any) (record.Record, error) {
	return fetchAs(ctx, r.store, cachekey.One(resource, id, meta), func(ctx context.Context) (record.Record, error) {
		res, err := r.dp.GetOne(provider.CallContext(ctx, r.dp), resource, provider.GetOneParams{ID: id, Meta: meta})
		return res.Data, err
	})
}

// GetList reads one page of a list.
func (r *Reader) GetList(ctx context.Context, resource string, p provider.GetListParams) (record.List, error) {
	return fetchAs(ctx, r.store, cachekey.List(resource, p), func(ctx context.Context) (record.List, error) {
		res, err := r.dp.GetList(provider.CallContext(ctx, r.dp), resource, p)
		return res.List(), err
	})
}

// GetManyReference reads the records of resource referencing p.ID.
func (r *Reader) GetManyReference(ctx context.Context, resource string, p provider.GetManyReferenceParams) (record.List, error) {
	return fetchAs(ctx, r.store, cachekey.Reference(resource, p), func(ctx context.Context) (record.List, error) {
		res, err := r.dp.GetManyReference(provider.CallContext(ctx, r.dp), resource, p)
		return res.List(), err
	})
}

// GetMany reads records by id. Concurrent calls on one resource share a
// single upstream call. The result is cached under the caller's own key
// unless a write reached that key while the call was running.
func (r *Reader) GetMany(ctx context.Context, resource string, ids []record.Identifier) ([]record.Record, error) {
	key := cachekey.Many(resource, ids, nil)
	if v, ok := r.store.GetFresh(key); ok {
		if records, ok := v.([]record.Record); ok {
			return records, nil
		}
	}

	var before uint64
	if e, ok := r.store.Entry(key); ok {
		before = e.Version
	}
	records, err := r.agg.GetMany(ctx, resource, ids)
	if err != nil {
		return nil, err
	}
	r.store.CompareAndSet(key, records, before)
	return records, nil
}

// GetInfiniteList reads the first page of an infinite list, or every page
// loaded so far when the entry is fresh.
func (r *Reader) GetInfiniteList(ctx context.Context, resource string, p provider.GetListParams) (record.Infinite, error) {
	if p.Pagination.Page < 1 {
		p.Pagination.Page = 1
	}
	return fetchAs(ctx, r.store, cachekey.Infinite(resource, p), func(ctx context.Context) (record.Infinite, error) {
		res, err := r.dp.GetList(provider.CallContext(ctx, r.dp), resource, p)
		if err != nil {
			return record.Infinite{}, err
		}
		return record.Infinite{Pages: []record.List{res.List()}, PageParams: []any{p.Pagination.Page}}, nil
	})
}

// FetchNextPage loads the page after the last one cached and appends it.
// It reports false once the previous page was the last.
func (r *Reader) FetchNextPage(ctx context.Context, resource string, p provider.GetListParams) (record.Infinite, bool, error) {
	key := cachekey.Infinite(resource, p)
	e, ok := r.store.Entry(key)
	if !ok {
		inf, err := r.GetInfiniteList(ctx, resource, p)
		return inf, err == nil, err
	}
	inf, _ := e.Value.(record.Infinite)
	if len(inf.Pages) == 0 || !hasNextPage(inf, p.Pagination.PerPage) {
		return inf, false, nil
	}

	next := len(inf.Pages) + 1
	if last, ok := inf.PageParams[len(inf.PageParams)-1].(int); ok {
		next = last + 1
	}
	p.Pagination.Page = next
	res, err := r.dp.GetList(provider.CallContext(ctx, r.dp), resource, p)
	if err != nil {
		return inf, false, err
	}
	out := record.Infinite{
		Pages:      append(append([]record.List(nil), inf.Pages...), res.List()),
		PageParams: append(append([]any(nil), inf.PageParams...), next),
	}
	if !r.store.CompareAndSet(key, out, e.Version) {
		// A mutation patched the pages meanwhile; keep its value.
		cur, _ := r.store.Get(key)
		inf, _ = cur.(record.Infinite)
		return inf, false, nil
	}
	return out, true, nil
}

func hasNextPage(inf record.Infinite, perPage int) bool {
	last := inf.Pages[len(inf.Pages)-1]
	if last.PageInfo != nil {
		return last.PageInfo.HasNextPage
	}
	if last.Total == nil || perPage <= 0 {
		return false
	}
	loaded := 0
	for _, pg := range inf.Pages {
		loaded += len(pg.Data)
	}
	return loaded < *last.Total
}

// Prefetcher caches records a provider returned on its prefetch side
// channel as single-record entries.
type Prefetcher struct {
	store *cache.Store
}

var _ provider.PrefetchWriter = (*Prefetcher)(nil)

// NewPrefetcher creates a Prefetcher writing into store.
func NewPrefetcher(store *cache.Store) *Prefetcher {
	return &Prefetcher{store: store}
}

func (p *Prefetcher) Prefetch(resource string, records []record.Record) {
	for _, rec := range records {
		if record.IsEmptyID(rec.ID()) {
			continue
		}
		p.store.Set(cachekey.One(resource, rec.ID(), nil), rec)
	}
}
