// Package aggregate merges getMany requests for the same resource that
// arrive within one tick into a single upstream call.
package aggregate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/record"
	"github.com/revittco/mutacache/internal/tick"
)

// Flush describes one flushed batch, for metrics.
type Flush struct {
	Resource string
	Callers  int
	IDs      int
	// Upstream is false when the batch resolved without a provider call.
	Upstream bool
	// Reused is true when the call ran under a caller's own getMany key.
	Reused bool
	Err    error
}

type request struct {
	ids     []record.Identifier
	resolve func([]record.Record)
	reject  func(error)
}

type batch struct {
	resource string
	requests []request
}

// Aggregator owns the pending batch of every resource. A batch is created
// by the first request of a tick and flushed when the tick ends.
type Aggregator struct {
	dp      provider.DataProvider
	store   *cache.Store
	sched   tick.Scheduler
	logger  *slog.Logger
	observe func(Flush)
	ctx     context.Context

	mu      sync.Mutex
	batches map[string]*batch
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithObserver calls fn after every flush.
func WithObserver(fn func(Flush)) Option {
	return func(a *Aggregator) { a.observe = fn }
}

// WithContext sets the ctx upstream calls run under. Batches are shared
// by several callers, so no single caller's ctx is used.
func WithContext(ctx context.Context) Option {
	return func(a *Aggregator) { a.ctx = ctx }
}

// New creates an Aggregator flushing through sched.
func New(dp provider.DataProvider, store *cache.Store, sched tick.Scheduler, opts ...Option) *Aggregator {
	a := &Aggregator{
		dp:      dp,
		store:   store,
		sched:   sched,
		logger:  slog.Default(),
		observe: func(Flush) {},
		ctx:     context.Background(),
		batches: make(map[string]*batch),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RequestMany registers interest in ids of resource. Exactly one of
// resolve and reject is called once the tick's batch is flushed.
func (a *Aggregator) RequestMany(resource string, ids []record.Identifier, resolve func([]record.Record), reject func(error)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.batches[resource]
	if !ok {
		b = &batch{resource: resource}
		a.batches[resource] = b
		a.sched.Schedule(func() { a.flush(resource, b) })
	}
	b.requests = append(b.requests, request{ids: ids, resolve: resolve, reject: reject})
}

// Pending returns the number of requests waiting in resource's batch.
func (a *Aggregator) Pending(resource string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.batches[resource]; ok {
		return len(b.requests)
	}
	return 0
}

type manyResult struct {
	records []record.Record
	err     error
}

// GetMany is the blocking form of RequestMany. Abandoning ctx returns
// early; the batch still completes for the other callers.
func (a *Aggregator) GetMany(ctx context.Context, resource string, ids []record.Identifier) ([]record.Record, error) {
	ch := make(chan manyResult, 1)
	a.RequestMany(resource, ids,
		func(r []record.Record) { ch <- manyResult{records: r} },
		func(err error) { ch <- manyResult{err: err} },
	)
	select {
	case res := <-ch:
		return res.records, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Aggregator) flush(resource string, b *batch) {
	a.mu.Lock()
	if a.batches[resource] == b {
		delete(a.batches, resource)
	}
	reqs := b.requests
	a.mu.Unlock()

	var all []record.Identifier
	for _, r := range reqs {
		all = append(all, r.ids...)
	}
	union := record.Dedupe(all)
	f := Flush{Resource: resource, Callers: len(reqs), IDs: len(union)}
	defer func() { a.observe(f) }()

	if len(union) == 0 {
		for _, r := range reqs {
			r.resolve([]record.Record{})
		}
		return
	}

	f.Upstream = true
	var records []record.Record
	if own := exactCaller(reqs, union); own != nil {
		f.Reused = true
		records, f.Err = a.fetchKeyed(resource, own.ids, union)
	} else {
		records, f.Err = a.fetchUnion(resource, union)
	}

	if f.Err != nil {
		a.logger.Warn("aggregated getMany failed",
			"resource", resource,
			"callers", len(reqs),
			"ids", len(union),
			"error", f.Err,
		)
		for _, r := range reqs {
			r.reject(f.Err)
		}
		return
	}
	for _, r := range reqs {
		r.resolve(filter(records, record.NewIDSet(r.ids)))
	}
}

// exactCaller returns the request whose id set is the whole union.
func exactCaller(reqs []request, union []record.Identifier) *request {
	want := record.NewIDSet(union)
	for i := range reqs {
		if record.NewIDSet(reqs[i].ids).Equal(want) {
			return &reqs[i]
		}
	}
	return nil
}

// fetchKeyed runs the call under the caller's own getMany key, joining an
// identical fetch already in flight.
func (a *Aggregator) fetchKeyed(resource string, own, union []record.Identifier) ([]record.Record, error) {
	v, err := a.store.Fetch(a.ctx, cachekey.Many(resource, own, nil), func(ctx context.Context) (any, error) {
		res, err := a.dp.GetMany(provider.CallContext(ctx, a.dp), resource, provider.GetManyParams{IDs: union})
		if err != nil {
			return nil, err
		}
		return res.Data, nil
	})
	if err != nil {
		return nil, err
	}
	records, _ := v.([]record.Record)
	return records, nil
}

// fetchUnion calls upstream directly with the union. The result has no
// key of its own, so each record seeds its single-record entry instead.
func (a *Aggregator) fetchUnion(resource string, union []record.Identifier) ([]record.Record, error) {
	res, err := a.dp.GetMany(a.ctx, resource, provider.GetManyParams{IDs: union})
	if err != nil {
		return nil, err
	}
	for _, r := range res.Data {
		k := cachekey.One(resource, r.ID(), nil)
		if _, ok := a.store.Entry(k); !ok {
			a.store.Set(k, r)
		}
	}
	return res.Data, nil
}

func filter(records []record.Record, ids record.IDSet) []record.Record {
	out := make([]record.Record, 0, len(ids))
	for _, r := range records {
		if ids.Has(r.ID()) {
			out = append(out, r)
		}
	}
	return out
}
