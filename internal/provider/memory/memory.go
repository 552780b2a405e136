// Package memory implements an in-memory DataProvider over seeded resources.
// It backs the serve command's demo resources and the engine tests, which
// use its call recording, holds and failure injection.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/record"
)

// ErrNotFound is returned when a record id does not exist in a resource.
var ErrNotFound = errors.New("record not found")

// Call is one recorded provider invocation.
type Call struct {
	Method   provider.Method
	Resource string
	Params   any
}

// Option configures a Provider.
type Option func(*Provider)

// WithCancellation makes the provider declare cancellation support and
// abort simulated latency when the call's ctx is cancelled.
func WithCancellation() Option {
	return func(p *Provider) { p.cancelable = true }
}

// WithLatency delays every call by d.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// Provider is a DataProvider keeping every resource as an ordered slice.
// Records are copied in and out so callers never share maps with it.
type Provider struct {
	mu         sync.Mutex
	data       map[string][]record.Record
	calls      []Call
	failNext   map[provider.Method][]error
	failAlways map[provider.Method]error
	holds      map[provider.Method]chan struct{}
	latency    time.Duration
	cancelable bool
}

var _ provider.DataProvider = (*Provider)(nil)

// New creates a provider seeded with seed. The seed is copied.
func New(seed map[string][]record.Record, opts ...Option) *Provider {
	p := &Provider{
		data:       make(map[string][]record.Record, len(seed)),
		failNext:   make(map[provider.Method][]error),
		failAlways: make(map[provider.Method]error),
		holds:      make(map[provider.Method]chan struct{}),
	}
	for resource, records := range seed {
		p.data[resource] = cloneAll(records)
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SupportsCancellation implements provider.Cancelable.
func (p *Provider) SupportsCancellation() bool { return p.cancelable }

// FailNext makes the next call of m return err. Queued failures are consumed
// in order.
func (p *Provider) FailNext(m provider.Method, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext[m] = append(p.failNext[m], err)
}

// FailAlways makes every call of m return err until cleared with a nil err.
func (p *Provider) FailAlways(m provider.Method, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failAlways, m)
		return
	}
	p.failAlways[m] = err
}

// Hold blocks calls of m until the returned release func is called. Calls
// are recorded before they block.
func (p *Provider) Hold(m provider.Method) (release func()) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.holds[m] = ch
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.holds[m] == ch {
				delete(p.holds, m)
			}
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns every recorded call, oldest first.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// CallsTo returns the recorded calls of method m.
func (p *Provider) CallsTo(m provider.Method) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.calls {
		if c.Method == m {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded calls.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Resources lists the seeded and created resource names, sorted.
func (p *Provider) Resources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.data))
	for name := range p.data {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Records returns a copy of a resource's records in storage order.
func (p *Provider) Records(resource string) []record.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneAll(p.data[resource])
}

// begin records the call, then applies holds, latency and failures.
func (p *Provider) begin(ctx context.Context, m provider.Method, resource string, params any) error {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Method: m, Resource: resource, Params: params})
	hold := p.holds[m]
	p.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.latency > 0 {
		if err := p.sleep(ctx, p.latency); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if q := p.failNext[m]; len(q) > 0 {
		p.failNext[m] = q[1:]
		return q[0]
	}
	return p.failAlways[m]
}

func (p *Provider) sleep(ctx context.Context, d time.Duration) error {
	if !p.cancelable {
		time.Sleep(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) indexLocked(resource string, id record.Identifier) int {
	return slices.IndexFunc(p.data[resource], func(r record.Record) bool {
		return record.SameID(r.ID(), id)
	})
}

func (p *Provider) GetOne(ctx context.Context, resource string, params provider.GetOneParams) (provider.GetOneResult, error) {
	if err := p.begin(ctx, provider.MethodGetOne, resource, params); err != nil {
		return provider.GetOneResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexLocked(resource, params.ID)
	if i < 0 {
		return provider.GetOneResult{}, fmt.Errorf("%s %v: %w", resource, params.ID, ErrNotFound)
	}
	return provider.GetOneResult{Data: p.data[resource][i].Clone()}, nil
}

func (p *Provider) GetList(ctx context.Context, resource string, params provider.GetListParams) (provider.GetListResult, error) {
	if err := p.begin(ctx, provider.MethodGetList, resource, params); err != nil {
		return provider.GetListResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return query(p.data[resource], params.Filter, params.Sort, params.Pagination), nil
}

func (p *Provider) GetMany(ctx context.Context, resource string, params provider.GetManyParams) (provider.GetManyResult, error) {
	if err := p.begin(ctx, provider.MethodGetMany, resource, params); err != nil {
		return provider.GetManyResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]record.Record, 0, len(params.IDs))
	for _, id := range params.IDs {
		if i := p.indexLocked(resource, id); i >= 0 {
			out = append(out, p.data[resource][i].Clone())
		}
	}
	return provider.GetManyResult{Data: out}, nil
}

func (p *Provider) GetManyReference(ctx context.Context, resource string, params provider.GetManyReferenceParams) (provider.GetListResult, error) {
	if err := p.begin(ctx, provider.MethodGetManyReference, resource, params); err != nil {
		return provider.GetListResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var refs []record.Record
	for _, r := range p.data[resource] {
		if record.SameID(r[params.Target], params.ID) {
			refs = append(refs, r)
		}
	}
	return query(refs, params.Filter, params.Sort, params.Pagination), nil
}

func (p *Provider) Create(ctx context.Context, resource string, params provider.CreateParams) (provider.RecordResult, error) {
	if err := p.begin(ctx, provider.MethodCreate, resource, params); err != nil {
		return provider.RecordResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := params.Data.Defined()
	if r == nil {
		r = record.Record{}
	}
	if record.IsEmptyID(r.ID()) {
		r["id"] = p.nextIDLocked(resource)
	}
	p.data[resource] = append(p.data[resource], r)
	return provider.RecordResult{Data: r.Clone()}, nil
}

// nextIDLocked returns one more than the largest numeric id of resource.
func (p *Provider) nextIDLocked(resource string) record.Identifier {
	next := 1
	for _, r := range p.data[resource] {
		if n, ok := toInt(r.ID()); ok && n >= next {
			next = n + 1
		}
	}
	return next
}

func (p *Provider) Update(ctx context.Context, resource string, params provider.UpdateParams) (provider.RecordResult, error) {
	if err := p.begin(ctx, provider.MethodUpdate, resource, params); err != nil {
		return provider.RecordResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexLocked(resource, params.ID)
	if i < 0 {
		return provider.RecordResult{}, fmt.Errorf("%s %v: %w", resource, params.ID, ErrNotFound)
	}
	merged := record.Merge(p.data[resource][i], params.Data)
	merged["id"] = p.data[resource][i]["id"]
	p.data[resource][i] = merged
	return provider.RecordResult{Data: merged.Clone()}, nil
}

func (p *Provider) UpdateMany(ctx context.Context, resource string, params provider.UpdateManyParams) (provider.IDsResult, error) {
	if err := p.begin(ctx, provider.MethodUpdateMany, resource, params); err != nil {
		return provider.IDsResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	updated := make([]record.Identifier, 0, len(params.IDs))
	for _, id := range record.Dedupe(params.IDs) {
		i := p.indexLocked(resource, id)
		if i < 0 {
			continue
		}
		merged := record.Merge(p.data[resource][i], params.Data)
		merged["id"] = p.data[resource][i]["id"]
		p.data[resource][i] = merged
		updated = append(updated, merged["id"])
	}
	return provider.IDsResult{Data: updated}, nil
}

func (p *Provider) Delete(ctx context.Context, resource string, params provider.DeleteParams) (provider.RecordResult, error) {
	if err := p.begin(ctx, provider.MethodDelete, resource, params); err != nil {
		return provider.RecordResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexLocked(resource, params.ID)
	if i < 0 {
		return provider.RecordResult{}, fmt.Errorf("%s %v: %w", resource, params.ID, ErrNotFound)
	}
	removed := p.data[resource][i]
	p.data[resource] = slices.Delete(p.data[resource], i, i+1)
	return provider.RecordResult{Data: removed}, nil
}

func (p *Provider) DeleteMany(ctx context.Context, resource string, params provider.DeleteManyParams) (provider.IDsResult, error) {
	if err := p.begin(ctx, provider.MethodDeleteMany, resource, params); err != nil {
		return provider.IDsResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	deleted := make([]record.Identifier, 0, len(params.IDs))
	for _, id := range record.Dedupe(params.IDs) {
		i := p.indexLocked(resource, id)
		if i < 0 {
			continue
		}
		deleted = append(deleted, p.data[resource][i]["id"])
		p.data[resource] = slices.Delete(p.data[resource], i, i+1)
	}
	return provider.IDsResult{Data: deleted}, nil
}

// query filters by exact field match, sorts and paginates. A slice filter
// value matches any of its elements.
func query(records []record.Record, filter map[string]any, sort provider.Sort, page provider.Pagination) provider.GetListResult {
	matched := make([]record.Record, 0, len(records))
	for _, r := range records {
		if matches(r, filter) {
			matched = append(matched, r.Clone())
		}
	}
	if sort.Field != "" {
		slices.SortStableFunc(matched, func(a, b record.Record) int {
			c := compare(a[sort.Field], b[sort.Field])
			if sort.Order == "DESC" {
				return -c
			}
			return c
		})
	}
	total := len(matched)
	if page.PerPage > 0 {
		start := max(page.Page-1, 0) * page.PerPage
		end := min(start+page.PerPage, total)
		if start >= total {
			matched = []record.Record{}
		} else {
			matched = matched[start:end]
		}
	}
	return provider.GetListResult{Data: matched, Total: record.IntPtr(total)}
}

func matches(r record.Record, filter map[string]any) bool {
	for field, want := range filter {
		got := r[field]
		if list, ok := want.([]any); ok {
			if !slices.ContainsFunc(list, func(v any) bool { return record.SameID(got, v) }) {
				return false
			}
			continue
		}
		if !record.SameID(got, want) && !(record.IsEmptyID(got) && record.IsEmptyID(want)) {
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return cmp.Compare(x, y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func cloneAll(records []record.Record) []record.Record {
	out := make([]record.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
