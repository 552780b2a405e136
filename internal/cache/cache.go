package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is a cached value with its bookkeeping.
type Entry struct {
	Key         Key       `json:"key"`
	Value       any       `json:"value"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     uint64    `json:"version"`
	Invalidated bool      `json:"invalidated"`
}

// Fresh reports whether e can be served without refetching.
func (e Entry) Fresh(now time.Time, staleTime time.Duration) bool {
	return !e.Invalidated && now.Before(e.UpdatedAt.Add(staleTime))
}

// Updater computes a new value from an entry's current one. It must not
// modify old in place; changed=false leaves the entry untouched.
type Updater func(old any) (value any, changed bool)

// Validator vets a value before it is written. A rejected write is logged
// and skipped, leaving the previous value in place.
type Validator func(key Key, value any) error

// Loader fetches the value of a key from upstream. Its ctx is cancelled
// when the key's fetch is cancelled through Store.Cancel.
type Loader func(ctx context.Context) (any, error)

type item struct {
	Entry
	id    string
	parts []string
}

type fetch struct {
	parts     []string
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	cancelled bool
}

// testHookFetchRegistered runs after Fetch registers a fetch and before
// the loader is started.
var testHookFetchRegistered = func() {}

// Store is the process-wide query cache: keyed, prefix-addressable and
// versioned, with LRU eviction and one in-flight fetch per key.
//
// Values are shared between readers and must be treated as immutable;
// writers replace them instead of modifying them.
type Store struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	evictList  *list.List
	maxEntries int
	staleTime  time.Duration
	validate   Validator
	logger     *slog.Logger
	now        func() time.Time
	stats      Stats

	// version is a store-wide counter so a removed and re-created key
	// never reuses a version.
	version uint64

	group    singleflight.Group
	inflight map[string]*fetch
}

// Option configures a Store.
type Option func(*Store)

// WithValidator installs v on every write.
func WithValidator(v Validator) Option {
	return func(s *Store) { s.validate = v }
}

// WithLogger sets the logger for rejected writes. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store from cfg.
func New(cfg Config, opts ...Option) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	s := &Store{
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		maxEntries: cfg.MaxEntries,
		staleTime:  cfg.StaleTime,
		logger:     slog.Default(),
		now:        time.Now,
		inflight:   make(map[string]*fetch),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetOption adjusts a single write.
type SetOption func(*setOptions)

type setOptions struct {
	updatedAt time.Time
}

// WithUpdatedAt stamps the write with t instead of now. A future t keeps
// the entry fresh, suppressing refetches until then.
func WithUpdatedAt(t time.Time) SetOption {
	return func(o *setOptions) { o.updatedAt = t }
}

func (s *Store) setOpts(opts []SetOption) setOptions {
	o := setOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.updatedAt.IsZero() {
		o.updatedAt = s.now()
	}
	return o
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time { return s.now() }

// Get returns the value cached under key, stale or not.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key.String()]
	if !ok {
		s.stats.Misses++
		return nil, false
	}
	s.evictList.MoveToFront(el)
	s.stats.Hits++
	return el.Value.(*item).Value, true
}

// Entry returns the entry cached under key with its bookkeeping.
func (s *Store) Entry(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key.String()]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(*item).Entry, true
}

// GetFresh returns the value under key only while it is fresh.
func (s *Store) GetFresh(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key.String()]
	if !ok || !el.Value.(*item).Fresh(s.now(), s.staleTime) {
		s.stats.Misses++
		return nil, false
	}
	s.evictList.MoveToFront(el)
	s.stats.Hits++
	return el.Value.(*item).Value, true
}

// GetByPrefix returns every entry whose key starts with prefix, most
// recently used first.
func (s *Store) GetByPrefix(prefix Key) []Entry {
	p := prefix.parts()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for el := s.evictList.Front(); el != nil; el = el.Next() {
		it := el.Value.(*item)
		if hasPrefix(it.parts, p) {
			out = append(out, it.Entry)
		}
	}
	return out
}

// Set writes value under key.
func (s *Store) Set(key Key, value any, opts ...SetOption) {
	o := s.setOpts(opts)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, key.String(), value, o.updatedAt)
}

// SetByPrefix applies fn to every entry under prefix and returns the keys
// it changed. Entries fn reports unchanged keep their value and version.
func (s *Store) SetByPrefix(prefix Key, fn Updater, opts ...SetOption) []Key {
	o := s.setOpts(opts)
	p := prefix.parts()

	s.mu.Lock()
	defer s.mu.Unlock()

	var targets []*item
	for _, el := range s.items {
		if it := el.Value.(*item); hasPrefix(it.parts, p) {
			targets = append(targets, it)
		}
	}

	var written []Key
	for _, it := range targets {
		v, changed := fn(it.Value)
		if !changed {
			continue
		}
		if s.setLocked(it.Key, it.id, v, o.updatedAt) {
			written = append(written, it.Key)
		}
	}
	return written
}

// CompareAndSet writes value only if the entry's version is still expect.
// Version 0 expects the key to be absent.
func (s *Store) CompareAndSet(key Key, value any, expect uint64, opts ...SetOption) bool {
	o := s.setOpts(opts)
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versionLocked(k) != expect {
		return false
	}
	return s.setLocked(key, k, value, o.updatedAt)
}

// CompareAndRemove removes the entry only if its version is still expect.
// It reports true when the key is absent afterwards.
func (s *Store) CompareAndRemove(key Key, expect uint64) bool {
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[k]
	if !ok {
		return true
	}
	if el.Value.(*item).Version != expect {
		return false
	}
	s.removeLocked(el)
	return true
}

// Restore puts prev back exactly as it was read, version and updatedAt
// included, if the key still holds version expect. Restoring in reverse
// write order therefore unwinds stacked writes one by one.
func (s *Store) Restore(prev Entry, expect uint64) bool {
	k := prev.Key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versionLocked(k) != expect {
		return false
	}
	if el, ok := s.items[k]; ok {
		s.evictList.MoveToFront(el)
		el.Value.(*item).Entry = prev
		return true
	}
	s.items[k] = s.evictList.PushFront(&item{Entry: prev, id: k, parts: prev.Key.parts()})
	for s.evictList.Len() > s.maxEntries {
		s.evictOldestLocked()
	}
	return true
}

// Remove deletes the entry under key.
func (s *Store) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key.String()]; ok {
		s.removeLocked(el)
	}
}

// Invalidate marks every entry under prefix stale without dropping its
// value, so readers keep the last known value while a refetch runs.
func (s *Store) Invalidate(prefix Key) int {
	p := prefix.parts()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, el := range s.items {
		if it := el.Value.(*item); hasPrefix(it.parts, p) {
			it.Invalidated = true
			n++
		}
	}
	s.stats.Invalidations += int64(n)
	return n
}

// Cancel aborts in-flight fetches under prefix. A cancelled fetch never
// writes its result. Calling Cancel with nothing in flight is a no-op.
func (s *Store) Cancel(prefix Key) int {
	p := prefix.parts()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, f := range s.inflight {
		if !hasPrefix(f.parts, p) {
			continue
		}
		f.cancelled = true
		f.cancel()
		delete(s.inflight, id)
		s.group.Forget(id)
		n++
	}
	s.stats.Cancellations += int64(n)
	return n
}

// Fetch returns the value under key when it is fresh. Otherwise it runs
// load once for all concurrent callers of the same key and caches the
// result. Load errors are returned and never cached.
func (s *Store) Fetch(ctx context.Context, key Key, load Loader) (any, error) {
	k := key.String()

	s.mu.Lock()
	if el, ok := s.items[k]; ok {
		it := el.Value.(*item)
		if it.Fresh(s.now(), s.staleTime) {
			s.evictList.MoveToFront(el)
			s.stats.Hits++
			v := it.Value
			s.mu.Unlock()
			return v, nil
		}
	}
	s.stats.Misses++
	// Registering before the loader starts lets a Cancel issued in
	// between still reach this fetch.
	f, ok := s.inflight[k]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &fetch{parts: key.parts(), ctx: fctx, cancel: cancel}
		s.inflight[k] = f
	}
	s.mu.Unlock()
	testHookFetchRegistered()

	ch := s.group.DoChan(k, func() (any, error) {
		return s.load(key, k, f, load)
	})
	select {
	case res := <-ch:
		s.release(k, f)
		return res.Val, res.Err
	case <-ctx.Done():
		go func() {
			<-ch
			s.release(k, f)
		}()
		return nil, ctx.Err()
	}
}

// load runs under f's own context rather than the caller's, so one
// impatient caller does not fail the others sharing the fetch.
func (s *Store) load(key Key, k string, f *fetch, load Loader) (any, error) {
	defer f.cancel()

	s.mu.Lock()
	if f.cancelled {
		s.mu.Unlock()
		return nil, fmt.Errorf("fetch %s: %w", k, ErrCancelled)
	}
	f.started = true
	if _, ok := s.inflight[k]; !ok {
		s.inflight[k] = f
	}
	s.stats.Fetches++
	s.mu.Unlock()

	v, err := load(f.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[k] == f {
		delete(s.inflight, k)
	}
	if f.cancelled {
		return nil, fmt.Errorf("fetch %s: %w", k, ErrCancelled)
	}
	if err != nil {
		return nil, err
	}
	s.setLocked(key, k, v, s.now())
	return v, nil
}

// release drops f if it never started because its caller joined a call
// that was already finishing.
func (s *Store) release(k string, f *fetch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !f.started && s.inflight[k] == f {
		delete(s.inflight, k)
	}
}

// InFlight reports whether a fetch for key is running.
func (s *Store) InFlight(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[key.String()]
	return ok
}

// Flush removes all entries. In-flight fetches are left running.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.evictList.Init()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stats returns a snapshot of store statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Entries = len(s.items)
	st.InFlight = len(s.inflight)
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}

// ResetStats zeroes the counters.
func (s *Store) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{}
}

func (s *Store) versionLocked(k string) uint64 {
	if el, ok := s.items[k]; ok {
		return el.Value.(*item).Version
	}
	return 0
}

func (s *Store) setLocked(key Key, k string, value any, updatedAt time.Time) bool {
	if s.validate != nil {
		if err := s.validate(key, value); err != nil {
			s.stats.Rejected++
			s.logger.Warn("cache write rejected", "key", k, "error", err)
			return false
		}
	}

	s.version++
	if el, ok := s.items[k]; ok {
		s.evictList.MoveToFront(el)
		it := el.Value.(*item)
		it.Value = value
		it.UpdatedAt = updatedAt
		it.Version = s.version
		it.Invalidated = false
		return true
	}

	it := &item{
		Entry: Entry{Key: key, Value: value, UpdatedAt: updatedAt, Version: s.version},
		id:    k,
		parts: key.parts(),
	}
	s.items[k] = s.evictList.PushFront(it)

	for s.evictList.Len() > s.maxEntries {
		s.evictOldestLocked()
	}
	return true
}

func (s *Store) removeLocked(el *list.Element) {
	it := el.Value.(*item)
	delete(s.items, it.id)
	s.evictList.Remove(el)
}

func (s *Store) evictOldestLocked() {
	el := s.evictList.Back()
	if el == nil {
		return
	}
	s.removeLocked(el)
	s.stats.Evictions++
}
