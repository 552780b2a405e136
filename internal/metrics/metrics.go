// Package metrics exposes Prometheus instrumentation for mutations, the
// read aggregator, the data provider and the cache.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/revittco/mutacache/internal/aggregate"
	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/mutation"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/undo"
)

const namespace = "mutacache"

// Metrics holds every collector, registered on one registry.
type Metrics struct {
	reg prometheus.Registerer

	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	rollbackKeys     *prometheus.CounterVec
	flushes          *prometheus.CounterVec
	flushCallers     prometheus.Histogram
	providerLatency  *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,

		// Labels: resource, operation, mode, status (journal status).
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "total",
			Help:      "Settled mutations by outcome",
		}, []string{"resource", "operation", "mode", "status"}),

		mutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "duration_seconds",
			Help:      "Time from call to settlement, decision wait included",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "mode", "status"}),

		// Labels: result (restored, conflict).
		rollbackKeys: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "rollback_keys_total",
			Help:      "Cache keys handled by rollbacks",
		}, []string{"result"}),

		// Labels: resource, path (empty, reused, union), status (success, error).
		flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "flushes_total",
			Help:      "Flushed getMany batches",
		}, []string{"resource", "path", "status"}),

		flushCallers: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "batch_callers",
			Help:      "Callers merged into one getMany batch",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
		}),

		// Labels: method, status (success, error, cancelled).
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Data provider call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// ObserveMutation records a settled mutation. It matches
// mutation.WithObserver.
func (m *Metrics) ObserveMutation(o mutation.Outcome) {
	m.mutations.WithLabelValues(o.Resource, o.Operation, string(o.Mode), o.Status).Inc()
	m.mutationDuration.WithLabelValues(o.Operation, string(o.Mode), o.Status).Observe(o.Duration.Seconds())
	if o.Restored > 0 {
		m.rollbackKeys.WithLabelValues("restored").Add(float64(o.Restored))
	}
	if o.Conflicts > 0 {
		m.rollbackKeys.WithLabelValues("conflict").Add(float64(o.Conflicts))
	}
}

// ObserveFlush records a flushed batch. It matches aggregate.WithObserver.
func (m *Metrics) ObserveFlush(f aggregate.Flush) {
	path := "union"
	switch {
	case !f.Upstream:
		path = "empty"
	case f.Reused:
		path = "reused"
	}
	m.flushes.WithLabelValues(f.Resource, path, status(f.Err)).Inc()
	m.flushCallers.Observe(float64(f.Callers))
}

// Provider times every data provider call.
func (m *Metrics) Provider() provider.Middleware {
	return func(next provider.Handler) provider.Handler {
		return func(ctx context.Context, req provider.Request) (any, error) {
			start := time.Now()
			res, err := next(ctx, req)
			m.providerLatency.WithLabelValues(string(req.Method), status(err)).Observe(time.Since(start).Seconds())
			return res, err
		}
	}
}

// RegisterCache exposes the store's counters as gauges read at scrape
// time.
func (m *Metrics) RegisterCache(s *cache.Store) {
	f := promauto.With(m.reg)
	gauge := func(name, help string, fn func(cache.Stats) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(s.Stats()) })
	}
	gauge("entries", "Entries held", func(st cache.Stats) float64 { return float64(st.Entries) })
	gauge("in_flight", "Fetches in flight", func(st cache.Stats) float64 { return float64(st.InFlight) })
	gauge("hits", "Fresh reads served", func(st cache.Stats) float64 { return float64(st.Hits) })
	gauge("misses", "Reads that fetched", func(st cache.Stats) float64 { return float64(st.Misses) })
	gauge("evictions", "Entries evicted", func(st cache.Stats) float64 { return float64(st.Evictions) })
	gauge("cancellations", "Fetches cancelled", func(st cache.Stats) float64 { return float64(st.Cancellations) })
	gauge("rejected_writes", "Writes rejected by validation", func(st cache.Stats) float64 { return float64(st.Rejected) })
}

// RegisterUndo exposes the number of mutations awaiting a decision.
func (m *Metrics) RegisterUndo(um *undo.Manager) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "undo",
		Name:      "pending",
		Help:      "Undoable mutations awaiting a decision",
	}, func() float64 { return float64(len(um.ListPending())) })
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, cache.ErrCancelled):
		return "cancelled"
	}
	return "error"
}
