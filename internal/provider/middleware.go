package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/revittco/mutacache/internal/record"
)

// Logging logs every call at debug level and every failure at warn level.
// A nil logger uses slog.Default().
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) (any, error) {
			start := time.Now()
			res, err := next(ctx, req)
			if err != nil {
				logger.Warn("data provider call failed",
					"method", req.Method,
					"resource", req.Resource,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err,
				)
				return res, err
			}
			logger.Debug("data provider call",
				"method", req.Method,
				"resource", req.Resource,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return res, nil
		}
	}
}

// ValidateResponse rejects results that do not match their method's shape,
// so a broken provider surfaces as an error instead of corrupting the cache.
func ValidateResponse() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) (any, error) {
			res, err := next(ctx, req)
			if err != nil {
				return res, err
			}
			if verr := validateResult(req.Method, res); verr != nil {
				return nil, fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, req.Method, req.Resource, verr)
			}
			return res, nil
		}
	}
}

func validateResult(m Method, res any) error {
	switch r := res.(type) {
	case GetOneResult:
		return requireRecord(r.Data)
	case RecordResult:
		return requireRecord(r.Data)
	case GetListResult:
		if r.Data == nil {
			return fmt.Errorf("data must be a list")
		}
		if r.Total == nil && r.PageInfo == nil {
			return fmt.Errorf("total or pageInfo is required")
		}
		if r.Total != nil && *r.Total < 0 {
			return fmt.Errorf("negative total %d", *r.Total)
		}
	case GetManyResult:
		if r.Data == nil {
			return fmt.Errorf("data must be a list")
		}
	case IDsResult:
		if r.Data == nil {
			return fmt.Errorf("data must be a list of ids")
		}
	default:
		return fmt.Errorf("unknown result %T for %s", res, m)
	}
	return nil
}

func requireRecord(r record.Record) error {
	if r == nil {
		return fmt.Errorf("data must be a record")
	}
	if record.IsEmptyID(r.ID()) {
		return fmt.Errorf("record has no id")
	}
	return nil
}

// PrefetchWriter receives records a provider returned on the side channel
// meta["prefetched"], keyed by resource.
type PrefetchWriter interface {
	Prefetch(resource string, records []record.Record)
}

// Prefetched hands side-channel records of read results to w so they can be
// cached as single records before anyone asks for them.
func Prefetched(w PrefetchWriter) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) (any, error) {
			res, err := next(ctx, req)
			if err != nil || !req.Method.IsRead() {
				return res, err
			}
			for resource, records := range prefetchedOf(res) {
				w.Prefetch(resource, records)
			}
			return res, nil
		}
	}
}

func prefetchedOf(res any) map[string][]record.Record {
	var meta map[string]any
	switch r := res.(type) {
	case GetOneResult:
		meta = r.Meta
	case GetListResult:
		meta = r.Meta
	case GetManyResult:
		meta = r.Meta
	}
	raw, ok := meta["prefetched"]
	if !ok {
		return nil
	}
	out := make(map[string][]record.Record)
	switch v := raw.(type) {
	case map[string][]record.Record:
		return v
	case map[string]any:
		for resource, list := range v {
			out[resource] = toRecords(list)
		}
	}
	return out
}

func toRecords(v any) []record.Record {
	switch l := v.(type) {
	case []record.Record:
		return l
	case []any:
		out := make([]record.Record, 0, len(l))
		for _, item := range l {
			switch r := item.(type) {
			case record.Record:
				out = append(out, r)
			case map[string]any:
				out = append(out, record.Record(r))
			}
		}
		return out
	}
	return nil
}
