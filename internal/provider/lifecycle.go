package provider

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/revittco/mutacache/internal/record"
)

// Callback transforms params before a call or a result after it. It receives
// the undecorated provider so it can issue its own calls without recursing
// through the callbacks.
type Callback[T any] func(ctx context.Context, v T, dp DataProvider, resource string) (T, error)

// ResourceCallbacks holds the lifecycle callbacks of one resource, or of
// every resource when Resource is "*". Callbacks of one hook run in order.
type ResourceCallbacks struct {
	Resource string

	BeforeGetOne           []Callback[GetOneParams]
	AfterGetOne            []Callback[GetOneResult]
	BeforeGetList          []Callback[GetListParams]
	AfterGetList           []Callback[GetListResult]
	BeforeGetMany          []Callback[GetManyParams]
	AfterGetMany           []Callback[GetManyResult]
	BeforeGetManyReference []Callback[GetManyReferenceParams]
	AfterGetManyReference  []Callback[GetListResult]
	BeforeCreate           []Callback[CreateParams]
	AfterCreate            []Callback[RecordResult]
	BeforeUpdate           []Callback[UpdateParams]
	AfterUpdate            []Callback[RecordResult]
	BeforeUpdateMany       []Callback[UpdateManyParams]
	AfterUpdateMany        []Callback[IDsResult]
	BeforeDelete           []Callback[DeleteParams]
	AfterDelete            []Callback[RecordResult]
	BeforeDeleteMany       []Callback[DeleteManyParams]
	AfterDeleteMany        []Callback[IDsResult]

	// BeforeSave modifies the data sent by create, update and updateMany.
	BeforeSave []Callback[record.Record]
	// AfterRead modifies every record returned by the four read methods.
	AfterRead []Callback[record.Record]
	// AfterSave receives the records saved by create, update and updateMany.
	AfterSave []Callback[record.Record]
}

// lifecycle runs ResourceCallbacks around a base provider.
type lifecycle struct {
	base     DataProvider
	handlers []ResourceCallbacks
}

// WithLifecycleCallbacks extends base with callbacks executed before and
// after reads and writes. The callbacks are not transactional: a failing
// after-callback leaves the upstream write in place.
func WithLifecycleCallbacks(base DataProvider, handlers []ResourceCallbacks) DataProvider {
	return &lifecycle{base: base, handlers: handlers}
}

func (l *lifecycle) SupportsCancellation() bool {
	return SupportsCancellation(l.base)
}

func apply[T any](
	ctx context.Context, l *lifecycle, resource string,
	hook func(*ResourceCallbacks) []Callback[T], v T,
) (T, error) {
	for i := range l.handlers {
		h := &l.handlers[i]
		if h.Resource != resource && h.Resource != "*" {
			continue
		}
		for _, cb := range hook(h) {
			var err error
			if v, err = cb(ctx, v, l.base, resource); err != nil {
				return v, err
			}
		}
	}
	return v, nil
}

func (l *lifecycle) hasHook(resource string, hook func(*ResourceCallbacks) []Callback[record.Record]) bool {
	for i := range l.handlers {
		h := &l.handlers[i]
		if (h.Resource == resource || h.Resource == "*") && len(hook(h)) > 0 {
			return true
		}
	}
	return false
}

func (l *lifecycle) afterReadAll(ctx context.Context, resource string, records []record.Record) ([]record.Record, error) {
	if !l.hasHook(resource, afterRead) {
		return records, nil
	}
	out := make([]record.Record, len(records))
	for i, r := range records {
		var err error
		if out[i], err = apply(ctx, l, resource, afterRead, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func afterRead(h *ResourceCallbacks) []Callback[record.Record]  { return h.AfterRead }
func afterSave(h *ResourceCallbacks) []Callback[record.Record]  { return h.AfterSave }
func beforeSave(h *ResourceCallbacks) []Callback[record.Record] { return h.BeforeSave }

func (l *lifecycle) GetOne(ctx context.Context, resource string, p GetOneParams) (GetOneResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[GetOneParams] { return h.BeforeGetOne }, p)
	if err != nil {
		return GetOneResult{}, err
	}
	res, err := l.base.GetOne(ctx, resource, p)
	if err != nil {
		return res, err
	}
	if res, err = apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[GetOneResult] { return h.AfterGetOne }, res); err != nil {
		return res, err
	}
	res.Data, err = apply(ctx, l, resource, afterRead, res.Data)
	return res, err
}

func (l *lifecycle) GetList(ctx context.Context, resource string, p GetListParams) (GetListResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[GetListParams] { return h.BeforeGetList }, p)
	if err != nil {
		return GetListResult{}, err
	}
	res, err := l.base.GetList(ctx, resource, p)
	if err != nil {
		return res, err
	}
	if res, err = apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[GetListResult] { return h.AfterGetList }, res); err != nil {
		return res, err
	}
	res.Data, err = l.afterReadAll(ctx, resource, res.Data)
	return res, err
}

func (l *lifecycle) GetMany(ctx context.Context, resource string, p GetManyParams) (GetManyResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[GetManyParams] { return h.BeforeGetMany }, p)
	if err != nil {
		return GetManyResult{}, err
	}
	res, err := l.base.GetMany(ctx, resource, p)
	if err != nil {
		return res, err
	}
	if res, err = apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[GetManyResult] { return h.AfterGetMany }, res); err != nil {
		return res, err
	}
	res.Data, err = l.afterReadAll(ctx, resource, res.Data)
	return res, err
}

func (l *lifecycle) GetManyReference(ctx context.Context, resource string, p GetManyReferenceParams) (GetListResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[GetManyReferenceParams] { return h.BeforeGetManyReference }, p)
	if err != nil {
		return GetListResult{}, err
	}
	res, err := l.base.GetManyReference(ctx, resource, p)
	if err != nil {
		return res, err
	}
	if res, err = apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[GetListResult] { return h.AfterGetManyReference }, res); err != nil {
		return res, err
	}
	res.Data, err = l.afterReadAll(ctx, resource, res.Data)
	return res, err
}

func (l *lifecycle) Create(ctx context.Context, resource string, p CreateParams) (RecordResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[CreateParams] { return h.BeforeCreate }, p)
	if err != nil {
		return RecordResult{}, err
	}
	if p.Data, err = apply(ctx, l, resource, beforeSave, p.Data); err != nil {
		return RecordResult{}, err
	}
	res, err := l.base.Create(ctx, resource, p)
	if err != nil {
		return res, err
	}
	if res, err = apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[RecordResult] { return h.AfterCreate }, res); err != nil {
		return res, err
	}
	res.Data, err = apply(ctx, l, resource, afterSave, res.Data)
	return res, err
}

func (l *lifecycle) Update(ctx context.Context, resource string, p UpdateParams) (RecordResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[UpdateParams] { return h.BeforeUpdate }, p)
	if err != nil {
		return RecordResult{}, err
	}
	if p.Data, err = apply(ctx, l, resource, beforeSave, p.Data); err != nil {
		return RecordResult{}, err
	}
	res, err := l.base.Update(ctx, resource, p)
	if err != nil {
		return res, err
	}
	if res, err = apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[RecordResult] { return h.AfterUpdate }, res); err != nil {
		return res, err
	}
	res.Data, err = apply(ctx, l, resource, afterSave, res.Data)
	return res, err
}

func (l *lifecycle) UpdateMany(ctx context.Context, resource string, p UpdateManyParams) (IDsResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[UpdateManyParams] { return h.BeforeUpdateMany }, p)
	if err != nil {
		return IDsResult{}, err
	}
	if p.Data, err = apply(ctx, l, resource, beforeSave, p.Data); err != nil {
		return IDsResult{}, err
	}
	res, err := l.base.UpdateMany(ctx, resource, p)
	if err != nil {
		return res, err
	}
	if res, err = apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[IDsResult] { return h.AfterUpdateMany }, res); err != nil {
		return res, err
	}
	if !l.hasHook(resource, afterSave) || len(res.Data) == 0 {
		return res, nil
	}

	// updateMany only returns ids; fetch the saved records for AfterSave.
	saved, err := l.base.GetMany(ctx, resource, GetManyParams{IDs: res.Data})
	if err != nil {
		return res, err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range saved.Data {
		g.Go(func() error {
			_, err := apply(gctx, l, resource, afterSave, r)
			return err
		})
	}
	return res, g.Wait()
}

func (l *lifecycle) Delete(ctx context.Context, resource string, p DeleteParams) (RecordResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[DeleteParams] { return h.BeforeDelete }, p)
	if err != nil {
		return RecordResult{}, err
	}
	res, err := l.base.Delete(ctx, resource, p)
	if err != nil {
		return res, err
	}
	return apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[RecordResult] { return h.AfterDelete }, res)
}

func (l *lifecycle) DeleteMany(ctx context.Context, resource string, p DeleteManyParams) (IDsResult, error) {
	p, err := apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[DeleteManyParams] { return h.BeforeDeleteMany }, p)
	if err != nil {
		return IDsResult{}, err
	}
	res, err := l.base.DeleteMany(ctx, resource, p)
	if err != nil {
		return res, err
	}
	return apply(ctx, l, resource, func(h *ResourceCallbacks) []Callback[IDsResult] { return h.AfterDeleteMany }, res)
}
