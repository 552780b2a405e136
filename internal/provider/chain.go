package provider

import (
	"context"
	"fmt"
)

// Request is a single DataProvider call routed through a middleware chain.
type Request struct {
	Method   Method
	Resource string
	Params   any
}

// Handler executes a Request and returns the method's result value.
type Handler func(ctx context.Context, req Request) (any, error)

// Middleware decorates every DataProvider method the same way.
type Middleware func(next Handler) Handler

// chained implements DataProvider by funnelling every method through one
// Handler built from the middlewares and the base provider.
type chained struct {
	base DataProvider
	h    Handler
}

// Chain wraps base with mws. The first middleware is the outermost: it sees
// the request first and the response last.
func Chain(base DataProvider, mws ...Middleware) DataProvider {
	if len(mws) == 0 {
		return base
	}
	h := dispatch(base)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return &chained{base: base, h: h}
}

// SupportsCancellation forwards the base provider's capability.
func (c *chained) SupportsCancellation() bool {
	return SupportsCancellation(c.base)
}

func (c *chained) GetOne(ctx context.Context, resource string, p GetOneParams) (GetOneResult, error) {
	return as[GetOneResult](c.h(ctx, Request{Method: MethodGetOne, Resource: resource, Params: p}))
}

func (c *chained) GetList(ctx context.Context, resource string, p GetListParams) (GetListResult, error) {
	return as[GetListResult](c.h(ctx, Request{Method: MethodGetList, Resource: resource, Params: p}))
}

func (c *chained) GetMany(ctx context.Context, resource string, p GetManyParams) (GetManyResult, error) {
	return as[GetManyResult](c.h(ctx, Request{Method: MethodGetMany, Resource: resource, Params: p}))
}

func (c *chained) GetManyReference(ctx context.Context, resource string, p GetManyReferenceParams) (GetListResult, error) {
	return as[GetListResult](c.h(ctx, Request{Method: MethodGetManyReference, Resource: resource, Params: p}))
}

func (c *chained) Create(ctx context.Context, resource string, p CreateParams) (RecordResult, error) {
	return as[RecordResult](c.h(ctx, Request{Method: MethodCreate, Resource: resource, Params: p}))
}

func (c *chained) Update(ctx context.Context, resource string, p UpdateParams) (RecordResult, error) {
	return as[RecordResult](c.h(ctx, Request{Method: MethodUpdate, Resource: resource, Params: p}))
}

func (c *chained) UpdateMany(ctx context.Context, resource string, p UpdateManyParams) (IDsResult, error) {
	return as[IDsResult](c.h(ctx, Request{Method: MethodUpdateMany, Resource: resource, Params: p}))
}

func (c *chained) Delete(ctx context.Context, resource string, p DeleteParams) (RecordResult, error) {
	return as[RecordResult](c.h(ctx, Request{Method: MethodDelete, Resource: resource, Params: p}))
}

func (c *chained) DeleteMany(ctx context.Context, resource string, p DeleteManyParams) (IDsResult, error) {
	return as[IDsResult](c.h(ctx, Request{Method: MethodDeleteMany, Resource: resource, Params: p}))
}

// dispatch is the innermost handler: it calls the matching base method.
func dispatch(base DataProvider) Handler {
	return func(ctx context.Context, req Request) (any, error) {
		switch p := req.Params.(type) {
		case GetOneParams:
			return base.GetOne(ctx, req.Resource, p)
		case GetListParams:
			return base.GetList(ctx, req.Resource, p)
		case GetManyParams:
			return base.GetMany(ctx, req.Resource, p)
		case GetManyReferenceParams:
			return base.GetManyReference(ctx, req.Resource, p)
		case CreateParams:
			return base.Create(ctx, req.Resource, p)
		case UpdateParams:
			return base.Update(ctx, req.Resource, p)
		case UpdateManyParams:
			return base.UpdateMany(ctx, req.Resource, p)
		case DeleteParams:
			return base.Delete(ctx, req.Resource, p)
		case DeleteManyParams:
			return base.DeleteMany(ctx, req.Resource, p)
		default:
			return nil, fmt.Errorf("%w: %s params %T", ErrUnsupportedRequest, req.Method, req.Params)
		}
	}
}

func as[T any](res any, err error) (T, error) {
	v, ok := res.(T)
	if err != nil {
		return v, err
	}
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %T", ErrUnexpectedResult, res)
	}
	return v, nil
}
