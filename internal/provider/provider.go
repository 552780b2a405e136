// Package provider defines the Data Provider the cache engine consumes: an
// opaque asynchronous CRUD interface over named resources.
package provider

import (
	"context"

	"github.com/revittco/mutacache/internal/record"
)

// DataProvider is the upstream CRUD interface. Any method may fail with an
// arbitrary error; the ctx carries cancellation for providers that honour it.
type DataProvider interface {
	GetOne(ctx context.Context, resource string, p GetOneParams) (GetOneResult, error)
	GetList(ctx context.Context, resource string, p GetListParams) (GetListResult, error)
	GetMany(ctx context.Context, resource string, p GetManyParams) (GetManyResult, error)
	GetManyReference(ctx context.Context, resource string, p GetManyReferenceParams) (GetListResult, error)
	Create(ctx context.Context, resource string, p CreateParams) (RecordResult, error)
	Update(ctx context.Context, resource string, p UpdateParams) (RecordResult, error)
	UpdateMany(ctx context.Context, resource string, p UpdateManyParams) (IDsResult, error)
	Delete(ctx context.Context, resource string, p DeleteParams) (RecordResult, error)
	DeleteMany(ctx context.Context, resource string, p DeleteManyParams) (IDsResult, error)
}

// Cancelable is implemented by providers that abort work when the ctx passed
// to a read is cancelled. Reads against other providers still run to
// completion; the cache discards their result instead.
type Cancelable interface {
	SupportsCancellation() bool
}

// SupportsCancellation reports whether p declares cancellation support.
func SupportsCancellation(p DataProvider) bool {
	c, ok := p.(Cancelable)
	return ok && c.SupportsCancellation()
}

// CallContext returns the ctx to hand to p for a read. Providers without
// cancellation support get a ctx that is never cancelled, so an aborted
// fetch still runs to completion upstream and only its result is dropped.
func CallContext(ctx context.Context, p DataProvider) context.Context {
	if SupportsCancellation(p) {
		return ctx
	}
	return context.WithoutCancel(ctx)
}

// Method names a DataProvider method.
type Method string

const (
	MethodGetOne           Method = "getOne"
	MethodGetList          Method = "getList"
	MethodGetMany          Method = "getMany"
	MethodGetManyReference Method = "getManyReference"
	MethodCreate           Method = "create"
	MethodUpdate           Method = "update"
	MethodUpdateMany       Method = "updateMany"
	MethodDelete           Method = "delete"
	MethodDeleteMany       Method = "deleteMany"
)

// IsRead reports whether m leaves upstream state untouched.
func (m Method) IsRead() bool {
	switch m {
	case MethodGetOne, MethodGetList, MethodGetMany, MethodGetManyReference:
		return true
	}
	return false
}

// Pagination selects a page of a list.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
}

// Sort orders a list by one field.
type Sort struct {
	Field string `json:"field"`
	Order string `json:"order"` // "ASC" or "DESC"
}

type GetOneParams struct {
	ID   record.Identifier `json:"id"`
	Meta map[string]any    `json:"meta,omitempty"`
}

type GetListParams struct {
	Pagination Pagination     `json:"pagination"`
	Sort       Sort           `json:"sort"`
	Filter     map[string]any `json:"filter"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type GetManyParams struct {
	IDs  []record.Identifier `json:"ids"`
	Meta map[string]any      `json:"meta,omitempty"`
}

type GetManyReferenceParams struct {
	Target     string            `json:"target"`
	ID         record.Identifier `json:"id"`
	Pagination Pagination        `json:"pagination"`
	Sort       Sort              `json:"sort"`
	Filter     map[string]any    `json:"filter"`
	Meta       map[string]any    `json:"meta,omitempty"`
}

type CreateParams struct {
	Data record.Record  `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

type UpdateParams struct {
	ID           record.Identifier `json:"id"`
	Data         record.Record     `json:"data"`
	PreviousData record.Record     `json:"previousData,omitempty"`
	Meta         map[string]any    `json:"meta,omitempty"`
}

type UpdateManyParams struct {
	IDs  []record.Identifier `json:"ids"`
	Data record.Record       `json:"data"`
	Meta map[string]any      `json:"meta,omitempty"`
}

type DeleteParams struct {
	ID           record.Identifier `json:"id"`
	PreviousData record.Record     `json:"previousData,omitempty"`
	Meta         map[string]any    `json:"meta,omitempty"`
}

type DeleteManyParams struct {
	IDs  []record.Identifier `json:"ids"`
	Meta map[string]any      `json:"meta,omitempty"`
}

// GetOneResult holds a single record. Meta may carry side-channel data such
// as prefetched related records.
type GetOneResult struct {
	Data record.Record  `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

type GetListResult struct {
	Data     []record.Record  `json:"data"`
	Total    *int             `json:"total,omitempty"`
	PageInfo *record.PageInfo `json:"pageInfo,omitempty"`
	Meta     map[string]any   `json:"meta,omitempty"`
}

// List converts the result into the cached list shape.
func (r GetListResult) List() record.List {
	return record.List{Data: r.Data, Total: r.Total, PageInfo: r.PageInfo}
}

type GetManyResult struct {
	Data []record.Record `json:"data"`
	Meta map[string]any  `json:"meta,omitempty"`
}

// RecordResult is returned by create, update and delete.
type RecordResult struct {
	Data record.Record  `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// IDsResult is returned by updateMany and deleteMany.
type IDsResult struct {
	Data []record.Identifier `json:"data"`
}
