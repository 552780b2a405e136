package mutation

import (
	"context"
	"slices"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/patch"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/record"
)

// operation describes how one provider mutation maps onto the cache.
type operation[P, R any] struct {
	name     string
	call     func(ctx context.Context, dp provider.DataProvider, resource string, p P) (R, error)
	ids      func(p P) []record.Identifier
	validate func(p P, mode Mode) error
	// optimistic returns the patch applied before the upstream call and
	// the result reported until it settles.
	optimistic func(s *cache.Store, resource string, p P) (patch.Effect, R)
	// committed returns the patch of a successful pessimistic call.
	committed func(p P, res R) (patch.Effect, bool)
	// deletes marks operations whose single-record entries are dropped on
	// commit.
	deletes bool
}

type (
	CreateOptions     = Options[provider.CreateParams, record.Record]
	UpdateOptions     = Options[provider.UpdateParams, record.Record]
	UpdateManyOptions = Options[provider.UpdateManyParams, []record.Identifier]
	DeleteOptions     = Options[provider.DeleteParams, record.Record]
	DeleteManyOptions = Options[provider.DeleteManyParams, []record.Identifier]

	CreateCallOptions     = CallOptions[provider.CreateParams, record.Record]
	UpdateCallOptions     = CallOptions[provider.UpdateParams, record.Record]
	UpdateManyCallOptions = CallOptions[provider.UpdateManyParams, []record.Identifier]
	DeleteCallOptions     = CallOptions[provider.DeleteParams, record.Record]
	DeleteManyCallOptions = CallOptions[provider.DeleteManyParams, []record.Identifier]
)

// Create returns a create hook. Optimistic and undoable creates need the
// id in the data, since the cache entry is written before upstream
// assigns one.
func Create(e *Engine, resource string, defaults provider.CreateParams, opts CreateOptions) *Mutation[provider.CreateParams, record.Record] {
	return newMutation(e, createOp, resource, defaults, opts)
}

var createOp = operation[provider.CreateParams, record.Record]{
	name: string(provider.MethodCreate),
	call: func(ctx context.Context, dp provider.DataProvider, resource string, p provider.CreateParams) (record.Record, error) {
		res, err := dp.Create(ctx, resource, p)
		return res.Data, err
	},
	ids: func(p provider.CreateParams) []record.Identifier {
		if id := p.Data.ID(); !record.IsEmptyID(id) {
			return []record.Identifier{id}
		}
		return nil
	},
	validate: func(p provider.CreateParams, mode Mode) error {
		if mode.optimistic() && record.IsEmptyID(p.Data.ID()) {
			return ErrMissingID
		}
		return nil
	},
	optimistic: func(_ *cache.Store, _ string, p provider.CreateParams) (patch.Effect, record.Record) {
		return patch.Saved(p.Data), p.Data.Defined()
	},
	committed: func(_ provider.CreateParams, res record.Record) (patch.Effect, bool) {
		if record.IsEmptyID(res.ID()) {
			return patch.Effect{}, false
		}
		return patch.Saved(res), true
	},
}

// Update returns an update hook.
func Update(e *Engine, resource string, defaults provider.UpdateParams, opts UpdateOptions) *Mutation[provider.UpdateParams, record.Record] {
	return newMutation(e, updateOp, resource, defaults, opts)
}

var updateOp = operation[provider.UpdateParams, record.Record]{
	name: string(provider.MethodUpdate),
	call: func(ctx context.Context, dp provider.DataProvider, resource string, p provider.UpdateParams) (record.Record, error) {
		res, err := dp.Update(ctx, resource, p)
		return res.Data, err
	},
	ids:      func(p provider.UpdateParams) []record.Identifier { return []record.Identifier{p.ID} },
	validate: requireID(func(p provider.UpdateParams) record.Identifier { return p.ID }),
	optimistic: func(s *cache.Store, resource string, p provider.UpdateParams) (patch.Effect, record.Record) {
		prev := cachedOne(s, resource, p.ID, p.Meta, p.PreviousData)
		out := record.Merge(prev, p.Data)
		if record.IsEmptyID(out.ID()) {
			out["id"] = p.ID
		}
		return patch.Update([]record.Identifier{p.ID}, p.Data), out
	},
	committed: func(p provider.UpdateParams, res record.Record) (patch.Effect, bool) {
		if record.IsEmptyID(res.ID()) {
			return patch.Update([]record.Identifier{p.ID}, p.Data), true
		}
		return patch.Effect{IDs: []record.Identifier{p.ID}, Fields: res, Complete: true}, true
	},
}

// UpdateMany returns an updateMany hook.
func UpdateMany(e *Engine, resource string, defaults provider.UpdateManyParams, opts UpdateManyOptions) *Mutation[provider.UpdateManyParams, []record.Identifier] {
	return newMutation(e, updateManyOp, resource, defaults, opts)
}

var updateManyOp = operation[provider.UpdateManyParams, []record.Identifier]{
	name: string(provider.MethodUpdateMany),
	call: func(ctx context.Context, dp provider.DataProvider, resource string, p provider.UpdateManyParams) ([]record.Identifier, error) {
		res, err := dp.UpdateMany(ctx, resource, p)
		return res.Data, err
	},
	ids:      func(p provider.UpdateManyParams) []record.Identifier { return p.IDs },
	validate: func(provider.UpdateManyParams, Mode) error { return nil },
	optimistic: func(_ *cache.Store, _ string, p provider.UpdateManyParams) (patch.Effect, []record.Identifier) {
		return patch.Update(p.IDs, p.Data), slices.Clone(p.IDs)
	},
	committed: func(p provider.UpdateManyParams, _ []record.Identifier) (patch.Effect, bool) {
		return patch.Update(p.IDs, p.Data), true
	},
}

// Delete returns a delete hook.
func Delete(e *Engine, resource string, defaults provider.DeleteParams, opts DeleteOptions) *Mutation[provider.DeleteParams, record.Record] {
	return newMutation(e, deleteOp, resource, defaults, opts)
}

var deleteOp = operation[provider.DeleteParams, record.Record]{
	name: string(provider.MethodDelete),
	call: func(ctx context.Context, dp provider.DataProvider, resource string, p provider.DeleteParams) (record.Record, error) {
		res, err := dp.Delete(ctx, resource, p)
		return res.Data, err
	},
	ids:      func(p provider.DeleteParams) []record.Identifier { return []record.Identifier{p.ID} },
	validate: requireID(func(p provider.DeleteParams) record.Identifier { return p.ID }),
	optimistic: func(s *cache.Store, resource string, p provider.DeleteParams) (patch.Effect, record.Record) {
		prev := cachedOne(s, resource, p.ID, p.Meta, p.PreviousData)
		if prev == nil {
			prev = record.Record{"id": p.ID}
		}
		return patch.Remove([]record.Identifier{p.ID}), prev.Clone()
	},
	committed: func(p provider.DeleteParams, _ record.Record) (patch.Effect, bool) {
		return patch.Remove([]record.Identifier{p.ID}), true
	},
	deletes: true,
}

// DeleteMany returns a deleteMany hook.
func DeleteMany(e *Engine, resource string, defaults provider.DeleteManyParams, opts DeleteManyOptions) *Mutation[provider.DeleteManyParams, []record.Identifier] {
	return newMutation(e, deleteManyOp, resource, defaults, opts)
}

var deleteManyOp = operation[provider.DeleteManyParams, []record.Identifier]{
	name: string(provider.MethodDeleteMany),
	call: func(ctx context.Context, dp provider.DataProvider, resource string, p provider.DeleteManyParams) ([]record.Identifier, error) {
		res, err := dp.DeleteMany(ctx, resource, p)
		return res.Data, err
	},
	ids:      func(p provider.DeleteManyParams) []record.Identifier { return p.IDs },
	validate: func(provider.DeleteManyParams, Mode) error { return nil },
	optimistic: func(_ *cache.Store, _ string, p provider.DeleteManyParams) (patch.Effect, []record.Identifier) {
		return patch.Remove(p.IDs), slices.Clone(p.IDs)
	},
	committed: func(p provider.DeleteManyParams, _ []record.Identifier) (patch.Effect, bool) {
		return patch.Remove(p.IDs), true
	},
	deletes: true,
}

func requireID[P any](id func(P) record.Identifier) func(P, Mode) error {
	return func(p P, _ Mode) error {
		if record.IsEmptyID(id(p)) {
			return ErrMissingID
		}
		return nil
	}
}

// cachedOne returns the cached single record, falling back to prev.
func cachedOne(s *cache.Store, resource string, id record.Identifier, meta map[string]any, prev record.Record) record.Record {
	if v, ok := s.Get(cachekey.One(resource, id, meta)); ok {
		if r, ok := v.(record.Record); ok {
			return r
		}
	}
	return prev
}
