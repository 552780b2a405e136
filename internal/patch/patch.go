// Package patch computes how a mutation's effect changes every cached view
// of a resource. The updaters are pure: they build new values and report
// unchanged entries so the store leaves them alone.
package patch

import (
	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/record"
)

// Effect is what a mutation did to a resource's records.
type Effect struct {
	IDs []record.Identifier
	// Fields are merged into every affected record. Undefined fields are
	// skipped. Ignored when Delete is set.
	Fields record.Record
	// Delete removes the affected records from collections.
	Delete bool
	// Complete marks Fields as the full record returned upstream for a
	// single id, which also seeds an absent single-record entry.
	Complete bool
}

// Update is the effect of writing fields to ids.
func Update(ids []record.Identifier, fields record.Record) Effect {
	return Effect{IDs: ids, Fields: fields}
}

// Remove is the effect of deleting ids.
func Remove(ids []record.Identifier) Effect {
	return Effect{IDs: ids, Delete: true}
}

// Saved is the effect of upstream returning rec as the stored record.
func Saved(rec record.Record) Effect {
	return Effect{IDs: []record.Identifier{rec.ID()}, Fields: rec, Complete: true}
}

// Records patches a slice of records. It returns the new slice, the
// number of records removed, and whether anything matched.
func Records(records []record.Record, e Effect) ([]record.Record, int, bool) {
	ids := record.NewIDSet(e.IDs)
	if len(ids) == 0 {
		return records, 0, false
	}
	if e.Delete {
		out := make([]record.Record, 0, len(records))
		for _, r := range records {
			if !ids.Has(r.ID()) {
				out = append(out, r)
			}
		}
		removed := len(records) - len(out)
		if removed == 0 {
			return records, 0, false
		}
		return out, removed, true
	}

	var out []record.Record
	for i, r := range records {
		if !ids.Has(r.ID()) {
			continue
		}
		if out == nil {
			out = make([]record.Record, len(records))
			copy(out, records)
		}
		out[i] = record.Merge(r, e.Fields)
	}
	if out == nil {
		return records, 0, false
	}
	return out, 0, true
}

// List patches a list value. Deletions decrement Total by the number of
// records actually removed.
func List(l record.List, e Effect) (record.List, bool) {
	data, removed, changed := Records(l.Data, e)
	if !changed {
		return l, false
	}
	out := record.List{Data: data, Total: l.Total, PageInfo: l.PageInfo}
	if l.Total != nil && removed > 0 {
		out.Total = record.IntPtr(*l.Total - removed)
	}
	return out, true
}

// Infinite patches every page independently, keeping page params.
func Infinite(inf record.Infinite, e Effect) (record.Infinite, bool) {
	var pages []record.List
	for i, p := range inf.Pages {
		np, changed := List(p, e)
		if !changed {
			continue
		}
		if pages == nil {
			pages = make([]record.List, len(inf.Pages))
			copy(pages, inf.Pages)
		}
		pages[i] = np
	}
	if pages == nil {
		return inf, false
	}
	return record.Infinite{Pages: pages, PageParams: inf.PageParams}, true
}

// One patches a single-record value.
func One(r record.Record, e Effect) (record.Record, bool) {
	if e.Delete || r == nil {
		return r, false
	}
	if !record.NewIDSet(e.IDs).Has(r.ID()) {
		return r, false
	}
	return record.Merge(r, e.Fields), true
}

// Updater adapts the patch of one value shape to cache.Updater. Values of
// another shape are left unchanged.
func Updater(e Effect) cache.Updater {
	return func(old any) (any, bool) {
		switch v := old.(type) {
		case record.Record:
			return One(v, e)
		case record.List:
			return List(v, e)
		case []record.Record:
			data, _, changed := Records(v, e)
			return data, changed
		case record.Infinite:
			return Infinite(v, e)
		}
		return old, false
	}
}

// Apply patches every cached view of resource affected by e and returns
// the keys written. Single-record entries are merged for updates only;
// deleting them is left to the caller once the delete is committed.
func Apply(store *cache.Store, resource string, e Effect, opts ...cache.SetOption) []cache.Key {
	u := Updater(e)
	var written []cache.Key
	if !e.Delete {
		for _, id := range record.Dedupe(e.IDs) {
			keys := store.SetByPrefix(cachekey.OnePrefix(resource, id), u, opts...)
			if len(keys) == 0 && e.Complete {
				k := cachekey.One(resource, id, nil)
				store.Set(k, e.Fields.Defined(), opts...)
				keys = []cache.Key{k}
			}
			written = append(written, keys...)
		}
	}
	for _, op := range cachekey.CollectionOps {
		written = append(written, store.SetByPrefix(cachekey.Op(resource, op), u, opts...)...)
	}
	return written
}
