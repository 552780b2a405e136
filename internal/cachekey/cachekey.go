// Package cachekey builds the cache keys under which read results of a
// resource are stored, and the prefixes mutations use to reach them.
package cachekey

import (
	"slices"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/record"
)

// Operation names used as the second element of cache keys.
const (
	OpGetOne           = "getOne"
	OpGetList          = "getList"
	OpGetMany          = "getMany"
	OpGetManyReference = "getManyReference"
	OpGetInfiniteList  = "getInfiniteList"
)

// CollectionOps are the operations whose entries hold several records of
// a resource.
var CollectionOps = []string{OpGetList, OpGetInfiniteList, OpGetMany, OpGetManyReference}

// Resource addresses every entry of resource.
func Resource(resource string) cache.Key {
	return cache.Key{resource}
}

// Op addresses every entry of one operation on resource.
func Op(resource, op string) cache.Key {
	return cache.Key{resource, op}
}

// One is the key of a single-record entry. Ids are stringified so 1 and
// "1" share an entry.
func One(resource string, id record.Identifier, meta map[string]any) cache.Key {
	k := cache.Key{resource, OpGetOne, record.IDString(id)}
	if len(meta) > 0 {
		k = append(k, meta)
	}
	return k
}

// OnePrefix addresses every single-record entry of id, whatever its meta.
func OnePrefix(resource string, id record.Identifier) cache.Key {
	return cache.Key{resource, OpGetOne, record.IDString(id)}
}

type manyParams struct {
	IDs  []string       `json:"ids"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Many is the key of a getMany entry for exactly ids, in order.
func Many(resource string, ids []record.Identifier, meta map[string]any) cache.Key {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = record.IDString(id)
	}
	return cache.Key{resource, OpGetMany, manyParams{IDs: s, Meta: meta}}
}

// List is the key of a getList entry.
func List(resource string, p provider.GetListParams) cache.Key {
	return cache.Key{resource, OpGetList, p}
}

// Reference is the key of a getManyReference entry.
func Reference(resource string, p provider.GetManyReferenceParams) cache.Key {
	p.ID = record.IDString(p.ID)
	return cache.Key{resource, OpGetManyReference, p}
}

type infiniteParams struct {
	PerPage int            `json:"perPage"`
	Sort    provider.Sort  `json:"sort"`
	Filter  map[string]any `json:"filter"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Infinite is the key of a getInfiniteList entry. The page number is
// not part of the key: every page lives in the same entry.
func Infinite(resource string, p provider.GetListParams) cache.Key {
	return cache.Key{resource, OpGetInfiniteList, infiniteParams{
		PerPage: p.Pagination.PerPage,
		Sort:    p.Sort,
		Filter:  p.Filter,
		Meta:    p.Meta,
	}}
}

// Affected lists the prefixes a mutation on ids of resource can
// touch: the single-record entries of each id, unless skipOne is set, and
// every collection entry of the resource.
func Affected(resource string, ids []record.Identifier, skipOne bool) []cache.Key {
	var out []cache.Key
	if !skipOne {
		for _, id := range record.Dedupe(ids) {
			out = append(out, OnePrefix(resource, id))
		}
	}
	for _, op := range CollectionOps {
		out = append(out, Op(resource, op))
	}
	return slices.Clip(out)
}
