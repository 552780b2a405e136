// Package record defines the records held by the cache and the value shapes
// (single record, list, many, infinite pages) the cache stores them in.
package record

import (
	"fmt"
	"maps"
)

// Identifier is a record id: a string or a number, unique within a resource.
type Identifier = any

// Record is a single resource record. The "id" field holds its Identifier.
type Record map[string]any

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// MarshalJSON encodes Undefined as null.
func (undefinedValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Undefined marks a field as explicitly undefined. Merge never writes it, so
// {"id": Undefined, "title": "x"} updates title and keeps the cached id.
var Undefined any = undefinedValue{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefinedValue)
	return ok
}

// ID returns the record's identifier, or nil when it has none.
func (r Record) ID() Identifier {
	if r == nil {
		return nil
	}
	id := r["id"]
	if IsUndefined(id) {
		return nil
	}
	return id
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Merge returns a new record with fields applied over old. Undefined values
// are skipped; nil values overwrite. Neither argument is modified.
func Merge(old, fields Record) Record {
	out := make(Record, len(old)+len(fields))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range fields {
		if IsUndefined(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// Defined returns a copy of r without Undefined fields.
func (r Record) Defined() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if !IsUndefined(v) {
			out[k] = v
		}
	}
	return out
}

// SameID compares identifiers loosely: 1 and "1" are the same id.
func SameID(a, b Identifier) bool {
	if IsEmptyID(a) || IsEmptyID(b) {
		return false
	}
	return idString(a) == idString(b)
}

// IsEmptyID reports whether id is nil, Undefined or the empty string.
func IsEmptyID(id Identifier) bool {
	switch v := id.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return IsUndefined(id)
	}
}

func idString(id Identifier) string {
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprint(id)
}

// IDString renders an identifier the way cache keys address single records.
func IDString(id Identifier) string {
	if IsEmptyID(id) {
		return ""
	}
	return idString(id)
}

// IDSet is a set of identifiers compared with SameID semantics.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids, skipping empty identifiers.
func NewIDSet(ids []Identifier) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		if IsEmptyID(id) {
			continue
		}
		s[idString(id)] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id Identifier) bool {
	if IsEmptyID(id) {
		return false
	}
	_, ok := s[idString(id)]
	return ok
}

// Equal reports whether both sets hold the same identifiers.
func (s IDSet) Equal(o IDSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

// Dedupe returns ids without duplicates and empty identifiers, keeping the
// first occurrence order.
func Dedupe(ids []Identifier) []Identifier {
	seen := make(map[string]struct{}, len(ids))
	out := make([]Identifier, 0, len(ids))
	for _, id := range ids {
		if IsEmptyID(id) {
			continue
		}
		k := idString(id)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, id)
	}
	return out
}
