package cache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key is an ordered tuple addressing a cached result, usually
// (resource, operation, params). Two keys are equal iff their JSON
// serialisations are equal, so params structs and maps with the same content
// address the same entry.
type Key []any

// String returns the canonical JSON form of k.
func (k Key) String() string {
	return "[" + strings.Join(k.parts(), ",") + "]"
}

// HasPrefix reports whether the leading elements of k equal prefix.
func (k Key) HasPrefix(prefix Key) bool {
	return hasPrefix(k.parts(), prefix.parts())
}

func (k Key) parts() []string {
	out := make([]string, len(k))
	for i, el := range k {
		out[i] = encodeElem(el)
	}
	return out
}

func encodeElem(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Unencodable elements still need a stable form.
		return fmt.Sprintf("%q", fmt.Sprintf("%#v", v))
	}
	return string(b)
}

func hasPrefix(parts, prefix []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if parts[i] != prefix[i] {
			return false
		}
	}
	return true
}
