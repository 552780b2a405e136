package mutation

import (
	"github.com/revittco/mutacache/internal/cache"
)

type snapEntry struct {
	key  cache.Key
	prev cache.Entry
	// present is false for keys the patch created.
	present bool
	// wrote is the version this mutation's own patch left on the key, or
	// zero when the patch did not touch it.
	wrote uint64
}

// snapshot holds the entries a mutation may have to restore.
type snapshot struct {
	entries []*snapEntry
	index   map[string]*snapEntry
}

func takeSnapshot(s *cache.Store, prefixes []cache.Key) *snapshot {
	snap := &snapshot{index: make(map[string]*snapEntry)}
	for _, p := range prefixes {
		for _, e := range s.GetByPrefix(p) {
			snap.add(&snapEntry{key: e.Key, prev: e, present: true})
		}
	}
	return snap
}

func (sn *snapshot) add(e *snapEntry) *snapEntry {
	k := e.key.String()
	if have, ok := sn.index[k]; ok {
		return have
	}
	sn.index[k] = e
	sn.entries = append(sn.entries, e)
	return e
}

// wrote records the versions of the keys the patch wrote.
func (sn *snapshot) wrote(s *cache.Store, keys []cache.Key) {
	for _, k := range keys {
		e, ok := s.Entry(k)
		if !ok {
			continue
		}
		sn.add(&snapEntry{key: k}).wrote = e.Version
	}
}

// restore puts back every entry this mutation overwrote, as long as
// nothing wrote the key since, and removes the keys it created. A key
// written meanwhile is invalidated instead so the next read fetches the
// truth.
func (sn *snapshot) restore(s *cache.Store) (restored, conflicts int) {
	for _, e := range sn.entries {
		if e.wrote == 0 {
			continue
		}
		var ok bool
		if e.present {
			ok = s.Restore(e.prev, e.wrote)
		} else {
			ok = s.CompareAndRemove(e.key, e.wrote)
		}
		if ok {
			restored++
			continue
		}
		s.Invalidate(e.key)
		conflicts++
	}
	return restored, conflicts
}
