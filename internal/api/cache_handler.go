package api

import (
	"net/http"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/record"
)

type cacheHandler struct {
	store *cache.Store
}

type cacheStatsResponse struct {
	cache.Stats
}

func (h *cacheHandler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, cacheStatsResponse{Stats: h.store.Stats()})
}

type invalidateRequest struct {
	Resource  string `json:"resource"`  // empty flushes every entry
	Operation string `json:"operation"` // optional: getOne, getList, getMany, ...
	ID        any    `json:"id"`        // optional: one record's getOne entries
}

func (h *cacheHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var n int
	switch {
	case req.Resource == "":
		n = h.store.Len()
		h.store.Flush()
		writeJSON(w, http.StatusOK, map[string]any{"status": "flushed", "entries": n})
		return
	case !record.IsEmptyID(req.ID):
		n = h.store.Invalidate(cachekey.OnePrefix(req.Resource, req.ID))
	case req.Operation != "":
		n = h.store.Invalidate(cachekey.Op(req.Resource, req.Operation))
	default:
		n = h.store.Invalidate(cachekey.Resource(req.Resource))
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "entries": n})
}
