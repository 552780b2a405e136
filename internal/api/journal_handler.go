package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/revittco/mutacache/internal/store"
)

type journalHandler struct {
	store store.MutationStore
}

func (h *journalHandler) query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.MutationFilter{
		Limit:  50,
		Offset: 0,
	}

	if v := q.Get("resource"); v != "" {
		filter.Resource = &v
	}
	if v := q.Get("operation"); v != "" {
		filter.Operation = &v
	}
	if v := q.Get("mode"); v != "" {
		filter.Mode = &v
	}
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	filter.After = parseTime(q.Get("after"))
	filter.Before = parseTime(q.Get("before"))
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	entries, total, err := h.store.QueryMutations(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query mutations")
		return
	}

	if entries == nil {
		entries = []store.MutationEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   entries,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (h *journalHandler) get(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetMutation(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "mutation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get mutation")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// stats defaults to the last 24 hours.
func (h *journalHandler) stats(w http.ResponseWriter, r *http.Request) {
	before := time.Now().UTC()
	after := before.Add(-24 * time.Hour)
	if t := parseTime(r.URL.Query().Get("after")); t != nil {
		after = *t
	}
	if t := parseTime(r.URL.Query().Get("before")); t != nil {
		before = *t
	}
	s, err := h.store.GetMutationStats(r.Context(), after, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute mutation stats")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
