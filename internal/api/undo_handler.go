package api

import (
	"errors"
	"net/http"

	"github.com/revittco/mutacache/internal/undo"
)

type undoHandler struct {
	manager *undo.Manager
}

func (h *undoHandler) list(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	out := []undo.Pending{}
	for _, p := range h.manager.ListPending() {
		if matchFilter(p.Resource, resource) {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *undoHandler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no pending mutation")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type decisionRequest struct {
	Undo bool `json:"undo"`
}

func (d decisionRequest) decision() undo.Decision {
	if d.Undo {
		return undo.Undo
	}
	return undo.Confirm
}

func (h *undoHandler) resolve(w http.ResponseWriter, r *http.Request) {
	var body decisionRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.manager.Resolve(r.PathValue("id"), body.decision()); err != nil {
		if errors.Is(err, undo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no pending mutation")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": statusFor(body.decision())})
}

// emit delivers one decision to every pending mutation.
func (h *undoHandler) emit(w http.ResponseWriter, r *http.Request) {
	var body decisionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	n := h.manager.Emit(body.decision())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   statusFor(body.decision()),
		"resolved": n,
	})
}

func statusFor(d undo.Decision) string {
	if d.IsUndo {
		return undo.StatusUndone
	}
	return undo.StatusConfirmed
}
