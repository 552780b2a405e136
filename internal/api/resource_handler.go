package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/mutation"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/provider/memory"
	"github.com/revittco/mutacache/internal/query"
	"github.com/revittco/mutacache/internal/record"
)

// resourceHandler reads through the cache and writes through mutation
// hooks. The hooks are created once and addressed per request resource.
type resourceHandler struct {
	reader *query.Reader

	createHook     *mutation.Mutation[provider.CreateParams, record.Record]
	updateHook     *mutation.Mutation[provider.UpdateParams, record.Record]
	updateManyHook *mutation.Mutation[provider.UpdateManyParams, []record.Identifier]
	deleteHook     *mutation.Mutation[provider.DeleteParams, record.Record]
	deleteManyHook *mutation.Mutation[provider.DeleteManyParams, []record.Identifier]
}

func newResourceHandler(e *mutation.Engine, reader *query.Reader) *resourceHandler {
	return &resourceHandler{
		reader:         reader,
		createHook:     mutation.Create(e, "", provider.CreateParams{}, mutation.CreateOptions{}),
		updateHook:     mutation.Update(e, "", provider.UpdateParams{}, mutation.UpdateOptions{}),
		updateManyHook: mutation.UpdateMany(e, "", provider.UpdateManyParams{}, mutation.UpdateManyOptions{}),
		deleteHook:     mutation.Delete(e, "", provider.DeleteParams{}, mutation.DeleteOptions{}),
		deleteManyHook: mutation.DeleteMany(e, "", provider.DeleteManyParams{}, mutation.DeleteManyOptions{}),
	}
}

// list serves getList, or getMany when ?ids= is given, or
// getManyReference when ?target= is given.
func (h *resourceHandler) list(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	q := r.URL.Query()

	if v := q.Get("ids"); v != "" {
		records, err := h.reader.GetMany(r.Context(), resource, splitIDs(v))
		if err != nil {
			writeReadError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": records})
		return
	}

	page := provider.Pagination{Page: atoiOr(q.Get("page"), 1), PerPage: atoiOr(q.Get("per_page"), 25)}
	sort := provider.Sort{Field: q.Get("sort"), Order: strings.ToUpper(q.Get("order"))}
	if sort.Field == "" {
		sort.Field = "id"
	}
	if sort.Order == "" {
		sort.Order = "ASC"
	}

	if target := q.Get("target"); target != "" {
		l, err := h.reader.GetManyReference(r.Context(), resource, provider.GetManyReferenceParams{
			Target:     target,
			ID:         q.Get("id"),
			Pagination: page,
			Sort:       sort,
		})
		if err != nil {
			writeReadError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
		return
	}

	l, err := h.reader.GetList(r.Context(), resource, provider.GetListParams{Pagination: page, Sort: sort})
	if err != nil {
		writeReadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *resourceHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reader.GetOne(r.Context(), r.PathValue("resource"), r.PathValue("id"), nil)
	if err != nil {
		writeReadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (h *resourceHandler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data record.Record `json:"data"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, ok := modeParam(w, r)
	if !ok {
		return
	}
	hd := h.createHook.Mutate(r.Context(), r.PathValue("resource"), provider.CreateParams{Data: body.Data},
		mutation.CreateCallOptions{Mode: mode})
	respond(r.Context(), w, hd, http.StatusCreated)
}

func (h *resourceHandler) update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data         record.Record `json:"data"`
		PreviousData record.Record `json:"previousData"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, ok := modeParam(w, r)
	if !ok {
		return
	}
	hd := h.updateHook.Mutate(r.Context(), r.PathValue("resource"), provider.UpdateParams{
		ID:           r.PathValue("id"),
		Data:         body.Data,
		PreviousData: body.PreviousData,
	}, mutation.UpdateCallOptions{Mode: mode})
	respond(r.Context(), w, hd, http.StatusOK)
}

func (h *resourceHandler) delete(w http.ResponseWriter, r *http.Request) {
	mode, ok := modeParam(w, r)
	if !ok {
		return
	}
	hd := h.deleteHook.Mutate(r.Context(), r.PathValue("resource"), provider.DeleteParams{ID: r.PathValue("id")},
		mutation.DeleteCallOptions{Mode: mode})
	respond(r.Context(), w, hd, http.StatusOK)
}

func (h *resourceHandler) updateMany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs  []record.Identifier `json:"ids"`
		Data record.Record       `json:"data"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, ok := modeParam(w, r)
	if !ok {
		return
	}
	hd := h.updateManyHook.Mutate(r.Context(), r.PathValue("resource"), provider.UpdateManyParams{IDs: body.IDs, Data: body.Data},
		mutation.UpdateManyCallOptions{Mode: mode})
	respond(r.Context(), w, hd, http.StatusOK)
}

func (h *resourceHandler) deleteMany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []record.Identifier `json:"ids"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, ok := modeParam(w, r)
	if !ok {
		return
	}
	hd := h.deleteManyHook.Mutate(r.Context(), r.PathValue("resource"), provider.DeleteManyParams{IDs: body.IDs},
		mutation.DeleteManyCallOptions{Mode: mode})
	respond(r.Context(), w, hd, http.StatusOK)
}

type mutationResponse struct {
	MutationID string        `json:"mutation_id"`
	Mode       mutation.Mode `json:"mode"`
	// Status is "settled" once upstream answered, otherwise "pending".
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// respond waits for pessimistic mutations. Optimistic and undoable ones
// answer 202 with the value already in the cache unless they settled
// synchronously.
func respond[R any](ctx context.Context, w http.ResponseWriter, hd *mutation.Handle[R], status int) {
	if hd.Mode != mutation.Pessimistic {
		select {
		case <-hd.Done():
		default:
			writeJSON(w, http.StatusAccepted, mutationResponse{
				MutationID: hd.ID,
				Mode:       hd.Mode,
				Status:     "pending",
				Data:       hd.Optimistic(),
			})
			return
		}
	}
	data, err := hd.Wait(ctx)
	if err != nil {
		writeMutationError(w, hd, err)
		return
	}
	writeJSON(w, status, mutationResponse{MutationID: hd.ID, Mode: hd.Mode, Status: "settled", Data: data})
}

func writeMutationError[R any](w http.ResponseWriter, hd *mutation.Handle[R], err error) {
	switch {
	case errors.Is(err, mutation.ErrMissingID), errors.Is(err, mutation.ErrNoResource):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mutation.ErrUndone):
		writeErrorDetail(w, http.StatusConflict, err.Error(), hd.ID)
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, cache.ErrCancelled):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		writeErrorDetail(w, http.StatusBadGateway, "data provider failed", err.Error())
	}
}

func writeReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cache.ErrCancelled):
		writeError(w, http.StatusServiceUnavailable, "read cancelled by a concurrent mutation")
	default:
		writeErrorDetail(w, http.StatusBadGateway, "data provider failed", err.Error())
	}
}

func modeParam(w http.ResponseWriter, r *http.Request) (mutation.Mode, bool) {
	m, err := mutation.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return m, true
}

func splitIDs(v string) []record.Identifier {
	parts := strings.Split(v, ",")
	ids := make([]record.Identifier, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func atoiOr(v string, fallback int) int {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return fallback
}
