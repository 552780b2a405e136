// Package api serves the HTTP surface of mutacache: the confirmation
// channel for undoable mutations, the mutation journal, cache
// administration and a resource API that drives the mutation engine.
package api

import (
	"net/http"

	"github.com/revittco/mutacache/internal/eventbus"
	"github.com/revittco/mutacache/internal/mutation"
	"github.com/revittco/mutacache/internal/query"
	"github.com/revittco/mutacache/internal/store"
	"github.com/revittco/mutacache/internal/undo"
)

// RouterDeps holds the dependencies needed by the HTTP API router.
type RouterDeps struct {
	Engine     *mutation.Engine
	Reader     *query.Reader
	DB         store.Store                        // optional; enables the journal endpoints
	JournalBus *eventbus.Bus[store.MutationEntry] // optional; enables the journal SSE stream
	UndoBus    *eventbus.Bus[undo.Event]          // optional; enables the undo SSE stream
	Metrics    http.Handler                       // optional; served at /metrics
}

// NewRouter creates an http.Handler with all API routes.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	uh := &undoHandler{manager: deps.Engine.Undo()}
	mux.HandleFunc("GET /api/v1/undo", uh.list)
	mux.HandleFunc("GET /api/v1/undo/{id}", uh.get)
	mux.HandleFunc("POST /api/v1/undo/{id}/resolve", uh.resolve)
	mux.HandleFunc("POST /api/v1/undo/emit", uh.emit)
	if deps.UndoBus != nil {
		mux.HandleFunc("GET /api/v1/undo/stream", sseHandler(deps.UndoBus, undoEventFilter))
	}

	ch := &cacheHandler{store: deps.Engine.Store()}
	mux.HandleFunc("GET /api/v1/cache/stats", ch.stats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", ch.invalidate)

	if deps.DB != nil {
		jh := &journalHandler{store: deps.DB}
		mux.HandleFunc("GET /api/v1/mutations", jh.query)
		mux.HandleFunc("GET /api/v1/mutations/stats", jh.stats)
		mux.HandleFunc("GET /api/v1/mutations/{id}", jh.get)
	}
	if deps.JournalBus != nil {
		mux.HandleFunc("GET /api/v1/mutations/stream", sseHandler(deps.JournalBus, mutationEntryFilter))
	}

	rh := newResourceHandler(deps.Engine, deps.Reader)
	mux.HandleFunc("GET /api/v1/resources/{resource}", rh.list)
	mux.HandleFunc("GET /api/v1/resources/{resource}/{id}", rh.get)
	mux.HandleFunc("POST /api/v1/resources/{resource}", rh.create)
	mux.HandleFunc("PUT /api/v1/resources/{resource}/{id}", rh.update)
	mux.HandleFunc("DELETE /api/v1/resources/{resource}/{id}", rh.delete)
	mux.HandleFunc("POST /api/v1/resources/{resource}/update-many", rh.updateMany)
	mux.HandleFunc("POST /api/v1/resources/{resource}/delete-many", rh.deleteMany)

	hh := &healthHandler{deps: &deps}
	mux.HandleFunc("GET /api/v1/health", hh.check)

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	// Apply middleware chain: CORS -> Origin -> RequestID -> Logging -> JSON -> Security -> mux
	var handler http.Handler = mux
	handler = securityHeadersMiddleware(handler)
	handler = requireJSONContentTypeMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = browserOriginProtectionMiddleware(handler)
	handler = corsMiddleware(handler)

	return handler
}
