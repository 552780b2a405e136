package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/revittco/mutacache/internal/eventbus"
	"github.com/revittco/mutacache/internal/store"
	"github.com/revittco/mutacache/internal/undo"
)

const sseHeartbeat = 15 * time.Second

// sseHandler streams every event on bus accepted by filter as
// server-sent events.
func sseHandler[E any](bus *eventbus.Bus[E], filter func(E, url.Values) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}
		q := r.URL.Query()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !filter(evt, q) {
					continue
				}
				data, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			case <-heartbeat.C:
				fmt.Fprint(w, ":\n\n")
				flusher.Flush()
			}
		}
	}
}

func undoEventFilter(evt undo.Event, q url.Values) bool {
	if evt.Pending == nil {
		return true
	}
	return matchFilter(evt.Type, q.Get("type")) &&
		matchFilter(evt.Pending.Resource, q.Get("resource"))
}

func mutationEntryFilter(m store.MutationEntry, q url.Values) bool {
	return matchFilter(m.Resource, q.Get("resource")) &&
		matchFilter(m.Status, q.Get("status")) &&
		matchFilter(m.Mode, q.Get("mode"))
}

// matchFilter returns true if the filter is empty or matches the value.
func matchFilter(value, filter string) bool {
	return filter == "" || value == filter
}
