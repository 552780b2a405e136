package api

import (
	"net/http"
	"time"
)

var startTime = time.Now()

// Version is reported by the health endpoint. It is set by the binary.
var Version = "dev"

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int    `json:"uptime_seconds"`
	DefaultMode   string `json:"default_mode"`
	Journal       string `json:"journal"`
}

type healthHandler struct {
	deps *RouterDeps
}

func (h *healthHandler) check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int(time.Since(startTime).Seconds()),
		DefaultMode:   string(h.deps.Engine.DefaultMode()),
		Journal:       "disabled",
	}
	status := http.StatusOK
	if h.deps.DB != nil {
		resp.Journal = "ok"
		if err := h.deps.DB.Ping(r.Context()); err != nil {
			resp.Status, resp.Journal = "degraded", err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}
