// Package health exposes the /api/health and /api/ready HTTP handlers.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dnothi/dnothi/internal/api/render"
	"github.com/dnothi/dnothi/internal/version"
)

// Pinger is implemented by anything that can check a downstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports a gauge-like count, such as live SSE connections.
type Counter interface {
	Len() int
}

// Handler holds dependencies for the health and ready endpoints.
type Handler struct {
	db        Pinger
	streams   Counter
	startTime time.Time
}

// New creates a Handler. db may be nil during startup before the pool is
// established; in that case /ready will return 503 immediately. streams may
// be nil.
func New(db Pinger, streams Counter) *Handler {
	return &Handler{db: db, streams: streams, startTime: time.Now()}
}

type healthBody struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"buildDate"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Streams       int    `json:"streams"`
}

// ServeHealth handles GET /api/health.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	body := healthBody{
		Status:        "ok",
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.Date,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.streams != nil {
		body.Streams = h.streams.Len()
	}
	render.JSON(w, http.StatusOK, body)
}

// ServeReady handles GET /api/ready.
// Returns 200 when the database is reachable; 503 otherwise.
func (h *Handler) ServeReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		render.ErrorDetail(w, http.StatusServiceUnavailable, "Service Unavailable",
			"database connection is not initialised")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		render.ErrorDetail(w, http.StatusServiceUnavailable, "Service Unavailable",
			"database is unreachable: "+err.Error())
		return
	}
	render.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
