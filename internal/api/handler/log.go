package handler

import (
	"log/slog"
	"net/http"

	"github.com/dnothi/dnothi/internal/api/render"
)

// maxClientLogBytes bounds one POST /api/logs body. The route is public.
const maxClientLogBytes = 16 << 10

// LogHandler accepts client-side log entries. The route is unauthenticated,
// so entries carry no user identity beyond what the client reports.
type LogHandler struct {
	log *slog.Logger
}

// NewLogHandler creates a LogHandler writing to log.
func NewLogHandler(log *slog.Logger) *LogHandler {
	return &LogHandler{log: log.With("source", "client")}
}

type clientLog struct {
	Level     string         `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Message   string         `json:"message" validate:"required,notblank,max=4096"`
	URL       string         `json:"url"`
	UserAgent string         `json:"userAgent"`
	Context   map[string]any `json:"context" validate:"max=32"`
}

var clientLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Create handles POST /api/logs.
func (h *LogHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxClientLogBytes)
	var entry clientLog
	if !decodeJSON(w, r, &entry) {
		return
	}
	level, ok := clientLevels[entry.Level]
	if !ok {
		level = slog.LevelInfo
	}
	attrs := []any{"url", entry.URL, "user_agent", entry.UserAgent}
	if len(entry.Context) > 0 {
		attrs = append(attrs, "context", entry.Context)
	}
	h.log.Log(r.Context(), level, entry.Message, attrs...)
	render.Message(w, http.StatusAccepted, "Log received")
}
