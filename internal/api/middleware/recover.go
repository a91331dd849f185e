package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/dnothi/dnothi/internal/api/render"
)

// Recover turns a panic into a 500. The panic value is only echoed to the
// client outside production.
func Recover(log *slog.Logger, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.ErrorContext(r.Context(), "panic serving request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				if production {
					render.Error(w, http.StatusInternalServerError, "Internal server error")
					return
				}
				render.ErrorDetail(w, http.StatusInternalServerError, "Internal server error", fmt.Sprint(rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
