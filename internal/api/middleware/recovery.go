package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/storycast/storycast/internal/api/response"
)

// Recovery converts handler panics into 500 responses. Without it a
// panicking handler tears down the whole connection and the client sees
// an EOF instead of an error envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			slog.Error("handler panicked",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
