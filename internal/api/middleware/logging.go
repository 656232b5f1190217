package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// trackedWriter wraps a ResponseWriter to observe what the handler sent:
// the status code and the payload size.
type trackedWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (t *trackedWriter) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.ResponseWriter.Write(p)
	t.bytes += n
	return n, err
}

// Logger emits one structured line per request once the handler
// finishes. The status starts at 200 because handlers that only Write
// never call WriteHeader.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tw := &trackedWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(tw, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", tw.status,
			"bytes", tw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
