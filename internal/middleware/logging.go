package middleware

import (
	"net/http"
	"time"

	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// quietPaths are polled often enough that logging them is noise.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// Logging puts a request-scoped logger in the context and logs each
// completed request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		logger := logging.FromContext(r.Context()).With("request_id", TraceIDFromContext(r.Context()))
		r = r.WithContext(logging.WithLogger(r.Context(), logger))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
