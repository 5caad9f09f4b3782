package routes

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logger logs one line per request and tags every response with an
// X-Request-ID header.
func Logger(out io.Writer) func(http.Handler) http.Handler {
	slogOpts := &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: false,
	}
	logger := slog.New(slog.NewTextHandler(out, slogOpts))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			took := time.Since(start).String()
			logger.Info("", "id", id, "status", rec.status, "latency", took, "method", r.Method, "path", r.URL.Path)
		})
	}
}
