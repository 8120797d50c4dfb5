package middleware

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// AccessLog logs one line per request with its status and duration.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Info("handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", m.Code,
				"bytes", m.Written,
				"duration", m.Duration,
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
