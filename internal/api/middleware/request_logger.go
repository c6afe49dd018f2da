package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RequestLogger attaches a request-scoped logger to the context and logs
// one line per request with the lifecycle operation and tenant database.
// 4xx responses log at warn, 5xx at error.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			query := r.URL.Query()

			l := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			r = r.WithContext(l.WithContext(r.Context()))

			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.Status()
			ev := l.Info()
			switch {
			case status >= http.StatusInternalServerError:
				ev = l.Error()
			case status >= http.StatusBadRequest:
				ev = l.Warn()
			}
			if op := query.Get("operation"); op != "" {
				ev = ev.Str("operation", op)
			}
			if name := query.Get("databaseName"); name != "" {
				ev = ev.Str("database", name)
			}
			if rec.errorType != "" {
				ev = ev.Str("error_type", rec.errorType)
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(began)).
				Msg("http request")
		})
	}
}
