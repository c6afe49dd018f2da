package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrorTypeHeader carries the lifecycle error tag of a failed response.
const ErrorTypeHeader = "X-Error-Type"

// Metrics returns a chi middleware counting requests by route, status and
// lifecycle error tag, and timing them by route.
func Metrics(reg prometheus.Registerer) func(http.Handler) http.Handler {
	factory := promauto.With(reg)
	requests := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "database_manager_http_requests_total",
		Help: "HTTP requests served, by route, status and error tag.",
	}, []string{"method", "route", "status", "error_type"})
	latency := factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "database_manager_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "route"})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.Status()), rec.errorType).Inc()
			latency.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
		})
	}
}

// responseRecorder remembers the status and error tag of the response.
type responseRecorder struct {
	http.ResponseWriter
	status    int
	errorType string
}

func (w *responseRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
		w.errorType = w.Header().Get(ErrorTypeHeader)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Status returns the written status code, 200 when nothing was written.
func (w *responseRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
