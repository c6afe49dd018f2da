package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(Metrics(reg))
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	expected := `
# HELP database_manager_http_requests_total HTTP requests served, by route, status and error tag.
# TYPE database_manager_http_requests_total counter
database_manager_http_requests_total{error_type="",method="GET",route="/items/{id}",status="418"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "database_manager_http_requests_total"))
}

func TestMetrics_RecordsErrorType(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(Metrics(reg))
	r.Get("/database-manager", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(ErrorTypeHeader, "NotFound")
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/plain", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/database-manager", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))

	expected := `
# HELP database_manager_http_requests_total HTTP requests served, by route, status and error tag.
# TYPE database_manager_http_requests_total counter
database_manager_http_requests_total{error_type="NotFound",method="GET",route="/database-manager",status="404"} 1
database_manager_http_requests_total{error_type="",method="GET",route="/plain",status="200"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "database_manager_http_requests_total"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
		zerolog.Ctx(req.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	out := buf.String()
	assert.Contains(t, out, `"message":"inside"`)
	assert.Contains(t, out, `"status":204`)
	assert.Contains(t, out, `"path":"/ping"`)
	assert.Contains(t, out, `"request_id":`)
}

func TestRequestLogger_LifecycleFields(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.Get("/database-manager", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(ErrorTypeHeader, "InternalError")
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/database-manager?operation=dropDatabase&databaseName=acme", nil))

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"operation":"dropDatabase"`)
	assert.Contains(t, out, `"database":"acme"`)
	assert.Contains(t, out, `"error_type":"InternalError"`)
	assert.Contains(t, out, `"status":500`)
}
