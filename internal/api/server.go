package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	mw "github.com/edvin/dbmanager/internal/api/middleware"
	"github.com/edvin/dbmanager/internal/api/response"
	"github.com/edvin/dbmanager/internal/model"
)

// RequestHandler runs one lifecycle request.
type RequestHandler interface {
	Handle(ctx context.Context, req model.Request) model.Response
}

// Server serves lifecycle requests over HTTP using the same query
// parameters as the API Gateway integration.
type Server struct {
	router    chi.Router
	logger    zerolog.Logger
	lifecycle RequestHandler
	reg       *prometheus.Registry
}

// NewServer creates a Server. HTTP metrics are registered on reg, which is
// also what /metrics exposes.
func NewServer(logger zerolog.Logger, lifecycle RequestHandler, reg *prometheus.Registry) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With().Str("component", "api").Logger(),
		lifecycle: lifecycle,
		reg:       reg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics(s.reg))
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Get("/database-manager", s.handleLifecycle)
	s.router.Post("/database-manager", s.handleLifecycle)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	params := map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	req, err := model.ParseRequest(model.Event{
		RequestID:             middleware.GetReqID(r.Context()),
		QueryStringParameters: params,
	})
	if err != nil {
		response.WriteResponse(w, model.RejectEvent(err))
		return
	}

	response.WriteResponse(w, s.lifecycle.Handle(r.Context(), req))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
