package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/covid-capacity-etl/internal/pipeline"
	"github.com/couchcryptid/covid-capacity-etl/internal/render"
)

// DatasetService holds the current snapshot and rebuilds it on demand.
// pipeline.Refresher implements it.
type DatasetService interface {
	sharedobs.ReadinessChecker
	Current() *pipeline.Snapshot
	Refresh(ctx context.Context) (*pipeline.Snapshot, error)
}

// Server exposes health, readiness, metrics and the dataset query API.
type Server struct {
	httpServer *http.Server
	service    DatasetService
	panels     *render.PanelCache
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the operational routes and the
// /api/v1 dataset routes. Rendered panels are served through panels.
func NewServer(addr string, svc DatasetService, panels *render.PanelCache, logger *slog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		service: svc,
		panels:  panels,
		logger:  logger,
	}

	router.Use(s.logRequests)

	router.HandleFunc("/healthz", sharedobs.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", sharedobs.ReadinessHandler(svc)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/dataset", s.handleDataset).Methods(http.MethodGet)
	api.HandleFunc("/places", s.handlePlaces).Methods(http.MethodGet)
	api.HandleFunc("/series/{field}", s.handleSeries).Methods(http.MethodGet)
	api.HandleFunc("/panels/{field:[a-z_]+}.png", s.handlePanel).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client disconnects are not actionable
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
