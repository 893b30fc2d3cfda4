package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/photostore"
	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/couchcryptid/floodguard-geodata-service/internal/service"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the geodata API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        *service.Service
	deliverer  *delivery.Deliverer
	photos     *photostore.Store
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates an HTTP server with the API routes and /healthz, /readyz, /metrics.
func NewServer(addr string, svc *service.Service, deliverer *delivery.Deliverer, photos *photostore.Store, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		svc:       svc,
		deliverer: deliverer,
		photos:    photos,
		logger:    logger,
		metrics:   metrics,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           withCORS(s.instrument(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// No WriteTimeout: a streamed reference layer may take longer than any fixed deadline.
		IdleTimeout: 60 * time.Second,
	}

	mux.HandleFunc("GET /api/floodrisk", s.handleFloodRisk)
	mux.HandleFunc("GET /api/reported-floods", s.handleListReports)
	mux.HandleFunc("GET /api/reported-floods/structured", s.handleListStructured)
	mux.HandleFunc("GET /api/reported-floods/{id}", s.handleGetReport)
	mux.HandleFunc("POST /api/reported-floods", s.handleCreateReport)
	mux.HandleFunc("POST /api/report-flood", s.handleCreateReportForm)
	mux.HandleFunc("GET /api/rain-gauge", s.handleListStations)
	mux.HandleFunc("GET /api/rain-gauge/{gaugeId}", s.handleGetStation)
	mux.HandleFunc("PUT /api/rain-gauge/{gaugeId}", s.handleUpsertStation)
	mux.Handle("GET "+photostore.URLPrefix, photos.Handler())

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr, "data_source", s.svc.BackendName())
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"data_source": s.svc.BackendName(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
}
