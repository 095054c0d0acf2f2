package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-history-analyzer/internal/analysis"
	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
)

const (
	maxRequestBytes = 1 << 20
	// An analysis downloads dozens of granules before it answers.
	analysisWriteTimeout = 15 * time.Minute
)

// postGuidance is returned for GET requests on weather paths.
const postGuidance = "Use POST /api/weather with JSON body"

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Submitter runs one analysis and waits for its outcome.
type Submitter interface {
	Submit(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error)
}

// Server exposes the analysis API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	submitter  Submitter
	logger     *slog.Logger
}

// NewServer creates an HTTP server with POST /api/weather, /healthz, /readyz,
// and /metrics routes.
func NewServer(addr string, ready ReadinessChecker, submitter Submitter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: analysisWriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		submitter: submitter,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/weather", s.handleAnalyze)
	mux.HandleFunc("GET /", handleFallback)

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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleFallback answers GETs on unregistered paths. Any path starting with
// "weather" gets the POST guidance; everything else is 404.
func handleFallback(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(strings.TrimPrefix(r.URL.Path, "/"), "weather") {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, domain.Response{Error: postGuidance})
}

// handleAnalyze runs one analysis. Malformed or invalid requests get 400;
// analysis failures are reported as {"error": ...} with 200.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req domain.AnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.Response{Error: fmt.Sprintf("invalid JSON body: %v", err)})
		return
	}
	req.TargetDate = strings.TrimSpace(req.TargetDate)
	if err := analysis.Validate(req); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.Response{Error: err.Error()})
		return
	}
	if _, err := domain.ParseTargetDate(req.TargetDate); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.Response{Error: err.Error()})
		return
	}

	result, err := s.submitter.Submit(r.Context(), req)
	if errors.Is(err, analysis.ErrWorkerStopped) {
		writeJSON(w, http.StatusServiceUnavailable, domain.Response{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Info("analysis returned error", "error", err)
	}
	writeJSON(w, http.StatusOK, analysis.Respond(result, err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
