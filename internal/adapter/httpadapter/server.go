package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-risk-service/internal/aggregator"
	"github.com/couchcryptid/storm-risk-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RiskService is the query surface served over HTTP.
type RiskService interface {
	sharedobs.ReadinessChecker
	HotZones() aggregator.HotZonesView
	Atmospheric() aggregator.AtmosphericView
	ScanLocation(ctx context.Context, query string) (aggregator.ScanResult, error)
	ScanStatus() aggregator.ScanStatus
}

// Server exposes the risk API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        RiskService
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(addr string, svc RiskService, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second, // scans make up to three upstream calls
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/hotzones", s.handleHotZones)
	mux.HandleFunc("GET /api/v1/atmospheric", s.handleAtmospheric)
	mux.HandleFunc("GET /api/v1/scan", s.handleScan)
	mux.HandleFunc("GET /api/v1/scan/status", s.handleScanStatus)

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

func (s *Server) handleHotZones(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.svc.HotZones())
}

func (s *Server) handleAtmospheric(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.svc.Atmospheric())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ScanLocation(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		kind := domain.KindOf(err)
		s.logger.Debug("scan request failed", "kind", kind, "error", err)
		sharedobs.WriteJSON(w, statusFor(kind), map[string]string{
			"error": err.Error(),
			"kind":  string(kind),
		})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.svc.ScanStatus())
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
