// Package http exposes the engine's operational endpoints: health and
// readiness probes, Prometheus metrics, and an authenticated raster proxy
// that lets untrusted frontends fetch provider GeoTIFFs without ever
// holding the provider credential.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helioviz/solar-layer-engine/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// RasterFetcher downloads provider rasters, attaching the credential where
// appropriate. Implemented by solarapi.Client.
type RasterFetcher interface {
	FetchRaster(ctx context.Context, url string) ([]byte, error)
	ProviderHost() string
}

// Server exposes health, readiness, metrics, and raster proxy endpoints.
type Server struct {
	httpServer *http.Server
	fetcher    RasterFetcher
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /api/geotiff routes.
func NewServer(addr string, ready ReadinessChecker, fetcher RasterFetcher, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		fetcher: fetcher,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/geotiff", s.handleGeoTIFF)

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

// handleGeoTIFF proxies a provider raster download. Only URLs on the
// provider's own host are accepted, so the endpoint cannot be used as an
// open relay, and the credential never leaves the server.
func (s *Server) handleGeoTIFF(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing url parameter"})
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid url parameter"})
		return
	}
	if u.Host != s.fetcher.ProviderHost() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "url host not allowed"})
		return
	}

	data, err := s.fetcher.FetchRaster(r.Context(), rawURL)
	if err != nil {
		var fe *domain.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			s.logger.Warn("raster proxy upstream error", "url", rawURL, "status", fe.StatusCode)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream fetch failed"})
			return
		}
		s.logger.Warn("raster proxy fetch failed", "url", rawURL, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "fetch failed"})
		return
	}

	w.Header().Set("Content-Type", "image/tiff")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client disconnects are not actionable
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
