// Package router provides HTTP routing configuration using Chi.
package router

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/remiblancher/crl-engine/internal/api/handler"
	"github.com/remiblancher/crl-engine/internal/api/middleware"
	"github.com/remiblancher/crl-engine/internal/engine"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config holds router configuration.
type Config struct {
	Engine  *engine.Engine
	Version string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoints (always enabled)
	healthHandler := handler.NewHealthHandler(cfg.Version, cfg.Engine.Config.Engine.Instance, cfg.Engine.Store)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// OpenAPI spec
	r.Get("/api/openapi.yaml", serveOpenAPISpec)

	// Prometheus metrics
	if m := cfg.Engine.Metrics; m != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	// Publication endpoint for relying parties (no auth, standard clients)
	publishHandler := handler.NewPublishHandler(cfg.Engine)
	r.Get("/crl/{ca}.crl", publishHandler.ActiveCRL)

	// Management API
	crlHandler := handler.NewCRLHandler(cfg.Engine)
	distHandler := handler.NewDistributionHandler(cfg.Engine)
	statsHandler := handler.NewStatsHandler(cfg.Engine)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cas/{ca}", func(r chi.Router) {
			r.Post("/crls", crlHandler.Generate)
			r.Get("/crls", crlHandler.List)
			r.Post("/retry", distHandler.Retry)
			r.Get("/points", distHandler.Points)
			r.Get("/stats", statsHandler.Stats)
			r.Post("/cleanup", crlHandler.Cleanup)
		})

		r.Route("/crls/{id}", func(r chi.Router) {
			r.Get("/", crlHandler.Get)
			r.Post("/validate", crlHandler.Validate)
			r.Get("/export", crlHandler.Export)
			r.Post("/distribute", distHandler.Distribute)
		})

		// Engine-wide aggregate; {ca} is absent so the handler sees "".
		r.Get("/stats", statsHandler.Stats)
		r.Post("/sweep", crlHandler.Sweep)
	})

	return r
}

// serveOpenAPISpec serves the OpenAPI specification file.
func serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}
