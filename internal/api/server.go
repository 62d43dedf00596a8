// Package api provides the REST API server for the trials registry.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/AntonAks/TaskFromTal/internal/api/v1"
	"github.com/AntonAks/TaskFromTal/internal/logger"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
	dashboard   http.Handler
	metrics     prometheus.Gatherer
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithDashboard mounts the chart dashboard at the root path
func WithDashboard(handler http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.dashboard = handler
	}
}

// WithMetricsGatherer exposes the given registry on /metrics
func WithMetricsGatherer(gatherer prometheus.Gatherer) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metrics = gatherer
	}
}

// NewServer creates and configures the HTTP router with the given routes
// and options
func NewServer(routes *v1.Routes, readiness v1.ReadinessChecker, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	// Health check routes at root
	r.Mount("/", v1.HealthRouter(readiness))

	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.metrics, promhttp.HandlerOpts{}))
	}

	if cfg.dashboard != nil {
		r.Get("/", cfg.dashboard.ServeHTTP)
	}

	r.Mount("/api", v1.Router(routes))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debugf("HTTP %s %s %d %s %s",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			middleware.GetReqID(r.Context()),
		)
	})
}
