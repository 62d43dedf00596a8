package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AntonAks/TaskFromTal/internal/logger"
	"github.com/AntonAks/TaskFromTal/pkg/versions"
)

// MultiReadiness combines readiness checkers; the composite is ready only
// when every checker is.
func MultiReadiness(checkers ...ReadinessChecker) ReadinessChecker {
	return multiReadiness(checkers)
}

type multiReadiness []ReadinessChecker

func (m multiReadiness) CheckReadiness(ctx context.Context) error {
	for _, checker := range m {
		if err := checker.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(readiness ReadinessChecker) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(readiness))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests
func readinessHandler(readiness ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := readiness.CheckReadiness(r.Context()); err != nil {
			errorResp := ErrorResponse{
				Error: "Service not ready: " + err.Error(),
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			if encodeErr := json.NewEncoder(w).Encode(errorResp); encodeErr != nil {
				logger.Errorf("Failed to encode readiness error response: %v", encodeErr)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	response := map[string]string{
		"version":    info.Version,
		"commit":     info.Commit,
		"build_date": info.BuildDate,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Errorf("Failed to encode version info: %v", err)
	}
}
