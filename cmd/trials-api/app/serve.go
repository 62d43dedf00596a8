package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AntonAks/TaskFromTal/internal/analytics"
	"github.com/AntonAks/TaskFromTal/internal/api"
	v1 "github.com/AntonAks/TaskFromTal/internal/api/v1"
	"github.com/AntonAks/TaskFromTal/internal/auth"
	"github.com/AntonAks/TaskFromTal/internal/config"
	"github.com/AntonAks/TaskFromTal/internal/dashboard"
	"github.com/AntonAks/TaskFromTal/internal/httpclient"
	"github.com/AntonAks/TaskFromTal/internal/logger"
	"github.com/AntonAks/TaskFromTal/internal/store"
	pkgsync "github.com/AntonAks/TaskFromTal/internal/sync"
	"github.com/AntonAks/TaskFromTal/internal/telemetry"
	"github.com/AntonAks/TaskFromTal/internal/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trials API server",
	Long: `Start the trials API server.

The server requires a configuration file (--config) that specifies:
- The upstream registry endpoint and sync cadence
- Connection settings for the studies and analytics databases
- Token issuance settings for the management endpoints

Database passwords and the token signing secret are read from files or
environment variables, never from the configuration file itself.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	serverRequestTimeout   = 10 * time.Second // API reads should respond quickly
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}

	// Mark config as required
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		logger.Fatalf("Failed to mark config flag as required: %v", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")

	logger.Infof("Starting trials API server on %s", address)

	// Load and validate configuration (required)
	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Infof("Loaded configuration from %s (upstream: %s)", configPath, cfg.Upstream.Endpoint)

	// Connect to both databases up front so a misconfigured instance
	// fails at startup instead of at first request.
	studiesPool, err := store.NewPool(ctx, cfg.StudiesDatabase)
	if err != nil {
		return fmt.Errorf("failed to connect to studies database: %w", err)
	}
	defer studiesPool.Close()

	analyticsPool, err := store.NewPool(ctx, cfg.AnalyticsDatabase)
	if err != nil {
		return fmt.Errorf("failed to connect to analytics database: %w", err)
	}
	defer analyticsPool.Close()

	studyStore, err := store.NewStudyStore(studiesPool)
	if err != nil {
		return fmt.Errorf("failed to create study store: %w", err)
	}
	analyticsStore, err := store.NewAnalyticsStore(analyticsPool)
	if err != nil {
		return fmt.Errorf("failed to create analytics store: %w", err)
	}
	userStore, err := store.NewUserStore(studiesPool)
	if err != nil {
		return fmt.Errorf("failed to create user store: %w", err)
	}

	jwtSecret, err := cfg.GetJWTSecret()
	if err != nil {
		return fmt.Errorf("failed to read token signing secret: %w", err)
	}
	issuer, err := auth.NewTokenIssuer(jwtSecret, cfg.AccessTokenTTL())
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	// Background sync walker ingesting from the upstream registry
	upstreamClient := upstream.NewClient(httpclient.NewDefaultClient(0), cfg.Upstream.Endpoint)
	walker, err := pkgsync.NewWalker(upstreamClient, studyStore, cfg.PageSize(), cfg.SyncInterval(),
		pkgsync.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create sync walker: %w", err)
	}

	// Background recompute of the aggregate statistics tables
	aggregator, err := analytics.NewAggregator(studyStore, analyticsStore)
	if err != nil {
		return fmt.Errorf("failed to create aggregator: %w", err)
	}
	scheduler, err := analytics.NewScheduler(aggregator, cfg.AggregationInterval(),
		analytics.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create aggregation scheduler: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	go func() {
		if err := walker.Start(backgroundCtx); err != nil {
			logger.Errorf("Sync walker failed: %v", err)
		}
	}()
	go func() {
		if err := scheduler.Start(backgroundCtx); err != nil {
			logger.Errorf("Aggregation scheduler failed: %v", err)
		}
	}()

	routes := v1.NewRoutes(studyStore, analyticsStore, userStore, issuer)
	readiness := v1.MultiReadiness(studyStore, analyticsStore)

	router := api.NewServer(routes, readiness,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
		api.WithDashboard(dashboard.NewHandler(analyticsStore)),
		api.WithMetricsGatherer(registry),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server listening on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Stop background workers before the HTTP listener so in-flight
	// iterations finish writing.
	if err := walker.Stop(); err != nil {
		logger.Errorf("Failed to stop sync walker: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		logger.Errorf("Failed to stop aggregation scheduler: %v", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
