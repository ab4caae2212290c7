package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/wallet-activity/internal/bootstrap"
	"github.com/bimakw/wallet-activity/internal/config"
	"github.com/bimakw/wallet-activity/internal/presentation/handlers"
	"github.com/bimakw/wallet-activity/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting wallet-activity API",
		zap.Int("port", cfg.API.Port),
		zap.String("network", cfg.Alchemy.Network),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to wire application", zap.Error(err))
	}
	defer app.Close()

	// Create handlers
	activityHandler := handlers.NewActivityHandler(app.Activity, logger)

	healthHandler := handlers.NewHealthHandler().
		Require("indexing_api", handlers.HealthCheckFunc(func(ctx context.Context) error {
			_, err := cfg.Alchemy.Endpoint()
			return err
		}))
	if app.DB != nil {
		healthHandler.Require("database", app.DB)
	}
	if app.Redis != nil {
		healthHandler.Optional("cache", app.Redis)
	}
	if app.EthClient != nil {
		healthHandler.Optional("ethereum", handlers.HealthCheckFunc(func(ctx context.Context) error {
			_, err := app.EthClient.GetLatestBlockNumber(ctx)
			return err
		}))
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))
		activityHandler.RegisterRoutes(r)
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}
