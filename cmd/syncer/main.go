package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/wallet-activity/internal/application/services"
	"github.com/bimakw/wallet-activity/internal/bootstrap"
	"github.com/bimakw/wallet-activity/internal/config"
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

	logger.Info("Starting wallet-activity syncer",
		zap.Strings("wallets", cfg.Sync.WalletAddresses),
		zap.Duration("poll_interval", cfg.Sync.PollInterval),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to wire application", zap.Error(err))
	}
	defer app.Close()

	if app.DB == nil {
		logger.Warn("Database is disabled, synced transactions will not be persisted")
	}

	syncService := services.NewSyncService(app.Activity, cfg.Sync, logger)

	// Start syncer
	if err := syncService.Start(ctx); err != nil {
		logger.Fatal("Failed to start syncer", zap.Error(err))
	}

	// Start metrics server
	go startMetricsServer(cfg.Sync.MetricsPort, syncService, logger)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping syncer...")

	// Graceful shutdown
	cancel()
	syncService.Stop()

	stats := syncService.GetStats()
	logger.Info("Syncer stopped",
		zap.Int64("cycles", stats.Cycles),
		zap.Int64("transactions_synced", stats.TransactionsSynced),
		zap.Int64("errors", stats.ErrorCount),
	)
}

func startMetricsServer(port int, syncService *services.SyncService, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		stats := syncService.GetStats()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "cycles %d\nwallets_synced %d\npages_processed %d\ntransactions_synced %d\nerrors %d\nlast_sync %s\n",
			stats.Cycles, stats.WalletsSynced, stats.PagesProcessed, stats.TransactionsSynced,
			stats.ErrorCount, stats.LastSyncTime.Format(time.RFC3339))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
