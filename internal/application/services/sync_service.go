package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/wallet-activity/internal/config"
	"github.com/bimakw/wallet-activity/internal/metrics"
)

// ActivityPager is the part of WalletActivityService the syncer drives
type ActivityPager interface {
	NextPage(ctx context.Context, address string) (*ActivityPage, error)
	Reset(ctx context.Context, address string) error
}

var _ ActivityPager = (*WalletActivityService)(nil)

// SyncService periodically drains the feed of each configured wallet so
// every classified transaction ends up persisted
type SyncService struct {
	activity ActivityPager
	config   config.SyncConfig
	wallets  []string
	logger   *zap.Logger
	stats    syncStats
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// SyncStats is a snapshot of sync progress
type SyncStats struct {
	Cycles             int64     `json:"cycles"`
	WalletsSynced      int64     `json:"wallets_synced"`
	PagesProcessed     int64     `json:"pages_processed"`
	TransactionsSynced int64     `json:"transactions_synced"`
	ErrorCount         int64     `json:"error_count"`
	LastSyncTime       time.Time `json:"last_sync_time"`
	SyncLatencyMs      int64     `json:"sync_latency_ms"`
}

type syncStats struct {
	mu sync.RWMutex
	SyncStats
}

// NewSyncService creates a new sync service. Wallet addresses are validated
// by Start.
func NewSyncService(activity ActivityPager, cfg config.SyncConfig, logger *zap.Logger) *SyncService {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &SyncService{
		activity: activity,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start validates the wallet list and begins the sync loop
func (s *SyncService) Start(ctx context.Context) error {
	if err := s.loadWallets(); err != nil {
		return err
	}

	s.logger.Info("Starting sync service",
		zap.Strings("wallets", s.wallets),
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("workers", s.config.WorkerCount),
	)

	s.wg.Add(1)
	go s.runSyncLoop(ctx)

	return nil
}

// loadWallets validates and deduplicates the configured wallets
func (s *SyncService) loadWallets() error {
	if len(s.config.WalletAddresses) == 0 {
		return fmt.Errorf("no wallet addresses configured")
	}

	wallets := make([]string, 0, len(s.config.WalletAddresses))
	seen := make(map[string]struct{}, len(s.config.WalletAddresses))
	for _, addr := range s.config.WalletAddresses {
		wallet, err := NormalizeAddress(strings.TrimSpace(addr))
		if err != nil {
			return fmt.Errorf("invalid wallet %q: %w", addr, err)
		}
		if _, dup := seen[wallet]; dup {
			continue
		}
		seen[wallet] = struct{}{}
		wallets = append(wallets, wallet)
	}

	s.wallets = wallets
	return nil
}

// Stop gracefully stops the sync loop
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping sync service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// GetStats returns current sync statistics
func (s *SyncService) GetStats() SyncStats {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return s.stats.SyncStats
}

func (s *SyncService) runSyncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.SyncAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SyncAll(ctx)
		}
	}
}

// SyncAll runs one sync cycle over every wallet. A failing wallet does not
// stop the others.
func (s *SyncService) SyncAll(ctx context.Context) {
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(s.config.WorkerCount)

	for _, wallet := range s.wallets {
		wallet := wallet
		g.Go(func() error {
			if err := s.syncWallet(ctx, wallet); err != nil {
				metrics.SyncWalletsTotal.WithLabelValues("error").Inc()
				s.incrementErrorCount()
				s.logger.Error("Failed to sync wallet",
					zap.String("wallet", wallet),
					zap.Error(err),
				)
				return nil
			}
			metrics.SyncWalletsTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	metrics.SyncLatency.Observe(elapsed.Seconds())

	s.stats.mu.Lock()
	s.stats.Cycles++
	s.stats.SyncLatencyMs = elapsed.Milliseconds()
	s.stats.LastSyncTime = time.Now()
	s.stats.mu.Unlock()
}

// syncWallet drains the wallet's feed from the newest transfer, up to the
// configured page limit
func (s *SyncService) syncWallet(ctx context.Context, wallet string) error {
	if err := s.activity.Reset(ctx, wallet); err != nil {
		return fmt.Errorf("failed to reset feed: %w", err)
	}

	pages, txs := 0, 0
	for s.config.MaxPages <= 0 || pages < s.config.MaxPages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
		}

		page, err := s.activity.NextPage(ctx, wallet)
		if err != nil {
			return fmt.Errorf("failed to fetch page %d: %w", pages+1, err)
		}

		pages++
		txs += len(page.Transactions)
		s.addProgress(1, int64(len(page.Transactions)))

		if page.Metadata.Exhausted || !page.Metadata.HasMore {
			break
		}
	}

	s.stats.mu.Lock()
	s.stats.WalletsSynced++
	s.stats.mu.Unlock()

	s.logger.Info("Synced wallet",
		zap.String("wallet", wallet),
		zap.Int("pages", pages),
		zap.Int("transactions", txs),
	)
	return nil
}

func (s *SyncService) addProgress(pages, txs int64) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.PagesProcessed += pages
	s.stats.TransactionsSynced += txs
}

func (s *SyncService) incrementErrorCount() {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	s.stats.ErrorCount++
}
