package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	"github.com/bimakw/wallet-activity/internal/metrics"
)

const keyPrefix = "classification"

// Store is the shared tier of the classification cache
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	DeletePattern(ctx context.Context, pattern string) error
}

// ClassificationCache keeps classified transactions in process memory, backed
// by an optional shared store. Entries are keyed by the transfer count so a
// group that gains transfers on a later page is classified again.
type ClassificationCache struct {
	local  *gocache.Cache
	remote Store
	logger *zap.Logger
}

// NewClassificationCache creates a cache whose entries live for ttl.
// remote may be nil.
func NewClassificationCache(remote Store, ttl time.Duration, logger *zap.Logger) *ClassificationCache {
	return &ClassificationCache{
		local:  gocache.New(ttl, 2*ttl),
		remote: remote,
		logger: logger,
	}
}

// Key builds the cache key for one classified group
func Key(wallet, hash string, transferCount int) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, strings.ToLower(wallet), strings.ToLower(hash), transferCount)
}

func walletPrefix(wallet string) string {
	return fmt.Sprintf("%s:%s:", keyPrefix, strings.ToLower(wallet))
}

// Get returns the cached classification, checking memory before the store.
// The result is a copy the caller may modify.
func (c *ClassificationCache) Get(ctx context.Context, wallet, hash string, transferCount int) (*entities.FullTransaction, bool) {
	key := Key(wallet, hash, transferCount)

	if v, ok := c.local.Get(key); ok {
		metrics.ClassificationCacheHits.WithLabelValues("local", "hit").Inc()
		tx := v.(entities.FullTransaction).Clone()
		return &tx, true
	}
	metrics.ClassificationCacheHits.WithLabelValues("local", "miss").Inc()

	if c.remote == nil {
		return nil, false
	}

	var tx entities.FullTransaction
	if err := c.remote.Get(ctx, key, &tx); err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("Failed to read classification cache",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		metrics.ClassificationCacheHits.WithLabelValues("remote", "miss").Inc()
		return nil, false
	}
	metrics.ClassificationCacheHits.WithLabelValues("remote", "hit").Inc()

	c.local.SetDefault(key, tx.Clone())
	return &tx, true
}

// Set stores a classification under the wallet, keyed by its transfer count
func (c *ClassificationCache) Set(ctx context.Context, wallet string, tx entities.FullTransaction) {
	key := Key(wallet, tx.Hash, len(tx.Transfers))
	c.local.SetDefault(key, tx.Clone())

	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, tx); err != nil {
		c.logger.Warn("Failed to write classification cache",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// InvalidateWallet drops every entry cached for wallet
func (c *ClassificationCache) InvalidateWallet(ctx context.Context, wallet string) {
	prefix := walletPrefix(wallet)
	for key := range c.local.Items() {
		if strings.HasPrefix(key, prefix) {
			c.local.Delete(key)
		}
	}

	if c.remote == nil {
		return
	}
	if err := c.remote.DeletePattern(ctx, prefix+"*"); err != nil {
		c.logger.Warn("Failed to invalidate classification cache",
			zap.String("wallet", wallet),
			zap.Error(err),
		)
	}
}

// Len returns the number of entries held in memory
func (c *ClassificationCache) Len() int {
	return c.local.ItemCount()
}
