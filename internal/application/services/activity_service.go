package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/bimakw/wallet-activity/internal/application/classifier"
	"github.com/bimakw/wallet-activity/internal/application/feed"
	"github.com/bimakw/wallet-activity/internal/domain/entities"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
	"github.com/bimakw/wallet-activity/internal/domain/repositories"
	"github.com/bimakw/wallet-activity/internal/infrastructure/cache"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	defaultWalletIdleTTL = 30 * time.Minute
	defaultMaxWallets    = 10000
)

// ActivityConfig holds the consumer-side feed settings
type ActivityConfig struct {
	Merger          feed.MergerConfig
	ContractAddress string
	DecodeInputs    bool

	// WalletIdleTTL is how long an untouched feed is kept before it and its
	// fetch session are dropped
	WalletIdleTTL time.Duration
	// MaxWallets caps the number of open feeds
	MaxWallets    int
}

// WalletActivityService pages a wallet's merged feed and classifies each
// page by transaction hash. It keeps one merger per wallet until the wallet
// has been idle for WalletIdleTTL.
type WalletActivityService struct {
	fetcher    feed.PageFetcher
	classifier *classifier.Classifier
	lookup     repositories.TransactionLookup
	txRepo     repositories.TransactionRepository
	cache      *cache.ClassificationCache
	config     ActivityConfig
	logger     *zap.Logger

	mu      sync.Mutex
	mergers *gocache.Cache
}

// ActivityOption configures optional collaborators of the service
type ActivityOption func(*WalletActivityService)

// WithTransactionLookup enables input decoding through hash lookups
func WithTransactionLookup(lookup repositories.TransactionLookup) ActivityOption {
	return func(s *WalletActivityService) {
		s.lookup = lookup
	}
}

// WithTransactionRepository persists every classified page
func WithTransactionRepository(repo repositories.TransactionRepository) ActivityOption {
	return func(s *WalletActivityService) {
		s.txRepo = repo
	}
}

// WithClassificationCache reuses classifications across pages and resets
func WithClassificationCache(c *cache.ClassificationCache) ActivityOption {
	return func(s *WalletActivityService) {
		s.cache = c
	}
}

// NewWalletActivityService creates a new wallet activity service
func NewWalletActivityService(
	fetcher feed.PageFetcher,
	cls *classifier.Classifier,
	cfg ActivityConfig,
	logger *zap.Logger,
	opts ...ActivityOption,
) *WalletActivityService {
	if cfg.WalletIdleTTL <= 0 {
		cfg.WalletIdleTTL = defaultWalletIdleTTL
	}
	if cfg.MaxWallets <= 0 {
		cfg.MaxWallets = defaultMaxWallets
	}

	s := &WalletActivityService{
		fetcher:    fetcher,
		classifier: cls,
		config:     cfg,
		logger:     logger,
		mergers:    gocache.New(cfg.WalletIdleTTL, cfg.WalletIdleTTL/2),
	}
	s.mergers.OnEvicted(s.onMergerEvicted)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActivityPage is one page of classified transactions
type ActivityPage struct {
	Wallet       string                     `json:"wallet"`
	Transactions []entities.FullTransaction `json:"transactions"`
	Metadata     entities.FeedMetadata      `json:"metadata"`
}

// HistoryResponse is a page of persisted classifications
type HistoryResponse struct {
	Wallet       string                       `json:"wallet"`
	Transactions []entities.StoredTransaction `json:"transactions"`
	Total        int64                        `json:"total"`
	Limit        int                          `json:"limit"`
	Offset       int                          `json:"offset"`
	HasMore      bool                         `json:"has_more"`
}

// ClassifyRequest is a stateless classification request
type ClassifyRequest struct {
	Wallet    string              `json:"wallet"`
	Transfers []entities.Transfer `json:"transfers"`
	Input     string              `json:"input,omitempty"`
}

// NormalizeAddress validates a wallet address and returns it lowercased
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", apperrors.InvalidInputError(nil, fmt.Sprintf("Invalid wallet address: %q", address))
	}
	return strings.ToLower(address), nil
}

// merger returns the wallet's merger, opening one on first use. Every call
// restarts the wallet's idle timer.
func (s *WalletActivityService) merger(wallet string) (*feed.ChronologicalMerger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.mergers.Get(wallet); ok {
		s.mergers.SetDefault(wallet, v)
		return v.(*feed.ChronologicalMerger), nil
	}

	if s.mergers.ItemCount() >= s.config.MaxWallets {
		s.mergers.DeleteExpired()
		if s.mergers.ItemCount() >= s.config.MaxWallets {
			return nil, apperrors.BusyError("Too many open wallet feeds, try again later")
		}
	}

	m := feed.NewChronologicalMerger(wallet, s.fetcher, s.config.Merger, s.logger)
	s.mergers.SetDefault(wallet, m)
	return m, nil
}

// lookupMerger returns the wallet's merger without opening one
func (s *WalletActivityService) lookupMerger(wallet string) (*feed.ChronologicalMerger, bool) {
	v, ok := s.mergers.Get(wallet)
	if !ok {
		return nil, false
	}
	return v.(*feed.ChronologicalMerger), true
}

func (s *WalletActivityService) onMergerEvicted(wallet string, _ interface{}) {
	s.fetcher.Invalidate(wallet)
	s.logger.Debug("Dropped idle wallet feed", zap.String("wallet", wallet))
}

// Wallets returns the wallets with an open feed, sorted
func (s *WalletActivityService) Wallets() []string {
	items := s.mergers.Items()

	wallets := make([]string, 0, len(items))
	for w := range items {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	return wallets
}

// NextPage serves the next feed page for address, classified per hash.
// A hash group cut by the page boundary is classified with every transfer
// of that hash the feed holds so far.
func (s *WalletActivityService) NextPage(ctx context.Context, address string) (*ActivityPage, error) {
	wallet, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	m, err := s.merger(wallet)
	if err != nil {
		return nil, err
	}
	page, err := m.GetMoreTransactions(ctx)
	if err != nil {
		return nil, err
	}

	groups := feed.GroupByHash(page.Transfers)
	inputs := s.lookupInputs(ctx, groups)

	txs := make([]entities.FullTransaction, 0, len(groups))
	for _, group := range groups {
		hash := group[0].Hash
		if hash != "" {
			if all := m.TransfersForHash(hash); len(all) > len(group) {
				group = all
			}
		}

		tx, err := s.classify(ctx, wallet, toTransfers(group), inputs[strings.ToLower(hash)])
		if err != nil {
			return nil, fmt.Errorf("failed to classify transaction %s: %w", hash, err)
		}
		txs = append(txs, *tx)
	}

	s.persist(ctx, wallet, txs)

	s.logger.Debug("Served activity page",
		zap.String("wallet", wallet),
		zap.Int("transfers", len(page.Transfers)),
		zap.Int("transactions", len(txs)),
		zap.Bool("has_more", page.Metadata.HasMore),
	)

	return &ActivityPage{
		Wallet:       wallet,
		Transactions: txs,
		Metadata:     page.Metadata,
	}, nil
}

func toTransfers(group []entities.MergedTransfer) []entities.Transfer {
	transfers := make([]entities.Transfer, len(group))
	for i, mt := range group {
		transfers[i] = mt.Transfer
	}
	return transfers
}

// lookupInputs fetches transaction input per hash. Failures leave the
// affected groups undecoded.
func (s *WalletActivityService) lookupInputs(ctx context.Context, groups [][]entities.MergedTransfer) map[string][]byte {
	if s.lookup == nil || !s.config.DecodeInputs {
		return nil
	}

	hashes := make([]string, 0, len(groups))
	for _, group := range groups {
		if h := group[0].Hash; h != "" {
			hashes = append(hashes, h)
		}
	}
	if len(hashes) == 0 {
		return nil
	}

	txs, err := s.lookup.GetTransactionsByHash(ctx, hashes)
	if err != nil {
		s.logger.Warn("Failed to look up transaction inputs",
			zap.Int("hashes", len(hashes)),
			zap.Error(err),
		)
		return nil
	}

	inputs := make(map[string][]byte, len(txs))
	for i, tx := range txs {
		if tx == nil || len(tx.Input) == 0 {
			continue
		}
		inputs[strings.ToLower(hashes[i])] = tx.Input
	}
	return inputs
}

func (s *WalletActivityService) classify(ctx context.Context, wallet string, transfers []entities.Transfer, input []byte) (*entities.FullTransaction, error) {
	hash := transfers[0].Hash
	if s.cache != nil && hash != "" {
		if tx, ok := s.cache.Get(ctx, wallet, hash, len(transfers)); ok {
			return tx, nil
		}
	}

	tx, err := s.classifier.ClassifyWithInput(wallet, s.config.ContractAddress, transfers, input)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && hash != "" {
		s.cache.Set(ctx, wallet, *tx)
	}
	return tx, nil
}

// persist stores the page's classifications. Hashless groups have no stable
// key and are not stored.
func (s *WalletActivityService) persist(ctx context.Context, wallet string, txs []entities.FullTransaction) {
	if s.txRepo == nil {
		return
	}

	keyed := make([]entities.FullTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Hash != "" {
			keyed = append(keyed, tx)
		}
	}
	if len(keyed) == 0 {
		return
	}

	if err := s.txRepo.Upsert(ctx, wallet, keyed); err != nil {
		s.logger.Warn("Failed to persist classified transactions",
			zap.String("wallet", wallet),
			zap.Int("count", len(keyed)),
			zap.Error(err),
		)
	}
}

// Reset discards the wallet's feed and cached classifications so the next
// page starts from the newest transfers again. A wallet without an open feed
// only has its cached classifications dropped.
func (s *WalletActivityService) Reset(ctx context.Context, address string) error {
	wallet, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	if m, ok := s.lookupMerger(wallet); ok {
		m.Reset()
	} else {
		s.fetcher.Invalidate(wallet)
	}
	if s.cache != nil {
		s.cache.InvalidateWallet(ctx, wallet)
	}
	return nil
}

// Stats returns the feed diagnostics for address. A wallet without an open
// feed reports the diagnostics of a fresh one and no feed is opened.
func (s *WalletActivityService) Stats(address string) (*entities.FeedStats, error) {
	wallet, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	m, ok := s.lookupMerger(wallet)
	if !ok {
		m = feed.NewChronologicalMerger(wallet, s.fetcher, s.config.Merger, s.logger)
	}
	stats := m.Stats()
	return &stats, nil
}

// Classify classifies caller-supplied transfers without touching any feed
func (s *WalletActivityService) Classify(ctx context.Context, req ClassifyRequest) (*entities.FullTransaction, error) {
	wallet, err := NormalizeAddress(req.Wallet)
	if err != nil {
		return nil, err
	}

	var input []byte
	if req.Input != "" {
		input, err = hexutil.Decode(req.Input)
		if err != nil {
			return nil, apperrors.InvalidInputError(err, "Input must be 0x-prefixed hex")
		}
	}

	return s.classifier.ClassifyWithInput(wallet, s.config.ContractAddress, req.Transfers, input)
}

// History lists persisted classifications for address, newest block first
func (s *WalletActivityService) History(ctx context.Context, address string, limit, offset int) (*HistoryResponse, error) {
	wallet, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if s.txRepo == nil {
		return nil, apperrors.ConfigurationError(nil, "Transaction history is not enabled")
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := s.txRepo.ListByWallet(ctx, wallet, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	total, err := s.txRepo.CountByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	return &HistoryResponse{
		Wallet:       wallet,
		Transactions: txs,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
		HasMore:      int64(offset+len(txs)) < total,
	}, nil
}
