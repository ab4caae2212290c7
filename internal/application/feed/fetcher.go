package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
	"github.com/bimakw/wallet-activity/internal/domain/repositories"
	"github.com/bimakw/wallet-activity/internal/metrics"
	"github.com/bimakw/wallet-activity/internal/retry"
)

// PageResult is one page of raw transfers for a single direction
type PageResult struct {
	Records []entities.Transfer
	HasMore bool
}

// FetcherConfig holds the query and retry settings of a DualCursorFetcher
type FetcherConfig struct {
	Categories       []entities.TransferCategory
	ExcludeZeroValue bool
	MaxRetries       int
	RetryDelay       time.Duration
}

// DefaultFetcherConfig queries every category with 3 retries and a 1s base delay
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Categories: entities.AllCategories(),
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// DualCursorFetcher fetches pages of transfers per address and direction,
// keeping one AddressFetchSession per address. It does not merge or order data.
type DualCursorFetcher struct {
	source repositories.TransferSource
	cfg    FetcherConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*AddressFetchSession
}

// NewDualCursorFetcher creates a new fetcher over source
func NewDualCursorFetcher(source repositories.TransferSource, cfg FetcherConfig, logger *zap.Logger) *DualCursorFetcher {
	if len(cfg.Categories) == 0 {
		cfg.Categories = entities.AllCategories()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &DualCursorFetcher{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*AddressFetchSession),
	}
}

// Session returns the session for address, creating it on first use
func (f *DualCursorFetcher) Session(address string) *AddressFetchSession {
	key := strings.ToLower(address)

	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[key]
	if !ok {
		s = NewAddressFetchSession(address)
		f.sessions[key] = s
	}
	return s
}

// Invalidate resets and forgets the session for address. A fetch still in
// flight keeps writing to the old session only.
func (f *DualCursorFetcher) Invalidate(address string) {
	key := strings.ToLower(address)

	f.mu.Lock()
	s, ok := f.sessions[key]
	delete(f.sessions, key)
	f.mu.Unlock()

	if ok {
		s.Reset()
	}
}

// Stats returns the session statistics for address. An address without a
// session reports zero counters and no session is created for it.
func (f *DualCursorFetcher) Stats(address string) entities.SessionStats {
	key := strings.ToLower(address)

	f.mu.Lock()
	s, ok := f.sessions[key]
	f.mu.Unlock()

	if !ok {
		return entities.SessionStats{Address: address}
	}
	return s.Stats()
}

// SessionCount returns the number of addresses with a live session
func (f *DualCursorFetcher) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// FetchPage fetches page pageNumber (1-based) of direction dir for address.
// Network failures are retried with linear backoff; once retries are spent the
// direction is marked complete and the failure is returned. Configuration
// errors and context cancellation leave the session untouched.
func (f *DualCursorFetcher) FetchPage(ctx context.Context, address string, dir entities.Direction, pageNumber, pageSize int) (*PageResult, error) {
	if dir != entities.DirectionIncoming && dir != entities.DirectionOutgoing {
		return nil, apperrors.InvalidInputError(nil, fmt.Sprintf("Invalid direction %q", dir))
	}
	if pageNumber < 1 {
		return nil, apperrors.InvalidInputError(nil, "Page number must be at least 1")
	}
	if pageSize < 1 {
		return nil, apperrors.InvalidInputError(nil, "Page size must be at least 1")
	}

	session := f.Session(address)

	cursor, ok := session.Cursor(dir, pageNumber-1)
	if !ok {
		return nil, apperrors.InvalidInputError(nil,
			fmt.Sprintf("Page %d of %s transfers requested before page %d was fetched", pageNumber, dir, pageNumber-1))
	}
	if cursor.State == CursorExhausted {
		return &PageResult{Records: []entities.Transfer{}, HasMore: false}, nil
	}

	query := f.buildQuery(address, dir, pageSize)
	if cursor.State == CursorInProgress {
		query.PageKey = cursor.Key
	}

	policy := retry.Policy{
		MaxRetries: f.cfg.MaxRetries,
		BaseDelay:  f.cfg.RetryDelay,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			metrics.FeedFetchRetries.WithLabelValues(string(dir)).Inc()
			f.logger.Warn("Retrying transfer fetch",
				zap.String("address", address),
				zap.String("direction", string(dir)),
				zap.Int("page", pageNumber),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}

	var page *repositories.TransferPage
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		p, err := f.source.GetAssetTransfers(ctx, query)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, f.handleFailure(session, address, dir, pageNumber, err)
	}

	if page == nil {
		page = &repositories.TransferPage{}
	}
	records := page.Transfers
	if records == nil {
		records = []entities.Transfer{}
	}

	session.RecordFetch(dir, len(records))
	metrics.FeedPagesFetched.WithLabelValues(string(dir)).Inc()
	metrics.FeedTransfersFetched.WithLabelValues(string(dir)).Add(float64(len(records)))

	hasMore := page.PageKey != ""
	if hasMore {
		session.SetCursor(dir, pageNumber, page.PageKey)
	} else {
		session.MarkCompleteAfter(dir, pageNumber)
	}

	f.logger.Debug("Fetched transfer page",
		zap.String("address", address),
		zap.String("direction", string(dir)),
		zap.Int("page", pageNumber),
		zap.Int("count", len(records)),
		zap.Bool("has_more", hasMore),
	)

	return &PageResult{Records: records, HasMore: hasMore}, nil
}

func (f *DualCursorFetcher) buildQuery(address string, dir entities.Direction, pageSize int) repositories.TransferQuery {
	query := repositories.TransferQuery{
		Categories:       f.cfg.Categories,
		ExcludeZeroValue: f.cfg.ExcludeZeroValue,
		Order:            repositories.OrderDescending,
		MaxCount:         pageSize,
		WithMetadata:     true,
	}
	if dir == entities.DirectionOutgoing {
		query.FromAddress = address
	} else {
		query.ToAddress = address
	}
	return query
}

func (f *DualCursorFetcher) handleFailure(session *AddressFetchSession, address string, dir entities.Direction, pageNumber int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	category := apperrors.CategoryOf(err)
	metrics.FeedFetchErrors.WithLabelValues(string(dir), category.String()).Inc()

	if category == apperrors.CategoryConfiguration {
		f.logger.Error("Transfer source is misconfigured",
			zap.String("address", address),
			zap.String("direction", string(dir)),
			zap.Error(err),
		)
		return err
	}

	session.RecordError(dir)
	session.MarkCompleteAfter(dir, pageNumber-1)

	f.logger.Error("Failed to fetch transfer page, marking direction complete",
		zap.String("address", address),
		zap.String("direction", string(dir)),
		zap.Int("page", pageNumber),
		zap.Error(err),
	)

	if category == apperrors.CategoryGeneral {
		return apperrors.NetworkError(err, fmt.Sprintf("Failed to fetch %s transfers", dir))
	}
	return err
}
