package feed

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
	"github.com/bimakw/wallet-activity/internal/metrics"
)

// maxRoundsPerCall bounds the fetch rounds a single GetMoreTransactions call
// runs while waiting for a full page to settle
const maxRoundsPerCall = 8

// ErrFeedReset is returned by a fetch round that was overtaken by Reset.
// Its results are discarded.
var ErrFeedReset = apperrors.BusyError("Feed was reset while a fetch was in progress")

// PageFetcher fetches one direction's page of transfers for an address
type PageFetcher interface {
	FetchPage(ctx context.Context, address string, dir entities.Direction, pageNumber, pageSize int) (*PageResult, error)
	Invalidate(address string)
	Stats(address string) entities.SessionStats
}

var _ PageFetcher = (*DualCursorFetcher)(nil)

// MergerConfig holds the paging settings of a ChronologicalMerger
type MergerConfig struct {
	PageSize   int
	BufferSize int
}

// DefaultMergerConfig returns pages of 20 with a buffer of 10
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{PageSize: 20, BufferSize: 10}
}

// mergerState is everything a fetch round or Reset may change.
// It is only mutated under ChronologicalMerger.mu.
type mergerState struct {
	initialized     bool
	incomingAll     []entities.Transfer
	outgoingAll     []entities.Transfer
	combined        []entities.MergedTransfer
	byHash          map[string][]int
	position        int
	hasMoreIncoming bool
	hasMoreOutgoing bool
	currentPage     int
	pagesFetched    entities.PagesFetched
	dropped         int
}

func newMergerState() mergerState {
	return mergerState{
		hasMoreIncoming: true,
		hasMoreOutgoing: true,
		byHash:          make(map[string][]int),
	}
}

func (s *mergerState) remaining() int {
	return len(s.combined) - s.position
}

func (s *mergerState) hasMoreData() bool {
	return s.hasMoreIncoming || s.hasMoreOutgoing
}

// settledEnd returns the index one past the last settled feed entry. An
// entry is settled once its block is above the lowest block fetched so far by
// every direction that still has more data: no later round can sort anything
// in front of it, nor drop it as a duplicate.
func (s *mergerState) settledEnd() int {
	if !s.hasMoreData() {
		return len(s.combined)
	}

	var frontier uint64
	for _, dir := range []struct {
		hasMore bool
		records []entities.Transfer
	}{
		{s.hasMoreIncoming, s.incomingAll},
		{s.hasMoreOutgoing, s.outgoingAll},
	} {
		if !dir.hasMore {
			continue
		}
		low, ok := lowestBlock(dir.records)
		if !ok {
			return 0
		}
		if low > frontier {
			frontier = low
		}
	}

	return sort.Search(len(s.combined), func(i int) bool {
		return s.combined[i].BlockNumber() <= frontier
	})
}

// settled returns how many unserved entries are settled
func (s *mergerState) settled() int {
	if n := s.settledEnd() - s.position; n > 0 {
		return n
	}
	return 0
}

func lowestBlock(records []entities.Transfer) (uint64, bool) {
	if len(records) == 0 {
		return 0, false
	}
	low := records[0].BlockNumber()
	for _, t := range records[1:] {
		if b := t.BlockNumber(); b < low {
			low = b
		}
	}
	return low, true
}

// roundPlan captures the state a fetch round starts from
type roundPlan struct {
	generation uint64
	page       int
	incoming   bool
	outgoing   bool
}

type directionOutcome struct {
	records []entities.Transfer
	hasMore bool
	fetched bool
}

// ChronologicalMerger merges the incoming and outgoing transfers of one
// address into a single deduplicated feed ordered most recent block first,
// and serves it page by page.
//
// Only one GetMoreTransactions call runs at a time; a concurrent call is
// rejected with a Busy error rather than queued.
type ChronologicalMerger struct {
	address    string
	fetcher    PageFetcher
	pageSize   int
	bufferSize int
	logger     *zap.Logger

	inFlight atomic.Bool

	mu         sync.RWMutex
	state      mergerState
	generation uint64
}

// NewChronologicalMerger creates a merger for address
func NewChronologicalMerger(address string, fetcher PageFetcher, cfg MergerConfig, logger *zap.Logger) *ChronologicalMerger {
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultMergerConfig().PageSize
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	return &ChronologicalMerger{
		address:    address,
		fetcher:    fetcher,
		pageSize:   cfg.PageSize,
		bufferSize: cfg.BufferSize,
		logger:     logger,
		state:      newMergerState(),
	}
}

// Address returns the tracked wallet address
func (m *ChronologicalMerger) Address() string {
	return m.address
}

// FetchSize is the per-direction page size requested from the fetcher.
// A transaction can produce several raw transfers and dedup discards some,
// so each direction over-fetches.
func (m *ChronologicalMerger) FetchSize() int {
	return 2*m.pageSize + m.bufferSize
}

// GetMoreTransactions returns the next page of the combined feed, fetching
// from both directions first when the buffered remainder runs low.
// Only settled entries are served, so a page may come back short while a
// sparse direction lags behind a dense one; further rounds are fetched until
// a full page settles, up to maxRoundsPerCall.
// Once both directions are exhausted and the feed is drained, it keeps
// returning an empty page with HasMore false.
func (m *ChronologicalMerger) GetMoreTransactions(ctx context.Context) (*entities.FeedPage, error) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return nil, apperrors.BusyError("A fetch is already in progress for this wallet")
	}
	defer m.inFlight.Store(false)

	m.mu.RLock()
	generation := m.generation
	m.mu.RUnlock()

	for round := 0; ; round++ {
		m.mu.RLock()
		plan, needFetch := m.planRound(round > 0)
		m.mu.RUnlock()

		if !needFetch {
			break
		}
		if round == maxRoundsPerCall {
			m.logger.Warn("Serving a short page, fetch frontier still behind",
				zap.String("address", m.address),
				zap.Int("rounds", round),
			)
			break
		}

		start := time.Now()
		incoming, outgoing, err := m.fetchRound(ctx, plan)
		metrics.FeedRoundDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.generation != plan.generation {
			m.mu.Unlock()
			m.logger.Info("Discarding fetch round overtaken by reset", zap.String("address", m.address))
			return nil, ErrFeedReset
		}
		m.applyRound(plan, incoming, outgoing)
		m.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation {
		return nil, ErrFeedReset
	}
	return m.nextPage(), nil
}

// planRound decides whether a fetch round is due. The first round of a call
// also tops up a low buffer; later rounds only run while a full page has not
// settled yet. Caller must hold mu.
func (m *ChronologicalMerger) planRound(followUp bool) (roundPlan, bool) {
	s := &m.state
	plan := roundPlan{
		generation: m.generation,
		page:       s.currentPage + 1,
		incoming:   s.hasMoreIncoming,
		outgoing:   s.hasMoreOutgoing,
	}

	if !s.initialized {
		return plan, true
	}
	if !s.hasMoreData() {
		return plan, false
	}
	if s.settled() < m.pageSize {
		return plan, true
	}
	return plan, !followUp && s.remaining() <= m.pageSize+m.bufferSize
}

// fetchRound fetches both directions concurrently. A direction that fails for
// any reason other than configuration is reported as exhausted. Configuration
// errors and cancellation abort the round.
func (m *ChronologicalMerger) fetchRound(ctx context.Context, plan roundPlan) (directionOutcome, directionOutcome, error) {
	var incoming, outgoing directionOutcome

	g, gctx := errgroup.WithContext(ctx)
	if plan.incoming {
		g.Go(func() error {
			out, err := m.fetchDirection(gctx, entities.DirectionIncoming, plan.page)
			incoming = out
			return err
		})
	}
	if plan.outgoing {
		g.Go(func() error {
			out, err := m.fetchDirection(gctx, entities.DirectionOutgoing, plan.page)
			outgoing = out
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return incoming, outgoing, ctxErr
		}
		return incoming, outgoing, err
	}
	return incoming, outgoing, nil
}

func (m *ChronologicalMerger) fetchDirection(ctx context.Context, dir entities.Direction, page int) (directionOutcome, error) {
	res, err := m.fetcher.FetchPage(ctx, m.address, dir, page, m.FetchSize())
	if err == nil {
		return directionOutcome{records: res.Records, hasMore: res.HasMore, fetched: true}, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return directionOutcome{}, err
	}
	if apperrors.Is(err, apperrors.CategoryConfiguration) {
		return directionOutcome{}, err
	}

	m.logger.Warn("Treating direction as exhausted after fetch failure",
		zap.String("address", m.address),
		zap.String("direction", string(dir)),
		zap.Int("page", page),
		zap.Error(err),
	)
	return directionOutcome{hasMore: false}, nil
}

// applyRound appends the round's records and rebuilds the feed. Caller must hold mu.
func (m *ChronologicalMerger) applyRound(plan roundPlan, incoming, outgoing directionOutcome) {
	s := &m.state

	if plan.incoming {
		s.incomingAll = append(s.incomingAll, incoming.records...)
		s.hasMoreIncoming = incoming.hasMore
		if incoming.fetched {
			s.pagesFetched.Incoming++
		}
	}
	if plan.outgoing {
		s.outgoingAll = append(s.outgoingAll, outgoing.records...)
		s.hasMoreOutgoing = outgoing.hasMore
		if outgoing.fetched {
			s.pagesFetched.Outgoing++
		}
	}

	s.currentPage++
	s.initialized = true
	m.rebuild()

	m.logger.Debug("Applied fetch round",
		zap.String("address", m.address),
		zap.Int("page", s.currentPage),
		zap.Int("incoming_total", len(s.incomingAll)),
		zap.Int("outgoing_total", len(s.outgoingAll)),
		zap.Int("combined", len(s.combined)),
	)
}

// rebuild recomputes the combined feed from both direction lists. Caller must hold mu.
func (m *ChronologicalMerger) rebuild() {
	s := &m.state

	merged := make([]entities.MergedTransfer, 0, len(s.incomingAll)+len(s.outgoingAll))
	for _, t := range s.incomingAll {
		merged = append(merged, entities.MergedTransfer{Transfer: t, Direction: entities.DirectionIncoming})
	}
	for _, t := range s.outgoingAll {
		merged = append(merged, entities.MergedTransfer{Transfer: t, Direction: entities.DirectionOutgoing})
	}

	deduped, dropped := DeduplicateByHash(merged)
	SortByBlockDesc(deduped)

	if dropped > s.dropped {
		metrics.FeedDuplicatesDropped.Add(float64(dropped - s.dropped))
	}
	s.dropped = dropped

	s.combined = deduped
	s.byHash = make(map[string][]int, len(deduped))
	for i, t := range deduped {
		if t.Hash == "" {
			continue
		}
		key := strings.ToLower(t.Hash)
		s.byHash[key] = append(s.byHash[key], i)
	}
}

// nextPage slices the next page off the settled part of the feed.
// Caller must hold mu.
func (m *ChronologicalMerger) nextPage() *entities.FeedPage {
	s := &m.state

	if s.remaining() <= 0 && !s.hasMoreData() {
		metrics.FeedPagesServed.WithLabelValues(strconv.FormatBool(true)).Inc()
		return &entities.FeedPage{
			Transfers: []entities.MergedTransfer{},
			Metadata: entities.FeedMetadata{
				HasMore:           false,
				Exhausted:         true,
				CurrentPosition:   s.position,
				TotalInMemory:     len(s.combined),
				RemainingInBuffer: 0,
				PagesFetched:      s.pagesFetched,
				Stats:             m.statsLocked(),
			},
		}
	}

	end := s.position + m.pageSize
	if settled := s.settledEnd(); end > settled {
		end = settled
	}
	if end < s.position {
		end = s.position
	}

	page := make([]entities.MergedTransfer, end-s.position)
	copy(page, s.combined[s.position:end])
	s.position = end

	hasMore := s.remaining() > 0 || s.hasMoreData()
	metrics.FeedPagesServed.WithLabelValues(strconv.FormatBool(!hasMore)).Inc()

	return &entities.FeedPage{
		Transfers: page,
		Metadata: entities.FeedMetadata{
			HasMore:           hasMore,
			Exhausted:         !hasMore,
			CurrentPosition:   s.position,
			TotalInMemory:     len(s.combined),
			RemainingInBuffer: s.remaining(),
			PagesFetched:      s.pagesFetched,
			Stats:             m.statsLocked(),
		},
	}
}

// Reset returns the merger to its pre-initialization state and invalidates
// the fetcher's session for the address. A round still in flight is discarded.
func (m *ChronologicalMerger) Reset() {
	m.mu.Lock()
	m.generation++
	m.state = newMergerState()
	m.mu.Unlock()

	m.fetcher.Invalidate(m.address)
	m.logger.Info("Feed reset", zap.String("address", m.address))
}

// Stats returns a diagnostic snapshot of the merger and its session
func (m *ChronologicalMerger) Stats() entities.FeedStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statsLocked()
}

func (m *ChronologicalMerger) statsLocked() entities.FeedStats {
	s := &m.state
	return entities.FeedStats{
		Address:         m.address,
		Initialized:     s.initialized,
		CurrentPage:     s.currentPage,
		FeedPosition:    s.position,
		CombinedSize:    len(s.combined),
		IncomingTotal:   len(s.incomingAll),
		OutgoingTotal:   len(s.outgoingAll),
		HasMoreIncoming: s.hasMoreIncoming,
		HasMoreOutgoing: s.hasMoreOutgoing,
		PagesFetched:    s.pagesFetched,
		Session:         m.fetcher.Stats(m.address),
	}
}

// TransfersForHash returns every feed entry sharing hash, served or not.
// The consumer classifies complete hash groups with it.
func (m *ChronologicalMerger) TransfersForHash(hash string) []entities.MergedTransfer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.state.byHash[strings.ToLower(hash)]
	result := make([]entities.MergedTransfer, 0, len(idx))
	for _, i := range idx {
		result = append(result, m.state.combined[i])
	}
	return result
}
