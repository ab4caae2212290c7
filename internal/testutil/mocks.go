package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	"github.com/bimakw/wallet-activity/internal/domain/repositories"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MockTransferSource is an in-memory implementation of TransferSource.
// Page keys have the form "offset-N".
type MockTransferSource struct {
	mu        sync.RWMutex
	transfers []entities.Transfer

	// Function hooks for custom behavior
	GetAssetTransfersFunc func(ctx context.Context, query repositories.TransferQuery) (*repositories.TransferPage, error)

	// Call tracking
	Calls []MockCall
}

func NewMockTransferSource() *MockTransferSource {
	return &MockTransferSource{
		transfers: make([]entities.Transfer, 0),
		Calls:     make([]MockCall, 0),
	}
}

func (m *MockTransferSource) GetAssetTransfers(ctx context.Context, query repositories.TransferQuery) (*repositories.TransferPage, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetAssetTransfers", Args: []interface{}{query}})
	m.mu.Unlock()

	if m.GetAssetTransfersFunc != nil {
		return m.GetAssetTransfersFunc(ctx, query)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.Transfer, 0)
	for _, t := range m.transfers {
		if query.FromAddress != "" && !strings.EqualFold(t.From, query.FromAddress) {
			continue
		}
		if query.ToAddress != "" && !strings.EqualFold(t.To, query.ToAddress) {
			continue
		}
		result = append(result, t)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if query.Order == repositories.OrderAscending {
			return result[i].BlockNumber() < result[j].BlockNumber()
		}
		return result[i].BlockNumber() > result[j].BlockNumber()
	})

	start := 0
	if query.PageKey != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(query.PageKey, "offset-"))
		if err != nil {
			return nil, fmt.Errorf("invalid page key %q", query.PageKey)
		}
		start = n
	}
	if start > len(result) {
		start = len(result)
	}

	end := len(result)
	if query.MaxCount > 0 && start+query.MaxCount < end {
		end = start + query.MaxCount
	}

	page := &repositories.TransferPage{Transfers: result[start:end]}
	if end < len(result) {
		page.PageKey = fmt.Sprintf("offset-%d", end)
	}
	return page, nil
}

func (m *MockTransferSource) AddTransfers(transfers ...entities.Transfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, transfers...)
}

// CallCount returns the number of recorded calls, safe for concurrent use
func (m *MockTransferSource) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Calls)
}

// Queries returns the recorded queries in call order
func (m *MockTransferSource) Queries() []repositories.TransferQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queries := make([]repositories.TransferQuery, 0, len(m.Calls))
	for _, c := range m.Calls {
		if q, ok := c.Args[0].(repositories.TransferQuery); ok {
			queries = append(queries, q)
		}
	}
	return queries
}

func (m *MockTransferSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = make([]entities.Transfer, 0)
	m.Calls = make([]MockCall, 0)
}

// MockTransactionLookup is a mock implementation of TransactionLookup
type MockTransactionLookup struct {
	mu  sync.RWMutex
	txs map[string]*entities.ChainTransaction

	GetTransactionsByHashFunc func(ctx context.Context, hashes []string) ([]*entities.ChainTransaction, error)

	Calls []MockCall
}

func NewMockTransactionLookup() *MockTransactionLookup {
	return &MockTransactionLookup{
		txs:   make(map[string]*entities.ChainTransaction),
		Calls: make([]MockCall, 0),
	}
}

func (m *MockTransactionLookup) GetTransactionsByHash(ctx context.Context, hashes []string) ([]*entities.ChainTransaction, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetTransactionsByHash", Args: []interface{}{hashes}})
	m.mu.Unlock()

	if m.GetTransactionsByHashFunc != nil {
		return m.GetTransactionsByHashFunc(ctx, hashes)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*entities.ChainTransaction, len(hashes))
	for i, h := range hashes {
		result[i] = m.txs[strings.ToLower(h)]
	}
	return result, nil
}

func (m *MockTransactionLookup) AddTransaction(tx *entities.ChainTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[strings.ToLower(tx.Hash)] = tx
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mu     sync.RWMutex
	stored map[string]map[string]entities.StoredTransaction

	UpsertFunc        func(ctx context.Context, walletAddress string, txs []entities.FullTransaction) error
	ListByWalletFunc  func(ctx context.Context, walletAddress string, limit, offset int) ([]entities.StoredTransaction, error)
	CountByWalletFunc func(ctx context.Context, walletAddress string) (int64, error)

	Calls []MockCall
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		stored: make(map[string]map[string]entities.StoredTransaction),
		Calls:  make([]MockCall, 0),
	}
}

func (m *MockTransactionRepository) Upsert(ctx context.Context, walletAddress string, txs []entities.FullTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Method: "Upsert", Args: []interface{}{walletAddress, txs}})

	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, walletAddress, txs)
	}

	wallet := strings.ToLower(walletAddress)
	if m.stored[wallet] == nil {
		m.stored[wallet] = make(map[string]entities.StoredTransaction)
	}
	for _, tx := range txs {
		if tx.Hash == "" {
			continue
		}
		m.stored[wallet][tx.Hash] = entities.StoredTransaction{
			WalletAddress: wallet,
			Transaction:   tx,
		}
	}
	return nil
}

func (m *MockTransactionRepository) GetByHash(ctx context.Context, walletAddress, hash string) (*entities.StoredTransaction, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetByHash", Args: []interface{}{walletAddress, hash}})
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if tx, ok := m.stored[strings.ToLower(walletAddress)][hash]; ok {
		return &tx, nil
	}
	return nil, nil
}

func (m *MockTransactionRepository) ListByWallet(ctx context.Context, walletAddress string, limit, offset int) ([]entities.StoredTransaction, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "ListByWallet", Args: []interface{}{walletAddress, limit, offset}})
	m.mu.Unlock()

	if m.ListByWalletFunc != nil {
		return m.ListByWalletFunc(ctx, walletAddress, limit, offset)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.StoredTransaction, 0)
	for _, tx := range m.stored[strings.ToLower(walletAddress)] {
		result = append(result, tx)
	}
	sort.Slice(result, func(i, j int) bool {
		bi := entities.ParseBlockNumber(result[i].Transaction.BlockNum)
		bj := entities.ParseBlockNumber(result[j].Transaction.BlockNum)
		if bi != bj {
			return bi > bj
		}
		return result[i].Transaction.Hash < result[j].Transaction.Hash
	})

	if offset > len(result) {
		return []entities.StoredTransaction{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (m *MockTransactionRepository) CountByWallet(ctx context.Context, walletAddress string) (int64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "CountByWallet", Args: []interface{}{walletAddress}})
	m.mu.Unlock()

	if m.CountByWalletFunc != nil {
		return m.CountByWalletFunc(ctx, walletAddress)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.stored[strings.ToLower(walletAddress)])), nil
}

// MockCallDecoder decodes transaction input through a hook; without one every input fails
type MockCallDecoder struct {
	mu sync.Mutex

	DecodeFunc func(input []byte) (*entities.DecodedCall, error)

	Calls []MockCall
}

func NewMockCallDecoder() *MockCallDecoder {
	return &MockCallDecoder{Calls: make([]MockCall, 0)}
}

func (m *MockCallDecoder) Decode(input []byte) (*entities.DecodedCall, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Decode", Args: []interface{}{input}})
	m.mu.Unlock()

	if m.DecodeFunc != nil {
		return m.DecodeFunc(input)
	}
	return nil, fmt.Errorf("no method matches input")
}

// MockHealthChecker reports a fixed health state
type MockHealthChecker struct {
	mu sync.RWMutex

	Error error
	Calls []MockCall
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	m := &MockHealthChecker{Calls: make([]MockCall, 0)}
	m.SetHealthy(healthy)
	return m
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "HealthCheck"})
	return m.Error
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if healthy {
		m.Error = nil
	} else {
		m.Error = errors.New("health check failed")
	}
}

// Compile-time interface checks
var (
	_ repositories.TransferSource        = (*MockTransferSource)(nil)
	_ repositories.TransactionLookup     = (*MockTransactionLookup)(nil)
	_ repositories.TransactionRepository = (*MockTransactionRepository)(nil)
)
