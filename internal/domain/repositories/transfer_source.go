package repositories

import (
	"context"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
)

// SortOrder is the block ordering requested from the indexing API
type SortOrder string

const (
	OrderAscending  SortOrder = "asc"
	OrderDescending SortOrder = "desc"
)

// TransferQuery describes one page request against the indexing API.
// Exactly one of FromAddress or ToAddress is set by the feed.
type TransferQuery struct {
	FromAddress      string
	ToAddress        string
	Categories       []entities.TransferCategory
	ExcludeZeroValue bool
	Order            SortOrder
	PageKey          string
	MaxCount         int
	WithMetadata     bool
}

// TransferPage is one page of results. An empty PageKey marks the end of data.
type TransferPage struct {
	Transfers []entities.Transfer
	PageKey   string
}

// TransferSource lists transfers for an address, one page per call
type TransferSource interface {
	GetAssetTransfers(ctx context.Context, query TransferQuery) (*TransferPage, error)
}

// TransactionLookup resolves transactions by hash in batches.
// A failed item yields a nil entry at its index rather than failing the batch.
type TransactionLookup interface {
	GetTransactionsByHash(ctx context.Context, hashes []string) ([]*entities.ChainTransaction, error)
}
