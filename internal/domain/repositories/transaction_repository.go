package repositories

import (
	"context"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
)

// TransactionRepository persists classified transactions per wallet
type TransactionRepository interface {
	// Upsert stores classification snapshots, replacing existing ones by hash.
	// Snapshots without a hash are skipped.
	Upsert(ctx context.Context, walletAddress string, txs []entities.FullTransaction) error

	// GetByHash retrieves one snapshot, nil when absent
	GetByHash(ctx context.Context, walletAddress, hash string) (*entities.StoredTransaction, error)

	// ListByWallet retrieves snapshots most-recent-block first
	ListByWallet(ctx context.Context, walletAddress string, limit, offset int) ([]entities.StoredTransaction, error)

	// CountByWallet returns the number of snapshots stored for a wallet
	CountByWallet(ctx context.Context, walletAddress string) (int64, error)
}
