package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	"github.com/bimakw/wallet-activity/internal/domain/repositories"
)

// Ensure TransactionRepo implements TransactionRepository
var _ repositories.TransactionRepository = (*TransactionRepo)(nil)

// TransactionRepo implements TransactionRepository using PostgreSQL
type TransactionRepo struct {
	db *sqlx.DB
}

// NewTransactionRepo creates a new transaction repository
func NewTransactionRepo(db *sqlx.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

type transactionRow struct {
	WalletAddress string    `db:"wallet_address"`
	TxHash        string    `db:"tx_hash"`
	BlockNumber   int64     `db:"block_number"`
	TxType        string    `db:"tx_type"`
	Payload       []byte    `db:"payload"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r transactionRow) toEntity() (entities.StoredTransaction, error) {
	var tx entities.FullTransaction
	if err := json.Unmarshal(r.Payload, &tx); err != nil {
		return entities.StoredTransaction{}, fmt.Errorf("failed to decode transaction %s: %w", r.TxHash, err)
	}
	return entities.StoredTransaction{
		WalletAddress: r.WalletAddress,
		Transaction:   tx,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

// Upsert stores classification snapshots in a single transaction. Snapshots
// are keyed by hash, so hashless ones are skipped.
func (r *TransactionRepo) Upsert(ctx context.Context, walletAddress string, txs []entities.FullTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	wallet := strings.ToLower(walletAddress)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO wallet_transactions (wallet_address, tx_hash, block_number, tx_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_address, tx_hash) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			tx_type = EXCLUDED.tx_type,
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		if t.Hash == "" {
			continue
		}
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode transaction %s: %w", t.Hash, err)
		}

		_, err = stmt.ExecContext(ctx,
			wallet,
			strings.ToLower(t.Hash),
			int64(entities.ParseBlockNumber(t.BlockNum)),
			string(t.Type),
			payload,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByHash retrieves one snapshot, nil when absent
func (r *TransactionRepo) GetByHash(ctx context.Context, walletAddress, hash string) (*entities.StoredTransaction, error) {
	query := `
		SELECT wallet_address, tx_hash, block_number, tx_type, payload, updated_at
		FROM wallet_transactions
		WHERE wallet_address = $1 AND tx_hash = $2
	`

	var row transactionRow
	if err := r.db.GetContext(ctx, &row, query, strings.ToLower(walletAddress), strings.ToLower(hash)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	stored, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListByWallet retrieves snapshots most-recent-block first
func (r *TransactionRepo) ListByWallet(ctx context.Context, walletAddress string, limit, offset int) ([]entities.StoredTransaction, error) {
	query := `
		SELECT wallet_address, tx_hash, block_number, tx_type, payload, updated_at
		FROM wallet_transactions
		WHERE wallet_address = $1
		ORDER BY block_number DESC, tx_hash
		LIMIT $2 OFFSET $3
	`

	var rows []transactionRow
	if err := r.db.SelectContext(ctx, &rows, query, strings.ToLower(walletAddress), limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	result := make([]entities.StoredTransaction, 0, len(rows))
	for _, row := range rows {
		stored, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		result = append(result, stored)
	}

	return result, nil
}

// CountByWallet returns the number of snapshots stored for a wallet
func (r *TransactionRepo) CountByWallet(ctx context.Context, walletAddress string) (int64, error) {
	query := `SELECT COUNT(*) FROM wallet_transactions WHERE wallet_address = $1`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, strings.ToLower(walletAddress)); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}
