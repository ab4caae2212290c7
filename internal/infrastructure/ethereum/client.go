package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/bimakw/wallet-activity/internal/config"
	"github.com/bimakw/wallet-activity/internal/domain/entities"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
	"github.com/bimakw/wallet-activity/internal/domain/repositories"
	"github.com/bimakw/wallet-activity/internal/retry"
)

// DefaultBatchLimit is the provider's maximum number of calls per batch request
const DefaultBatchLimit = 1000

// Client wraps the Ethereum client with retry logic and batch lookups
type Client struct {
	rpc     *rpc.Client
	client  *ethclient.Client
	config  config.EthereumConfig
	logger  *zap.Logger
	chainID *big.Int
}

// NewClient creates a new Ethereum client. When cfg.ChainID is set the
// node's chain ID must match it.
func NewClient(cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	c := newClient(rpcClient, cfg, logger)

	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		c.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Int64())
	}
	c.chainID = chainID

	logger.Info("Connected to Ethereum node",
		zap.Int64("chain_id", chainID.Int64()),
	)

	return c, nil
}

func newClient(rpcClient *rpc.Client, cfg config.EthereumConfig, logger *zap.Logger) *Client {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	return &Client{
		rpc:    rpcClient,
		client: ethclient.NewClient(rpcClient),
		config: cfg,
		logger: logger,
	}
}

// Close closes the Ethereum client connection
func (c *Client) Close() {
	c.client.Close()
}

func (c *Client) retryPolicy(op string) retry.Policy {
	return retry.Policy{
		MaxRetries: c.config.MaxRetries,
		BaseDelay:  c.config.RetryDelay,
		// node calls fail with plain transport errors, so everything but
		// cancellation is worth another attempt
		ShouldRetry: func(err error) bool {
			return !isContextErr(err)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.logger.Warn("Ethereum call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}
}

// GetLatestBlockNumber returns the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	err := retry.Do(ctx, c.retryPolicy("eth_blockNumber"), func(ctx context.Context) error {
		n, err := c.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		blockNumber = n
		return nil
	})
	if err != nil {
		return 0, apperrors.NetworkError(err, "Failed to get latest block number")
	}
	return blockNumber, nil
}

// rpcTransaction is the subset of eth_getTransactionByHash the lookup needs
type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Input       hexutil.Bytes   `json:"input"`
	Value       *hexutil.Big    `json:"value"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
}

func (tx *rpcTransaction) toEntity() *entities.ChainTransaction {
	out := &entities.ChainTransaction{
		Hash:  tx.Hash.Hex(),
		From:  strings.ToLower(tx.From.Hex()),
		Input: []byte(tx.Input),
		Value: "0",
	}
	if tx.To != nil {
		out.To = strings.ToLower(tx.To.Hex())
	}
	if tx.Value != nil {
		out.Value = tx.Value.ToInt().String()
	}
	if tx.BlockNumber != nil {
		out.BlockNumber = tx.BlockNumber.ToInt().Uint64()
	}
	return out
}

// GetTransactionsByHash looks transactions up in batches of at most the
// configured batch limit. The result has one entry per hash; an entry is nil
// when that item failed or the transaction is unknown.
func (c *Client) GetTransactionsByHash(ctx context.Context, hashes []string) ([]*entities.ChainTransaction, error) {
	result := make([]*entities.ChainTransaction, len(hashes))

	for start := 0; start < len(hashes); start += c.config.BatchLimit {
		end := start + c.config.BatchLimit
		if end > len(hashes) {
			end = len(hashes)
		}

		txs := make([]*rpcTransaction, end-start)
		batch := make([]rpc.BatchElem, end-start)
		for i, h := range hashes[start:end] {
			batch[i] = rpc.BatchElem{
				Method: "eth_getTransactionByHash",
				Args:   []interface{}{common.HexToHash(h)},
				Result: &txs[i],
			}
		}

		err := retry.Do(ctx, c.retryPolicy("eth_getTransactionByHash"), func(ctx context.Context) error {
			return c.rpc.BatchCallContext(ctx, batch)
		})
		if err != nil {
			if isContextErr(err) {
				return nil, err
			}
			return nil, apperrors.NetworkError(err, "Failed to look up transactions")
		}

		for i, elem := range batch {
			if elem.Error != nil {
				c.logger.Debug("Transaction lookup failed",
					zap.String("hash", hashes[start+i]),
					zap.Error(elem.Error),
				)
				continue
			}
			if txs[i] != nil {
				result[start+i] = txs[i].toEntity()
			}
		}

		c.logger.Debug("Looked up transaction batch",
			zap.Int("from", start),
			zap.Int("count", end-start),
		)
	}

	return result, nil
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var _ repositories.TransactionLookup = (*Client)(nil)
