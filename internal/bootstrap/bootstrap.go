package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimakw/wallet-activity/internal/application/classifier"
	"github.com/bimakw/wallet-activity/internal/application/feed"
	"github.com/bimakw/wallet-activity/internal/application/services"
	"github.com/bimakw/wallet-activity/internal/config"
	"github.com/bimakw/wallet-activity/internal/domain/entities"
	"github.com/bimakw/wallet-activity/internal/infrastructure/alchemy"
	"github.com/bimakw/wallet-activity/internal/infrastructure/cache"
	"github.com/bimakw/wallet-activity/internal/infrastructure/database"
	"github.com/bimakw/wallet-activity/internal/infrastructure/ethereum"
)

// App holds the wired components shared by the API server and the syncer.
// EthClient, DB and Redis are nil when the component is disabled or
// unreachable.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Alchemy   *alchemy.Client
	EthClient *ethereum.Client
	DB        *database.PostgresDB
	Redis     *cache.RedisCache
	Activity  *services.WalletActivityService
}

// NewLogger builds the process logger from cfg
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return zapConfig.Build()
}

// FeedCategories parses the configured transfer categories
func FeedCategories(names []string) ([]entities.TransferCategory, error) {
	if len(names) == 0 {
		return entities.AllCategories(), nil
	}

	categories := make([]entities.TransferCategory, 0, len(names))
	for _, name := range names {
		c, ok := entities.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("unknown transfer category %q", name)
		}
		categories = append(categories, c)
	}
	return categories, nil
}

// ContractAddress validates the configured contract address. Empty is allowed.
func ContractAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", nil
	}
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid contract address %q", address)
	}
	return strings.ToLower(address), nil
}

// Decoders loads the call decoders. The contract decoder is nil when no
// ABI file is configured.
func Decoders(abiPath string) (classifier.CallDecoder, classifier.CallDecoder, error) {
	var contractDecoder classifier.CallDecoder
	if abiPath != "" {
		d, err := ethereum.LoadABIFile(ethereum.SourceContract, abiPath)
		if err != nil {
			return nil, nil, err
		}
		contractDecoder = d
	}

	tokenDecoder, err := ethereum.NewERC20Decoder()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build ERC-20 decoder: %w", err)
	}
	return contractDecoder, tokenDecoder, nil
}

// New wires every component from cfg. The indexing API client is always
// built, even without a key, so requests fail with a configuration error
// instead of the process refusing to start.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	categories, err := FeedCategories(cfg.Feed.Categories)
	if err != nil {
		return nil, err
	}
	contract, err := ContractAddress(cfg.Feed.ContractAddress)
	if err != nil {
		return nil, err
	}
	policy, err := classifier.ParseSelfTransferPolicy(cfg.Feed.SelfTransferPolicy)
	if err != nil {
		return nil, err
	}
	contractDecoder, tokenDecoder, err := Decoders(cfg.Feed.ContractABIPath)
	if err != nil {
		return nil, err
	}

	app.Alchemy = alchemy.NewClient(cfg.Alchemy, logger)
	if _, err := cfg.Alchemy.Endpoint(); err != nil {
		logger.Warn("Indexing API is not configured, feed requests will fail", zap.Error(err))
	}

	fetcher := feed.NewDualCursorFetcher(app.Alchemy, feed.FetcherConfig{
		Categories:       categories,
		ExcludeZeroValue: cfg.Feed.ExcludeZeroValue,
		MaxRetries:       cfg.Feed.MaxRetries,
		RetryDelay:       cfg.Feed.RetryDelay,
	}, logger)

	var opts []services.ActivityOption

	if cfg.Feed.DecodeInputs {
		if app.EthClient = connectEthereum(cfg, logger); app.EthClient != nil {
			opts = append(opts, services.WithTransactionLookup(app.EthClient))
		}
	}

	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(cfg.Database, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.DB = db
		if err := db.RunMigrations(ctx, cfg.Database.MigrationsDir); err != nil {
			app.Close()
			return nil, err
		}
		opts = append(opts, services.WithTransactionRepository(database.NewTransactionRepo(db.DB())))
	}

	var remote cache.Store
	redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.Feed.CacheTTL, logger)
	if err != nil {
		logger.Warn("Failed to connect to Redis, running with local cache only", zap.Error(err))
	} else {
		app.Redis = redisCache
		remote = redisCache
	}
	opts = append(opts, services.WithClassificationCache(cache.NewClassificationCache(remote, cfg.Feed.CacheTTL, logger)))

	app.Activity = services.NewWalletActivityService(
		fetcher,
		classifier.NewClassifier(contractDecoder, tokenDecoder, policy, logger),
		services.ActivityConfig{
			Merger: feed.MergerConfig{
				PageSize:   cfg.Feed.PageSize,
				BufferSize: cfg.Feed.BufferSize,
			},
			ContractAddress: contract,
			DecodeInputs:    app.EthClient != nil,
			WalletIdleTTL:   cfg.Feed.WalletIdleTTL,
			MaxWallets:      cfg.Feed.MaxWallets,
		},
		logger,
		opts...,
	)

	logger.Info("Wallet activity wired",
		zap.Int("page_size", cfg.Feed.PageSize),
		zap.Int("buffer_size", cfg.Feed.BufferSize),
		zap.String("self_transfer_policy", string(policy)),
		zap.Bool("contract_abi", contractDecoder != nil),
		zap.Bool("input_lookup", app.EthClient != nil),
		zap.Bool("history", app.DB != nil),
		zap.Bool("shared_cache", app.Redis != nil),
	)

	return app, nil
}

// connectEthereum dials the node used for input lookups, falling back to the
// indexing API endpoint. Lookups are best-effort, so failure only disables them.
func connectEthereum(cfg *config.Config, logger *zap.Logger) *ethereum.Client {
	ethCfg := cfg.Ethereum
	if ethCfg.RPCURL == "" {
		endpoint, err := cfg.Alchemy.Endpoint()
		if err != nil {
			logger.Warn("No Ethereum RPC endpoint, input decoding disabled", zap.Error(err))
			return nil
		}
		ethCfg.RPCURL = endpoint
	}

	client, err := ethereum.NewClient(ethCfg, logger)
	if err != nil {
		logger.Warn("Failed to connect to Ethereum node, input decoding disabled", zap.Error(err))
		return nil
	}
	return client
}

// Close releases every connection the app holds
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	if a.EthClient != nil {
		a.EthClient.Close()
	}
	if a.Alchemy != nil {
		if err := a.Alchemy.Close(); err != nil {
			a.Logger.Warn("Failed to close indexing API client", zap.Error(err))
		}
	}
}
