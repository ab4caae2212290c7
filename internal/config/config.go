package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Indexing API (Alchemy) configuration
	Alchemy AlchemyConfig

	// Ethereum node configuration
	Ethereum EthereumConfig

	// Feed configuration
	Feed FeedConfig

	// Background sync configuration
	Sync SyncConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Logging configuration
	Log LogConfig
}

// AlchemyConfig holds the transfer indexing API settings
type AlchemyConfig struct {
	APIKey         string        `envconfig:"ALCHEMY_API_KEY" default:""`
	Network        string        `envconfig:"ALCHEMY_NETWORK" default:"eth-sepolia"`
	BaseURL        string        `envconfig:"ALCHEMY_BASE_URL" default:""`
	RequestTimeout time.Duration `envconfig:"ALCHEMY_REQUEST_TIMEOUT" default:"30s"`
	RateLimitRPS   float64       `envconfig:"ALCHEMY_RATE_LIMIT_RPS" default:"25"`
}

// supportedNetworks lists the Alchemy network slugs the feed can query
var supportedNetworks = map[string]struct{}{
	"eth-mainnet":     {},
	"eth-sepolia":     {},
	"polygon-mainnet": {},
	"polygon-amoy":    {},
	"arb-mainnet":     {},
	"arb-sepolia":     {},
	"opt-mainnet":     {},
	"opt-sepolia":     {},
	"base-mainnet":    {},
	"base-sepolia":    {},
}

// ErrMissingAPIKey is returned when no indexing API key is configured
var ErrMissingAPIKey = fmt.Errorf("alchemy API key is not configured")

// Endpoint resolves the JSON-RPC endpoint for the configured network.
// BaseURL, when set, is used verbatim and bypasses key and network checks.
func (c AlchemyConfig) Endpoint() (string, error) {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/"), nil
	}
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	network := strings.ToLower(c.Network)
	if _, ok := supportedNetworks[network]; !ok {
		return "", fmt.Errorf("unsupported network %q", c.Network)
	}
	return fmt.Sprintf("https://%s.g.alchemy.com/v2/%s", network, c.APIKey), nil
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	// RPCURL defaults to the Alchemy endpoint when empty
	RPCURL         string        `envconfig:"ETH_RPC_URL" default:""`
	ChainID        int64         `envconfig:"ETH_CHAIN_ID" default:"0"`
	RequestTimeout time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay     time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`
	BatchLimit     int           `envconfig:"ETH_BATCH_LIMIT" default:"1000"`
}

// FeedConfig holds the transaction feed settings
type FeedConfig struct {
	PageSize           int           `envconfig:"FEED_PAGE_SIZE" default:"20"`
	BufferSize         int           `envconfig:"FEED_BUFFER_SIZE" default:"10"`
	MaxRetries         int           `envconfig:"FEED_MAX_RETRIES" default:"3"`
	RetryDelay         time.Duration `envconfig:"FEED_RETRY_DELAY" default:"1s"`
	ExcludeZeroValue   bool          `envconfig:"FEED_EXCLUDE_ZERO_VALUE" default:"false"`
	Categories         []string      `envconfig:"FEED_CATEGORIES" default:"external,internal,erc20,erc721,erc1155,specialnft"`
	ContractAddress    string        `envconfig:"FEED_CONTRACT_ADDRESS" default:""`
	ContractABIPath    string        `envconfig:"FEED_CONTRACT_ABI_PATH" default:""`
	SelfTransferPolicy string        `envconfig:"FEED_SELF_TRANSFER_POLICY" default:"last"`
	DecodeInputs       bool          `envconfig:"FEED_DECODE_INPUTS" default:"true"`
	CacheTTL           time.Duration `envconfig:"FEED_CACHE_TTL" default:"10m"`
	WalletIdleTTL      time.Duration `envconfig:"FEED_WALLET_IDLE_TTL" default:"30m"`
	MaxWallets         int           `envconfig:"FEED_MAX_WALLETS" default:"10000"`
}

// SyncConfig holds background sync settings
type SyncConfig struct {
	MetricsPort  int           `envconfig:"SYNC_METRICS_PORT" default:"8080"`
	PollInterval time.Duration `envconfig:"SYNC_POLL_INTERVAL" default:"5m"`
	WorkerCount  int           `envconfig:"SYNC_WORKER_COUNT" default:"4"`
	MaxPages     int           `envconfig:"SYNC_MAX_PAGES" default:"500"`

	// Wallets to sync (comma-separated addresses)
	WalletAddresses []string `envconfig:"SYNC_WALLET_ADDRESSES" default:""`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	// URL, when set, is used verbatim in place of the discrete fields
	URL             string        `envconfig:"DATABASE_URL" default:""`
	Enabled         bool          `envconfig:"DB_ENABLED" default:"true"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"activity"`
	Password        string        `envconfig:"DB_PASSWORD" default:"activity"`
	Name            string        `envconfig:"DB_NAME" default:"wallet_activity"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	MigrationsDir   string        `envconfig:"DB_MIGRATIONS_DIR" default:"migrations"`
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
