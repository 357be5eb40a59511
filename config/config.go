package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrivateKey = "WALLET_PRIVATE_KEY"
	EnvFeedToken  = "FEED_TOKEN"

	defaultThresholdUSD     = "50000"
	defaultSlippage         = "0.01"
	defaultFixedFee         = "0.000005"
	defaultFloor            = "4.4"
	defaultMaxConcurrent    = 20
	defaultSpacingMs        = 500
	defaultMaxRetries       = 5
	defaultInitialDelayMs   = 1000
	defaultDecimals         = 18
	defaultConfirmTimeout   = 2 * time.Minute
	defaultHTTPAddr         = ":3000"
	defaultNetwork          = "eth"
	defaultWALDir           = "./wal"
	defaultLogLevel         = "info"
	defaultLogMaxSizeMB     = 100
	defaultLogMaxBackups    = 5
	defaultLogMaxAgeDays    = 30
	defaultBroadcastBufSize = 64
)

// Config runtime settings of the watcher.
type Config struct {
	FeedURL   string
	FeedToken string
	Network   string
	Token     string
	// Query overrides the default trades subscription.
	Query string

	RPCURL       string
	ChainID      int64
	PrivateKey   string
	Counterparty string
	Decimals     int32
	DryRun       bool

	LargeTransactionThresholdUSD decimal.Decimal
	SlippageTolerance            decimal.Decimal
	FixedFeePerTransaction       decimal.Decimal
	BalanceFloorThreshold        decimal.Decimal

	MaxConcurrentSubmissions int
	MinSubmissionSpacing     time.Duration
	MaxRetryAttempts         int
	InitialRetryDelay        time.Duration
	ConfirmTimeout           time.Duration

	HTTPAddr        string
	WALDir          string
	BroadcastBuffer int

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// ConfigTmp is the on-disk YAML form. Decimals are kept as strings to avoid float rounding.
type ConfigTmp struct {
	FeedURL      string `yaml:"feed_url"`
	Network      string `yaml:"network,omitempty"`
	Token        string `yaml:"token"`
	Query        string `yaml:"query,omitempty"`
	RPCURL       string `yaml:"rpc_url"`
	ChainID      int64  `yaml:"chain_id,omitempty"`
	Counterparty string `yaml:"counterparty"`
	Decimals     *int32 `yaml:"decimals,omitempty"`
	DryRun       bool   `yaml:"dry_run,omitempty"`

	LargeTransactionThresholdUSD string `yaml:"large_transaction_threshold_usd,omitempty"`
	SlippageTolerance            string `yaml:"slippage_tolerance,omitempty"`
	FixedFeePerTransaction       string `yaml:"fixed_fee_per_transaction,omitempty"`
	BalanceFloorThreshold        string `yaml:"balance_floor_threshold,omitempty"`

	MaxConcurrentSubmissions int           `yaml:"max_concurrent_submissions,omitempty"`
	MinSubmissionSpacingMs   *int          `yaml:"min_submission_spacing_ms,omitempty"`
	MaxRetryAttempts         int           `yaml:"max_retry_attempts,omitempty"`
	InitialRetryDelayMs      *int          `yaml:"initial_retry_delay_ms,omitempty"`
	ConfirmTimeout           time.Duration `yaml:"confirm_timeout,omitempty"`

	HTTPAddr        string `yaml:"http_addr,omitempty"`
	WALDir          string `yaml:"wal_dir,omitempty"`
	BroadcastBuffer int    `yaml:"broadcast_buffer,omitempty"`

	LogLevel      string `yaml:"log_level,omitempty"`
	LogFile       string `yaml:"log_file,omitempty"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb,omitempty"`
	LogMaxBackups int    `yaml:"log_max_backups,omitempty"`
	LogMaxAgeDays int    `yaml:"log_max_age_days,omitempty"`
}

// Load reads .env (if present) and the YAML file at path, fills defaults
// and takes secrets from the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	var tmp ConfigTmp
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg, err := tmp.toConfig()
	if err != nil {
		return Config{}, err
	}

	cfg.PrivateKey = strings.TrimSpace(os.Getenv(EnvPrivateKey))
	cfg.FeedToken = strings.TrimSpace(os.Getenv(EnvFeedToken))

	return cfg, nil
}

func (c ConfigTmp) toConfig() (Config, error) {
	cfg := Config{
		FeedURL:                  c.FeedURL,
		Network:                  orDefault(c.Network, defaultNetwork),
		Token:                    c.Token,
		Query:                    c.Query,
		RPCURL:                   c.RPCURL,
		ChainID:                  c.ChainID,
		Counterparty:             c.Counterparty,
		Decimals:                 defaultDecimals,
		DryRun:                   c.DryRun,
		MaxConcurrentSubmissions: c.MaxConcurrentSubmissions,
		MaxRetryAttempts:         c.MaxRetryAttempts,
		MinSubmissionSpacing:     defaultSpacingMs * time.Millisecond,
		InitialRetryDelay:        defaultInitialDelayMs * time.Millisecond,
		ConfirmTimeout:           c.ConfirmTimeout,
		HTTPAddr:                 orDefault(c.HTTPAddr, defaultHTTPAddr),
		WALDir:                   orDefault(c.WALDir, defaultWALDir),
		BroadcastBuffer:          c.BroadcastBuffer,
		LogLevel:                 orDefault(c.LogLevel, defaultLogLevel),
		LogFile:                  c.LogFile,
		LogMaxSizeMB:             c.LogMaxSizeMB,
		LogMaxBackups:            c.LogMaxBackups,
		LogMaxAgeDays:            c.LogMaxAgeDays,
	}

	if c.Decimals != nil {
		cfg.Decimals = *c.Decimals
	}
	if c.MinSubmissionSpacingMs != nil {
		cfg.MinSubmissionSpacing = time.Duration(*c.MinSubmissionSpacingMs) * time.Millisecond
	}
	if c.InitialRetryDelayMs != nil {
		cfg.InitialRetryDelay = time.Duration(*c.InitialRetryDelayMs) * time.Millisecond
	}
	if cfg.MaxConcurrentSubmissions == 0 {
		cfg.MaxConcurrentSubmissions = defaultMaxConcurrent
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = defaultMaxRetries
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.BroadcastBuffer == 0 {
		cfg.BroadcastBuffer = defaultBroadcastBufSize
	}
	if cfg.LogMaxSizeMB == 0 {
		cfg.LogMaxSizeMB = defaultLogMaxSizeMB
	}
	if cfg.LogMaxBackups == 0 {
		cfg.LogMaxBackups = defaultLogMaxBackups
	}
	if cfg.LogMaxAgeDays == 0 {
		cfg.LogMaxAgeDays = defaultLogMaxAgeDays
	}

	var err error
	if cfg.LargeTransactionThresholdUSD, err = parseDecimal("large_transaction_threshold_usd", c.LargeTransactionThresholdUSD, defaultThresholdUSD); err != nil {
		return Config{}, err
	}
	if cfg.SlippageTolerance, err = parseDecimal("slippage_tolerance", c.SlippageTolerance, defaultSlippage); err != nil {
		return Config{}, err
	}
	if cfg.FixedFeePerTransaction, err = parseDecimal("fixed_fee_per_transaction", c.FixedFeePerTransaction, defaultFixedFee); err != nil {
		return Config{}, err
	}
	if cfg.BalanceFloorThreshold, err = parseDecimal("balance_floor_threshold", c.BalanceFloorThreshold, defaultFloor); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.FeedURL == "" {
		return fmt.Errorf("'feed_url' is required")
	}
	if c.Token == "" && c.Query == "" {
		return fmt.Errorf("either 'token' or 'query' is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("'rpc_url' is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("%s environment variable must be set", EnvPrivateKey)
	}
	if !c.DryRun && !common.IsHexAddress(c.Counterparty) {
		return fmt.Errorf("incorrect 'counterparty' param in yaml config (must be a hex address): %q", c.Counterparty)
	}
	if c.Decimals < 0 {
		return fmt.Errorf("'decimals' must not be negative, got %d", c.Decimals)
	}
	if c.MaxConcurrentSubmissions < 1 {
		return fmt.Errorf("'max_concurrent_submissions' must be at least 1, got %d", c.MaxConcurrentSubmissions)
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("'max_retry_attempts' must be at least 1, got %d", c.MaxRetryAttempts)
	}
	if c.MinSubmissionSpacing < 0 {
		return fmt.Errorf("'min_submission_spacing_ms' must not be negative")
	}
	if c.InitialRetryDelay < 0 {
		return fmt.Errorf("'initial_retry_delay_ms' must not be negative")
	}
	if c.SlippageTolerance.IsNegative() {
		return fmt.Errorf("'slippage_tolerance' must not be negative")
	}
	if c.LargeTransactionThresholdUSD.IsNegative() {
		return fmt.Errorf("'large_transaction_threshold_usd' must not be negative")
	}
	if c.FixedFeePerTransaction.IsNegative() {
		return fmt.Errorf("'fixed_fee_per_transaction' must not be negative")
	}
	return nil
}

func parseDecimal(name, value, def string) (decimal.Decimal, error) {
	if value == "" {
		value = def
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", name, err)
	}
	return d, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
