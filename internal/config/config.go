// Package config defines the top-level configuration for the Supafund
// accounting engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SUPAFUND_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Subgraph SubgraphConfig `toml:"subgraph"`
	Chain    ChainConfig    `toml:"chain"`
	Staking  StakingConfig  `toml:"staking"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the portfolio refresh parameters.
type EngineConfig struct {
	// Wallet is the agent address whose trades and balances are tracked.
	Wallet string `toml:"wallet"`
	// MarketCreator filters the opportunities query to markets created by
	// this address.
	MarketCreator string `toml:"market_creator"`
	// PollInterval is the refresh cadence while the agent is trading;
	// IdlePollInterval applies when the last cycle saw no new trades.
	PollInterval     duration `toml:"poll_interval"`
	IdlePollInterval duration `toml:"idle_poll_interval"`
	// OversellPolicy decides how sells exceeding held inventory are booked:
	// "zero_cost" or "ignore".
	OversellPolicy string `toml:"oversell_policy"`
	// SnapshotRetentionDays bounds how long refresh snapshots stay in
	// Postgres before archival to S3.
	SnapshotRetentionDays int `toml:"snapshot_retention_days"`
}

// SubgraphConfig holds the GraphQL indexer endpoints.
type SubgraphConfig struct {
	OmenURL              string `toml:"omen_url"`
	ConditionalTokensURL string `toml:"conditional_tokens_url"`
	StakingURL           string `toml:"staking_url"`
	APIKey               string `toml:"api_key"`
}

// ChainConfig holds JSON-RPC parameters for on-chain balance verification.
type ChainConfig struct {
	RPCURL                   string `toml:"rpc_url"`
	ConditionalTokensAddress string `toml:"conditional_tokens_address"`
	// VerifyBalances enables the on-chain cross-check of subgraph balances.
	VerifyBalances bool `toml:"verify_balances"`
}

// StakingConfig holds the reward streak parameters.
type StakingConfig struct {
	// ServiceID is the staked service NFT token id acting as the identity.
	ServiceID int64 `toml:"service_id"`
	// Contracts is the set of staking contracts whose checkpoints are
	// fetched.
	Contracts []string `toml:"contracts"`
	// SelfCheckpointContracts lists contracts whose checkpoints with an
	// empty participant list are attributed to the service itself.
	SelfCheckpointContracts []string `toml:"self_checkpoint_contracts"`
	PollInterval            duration `toml:"poll_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for snapshot
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the API when set; empty disables authentication.
	APIKey string `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MarketCreator:         "0xf765a1FE2E15d0246430CCE854D2c923a85AF388",
			PollInterval:          duration{1 * time.Minute},
			IdlePollInterval:      duration{5 * time.Minute},
			OversellPolicy:        "zero_cost",
			SnapshotRetentionDays: 90,
		},
		Subgraph: SubgraphConfig{
			OmenURL:              "https://omen.subgraph.autonolas.tech",
			ConditionalTokensURL: "https://conditional-tokens.subgraph.autonolas.tech",
			StakingURL:           "https://rewards.subgraph.autonolas.tech",
		},
		Chain: ChainConfig{
			RPCURL:                   "https://rpc.gnosischain.com",
			ConditionalTokensAddress: "0xCeAfDD6bc0bEF976fdCd1112955828E00543c0Ce",
			VerifyBalances:           false,
		},
		Staking: StakingConfig{
			PollInterval: duration{1 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "supafund-snapshots",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8716,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine": true,
	"server": true,
	"full":   true,
	"once":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validOversellPolicies = map[string]bool{
	"zero_cost": true,
	"ignore":    true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, server, full, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.Wallet == "" {
		errs = append(errs, "engine: wallet must not be empty")
	}
	if c.Engine.MarketCreator == "" {
		errs = append(errs, "engine: market_creator must not be empty")
	}
	if c.Engine.PollInterval.Duration <= 0 {
		errs = append(errs, "engine: poll_interval must be > 0")
	}
	if c.Engine.IdlePollInterval.Duration < c.Engine.PollInterval.Duration {
		errs = append(errs, "engine: idle_poll_interval must be >= poll_interval")
	}
	if !validOversellPolicies[c.Engine.OversellPolicy] {
		errs = append(errs, fmt.Sprintf("engine: unknown oversell_policy %q (valid: zero_cost, ignore)", c.Engine.OversellPolicy))
	}
	if c.Engine.SnapshotRetentionDays < 1 {
		errs = append(errs, "engine: snapshot_retention_days must be >= 1")
	}

	// Subgraph endpoints
	if c.Subgraph.OmenURL == "" {
		errs = append(errs, "subgraph: omen_url must not be empty")
	}
	if c.Subgraph.ConditionalTokensURL == "" {
		errs = append(errs, "subgraph: conditional_tokens_url must not be empty")
	}

	// Chain settings are only needed when balance verification is on.
	if c.Chain.VerifyBalances {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url is required when verify_balances is enabled")
		}
		if c.Chain.ConditionalTokensAddress == "" {
			errs = append(errs, "chain: conditional_tokens_address is required when verify_balances is enabled")
		}
	}

	// A configured staking service id needs contracts to watch.
	if c.Staking.ServiceID != 0 {
		if len(c.Staking.Contracts) == 0 {
			errs = append(errs, "staking: contracts must not be empty when service_id is set")
		}
		if c.Subgraph.StakingURL == "" {
			errs = append(errs, "subgraph: staking_url is required when staking.service_id is set")
		}
		if c.Staking.PollInterval.Duration <= 0 {
			errs = append(errs, "staking: poll_interval must be > 0")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
