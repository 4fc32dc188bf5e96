package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SUPAFUND_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SUPAFUND_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Wallet, "SUPAFUND_ENGINE_WALLET")
	setStr(&cfg.Engine.MarketCreator, "SUPAFUND_ENGINE_MARKET_CREATOR")
	setDuration(&cfg.Engine.PollInterval, "SUPAFUND_ENGINE_POLL_INTERVAL")
	setDuration(&cfg.Engine.IdlePollInterval, "SUPAFUND_ENGINE_IDLE_POLL_INTERVAL")
	setStr(&cfg.Engine.OversellPolicy, "SUPAFUND_ENGINE_OVERSELL_POLICY")
	setInt(&cfg.Engine.SnapshotRetentionDays, "SUPAFUND_ENGINE_SNAPSHOT_RETENTION_DAYS")

	// ── Subgraph ──
	setStr(&cfg.Subgraph.OmenURL, "SUPAFUND_SUBGRAPH_OMEN_URL")
	setStr(&cfg.Subgraph.ConditionalTokensURL, "SUPAFUND_SUBGRAPH_CONDITIONAL_TOKENS_URL")
	setStr(&cfg.Subgraph.StakingURL, "SUPAFUND_SUBGRAPH_STAKING_URL")
	setStr(&cfg.Subgraph.APIKey, "SUPAFUND_SUBGRAPH_API_KEY")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SUPAFUND_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ConditionalTokensAddress, "SUPAFUND_CHAIN_CONDITIONAL_TOKENS_ADDRESS")
	setBool(&cfg.Chain.VerifyBalances, "SUPAFUND_CHAIN_VERIFY_BALANCES")

	// ── Staking ──
	setInt64(&cfg.Staking.ServiceID, "SUPAFUND_STAKING_SERVICE_ID")
	setStringSlice(&cfg.Staking.Contracts, "SUPAFUND_STAKING_CONTRACTS")
	setStringSlice(&cfg.Staking.SelfCheckpointContracts, "SUPAFUND_STAKING_SELF_CHECKPOINT_CONTRACTS")
	setDuration(&cfg.Staking.PollInterval, "SUPAFUND_STAKING_POLL_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SUPAFUND_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SUPAFUND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SUPAFUND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SUPAFUND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SUPAFUND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SUPAFUND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SUPAFUND_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SUPAFUND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SUPAFUND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SUPAFUND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SUPAFUND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SUPAFUND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SUPAFUND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SUPAFUND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SUPAFUND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SUPAFUND_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SUPAFUND_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SUPAFUND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SUPAFUND_S3_REGION")
	setStr(&cfg.S3.Bucket, "SUPAFUND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SUPAFUND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SUPAFUND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SUPAFUND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SUPAFUND_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SUPAFUND_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SUPAFUND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SUPAFUND_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SUPAFUND_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "SUPAFUND_MODE")
	setStr(&cfg.LogLevel, "SUPAFUND_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
