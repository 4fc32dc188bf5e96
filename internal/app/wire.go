package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/supafund/supafund-engine/internal/blob/s3"
	"github.com/supafund/supafund-engine/internal/cache/redis"
	"github.com/supafund/supafund-engine/internal/config"
	"github.com/supafund/supafund-engine/internal/domain"
	"github.com/supafund/supafund-engine/internal/platform/chain"
	"github.com/supafund/supafund-engine/internal/platform/conditional"
	"github.com/supafund/supafund-engine/internal/platform/omen"
	"github.com/supafund/supafund-engine/internal/platform/staking"
	"github.com/supafund/supafund-engine/internal/store/postgres"
)

// Dependencies bundles the wired stores, caches, and indexer clients the
// application modes build their services from.
type Dependencies struct {
	SnapshotStore domain.SnapshotStore

	PortfolioCache domain.PortfolioCache
	RewardsCache   domain.RewardsCache
	SignalBus      domain.SignalBus

	// BlobWriter is nil when S3 archival is disabled.
	BlobWriter domain.BlobWriter

	// Indexer clients, nil in server-only mode.
	Omen        *omen.Client
	Conditional *conditional.Client
	Staking     *staking.Client

	// Verifier is nil when on-chain balance verification is off.
	Verifier *chain.Verifier
}

// runsEngine reports whether the mode executes refresh cycles.
func runsEngine(mode string) bool {
	switch strings.ToLower(mode) {
	case "engine", "full", "once":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete dependency implementations from configuration
// and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.SnapshotStore = postgres.NewSnapshotStore(pgClient.Pool())

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	// Cached views survive a few missed cycles but never go truly stale.
	cacheTTL := 4 * cfg.Engine.IdlePollInterval.Duration
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	snapshotCache := redis.NewSnapshotCache(redisClient, cacheTTL)
	deps.PortfolioCache = snapshotCache
	deps.RewardsCache = snapshotCache
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage for snapshot archival ---
	if cfg.S3.Enabled && runsEngine(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Indexer clients ---
	if runsEngine(cfg.Mode) {
		deps.Omen = omen.NewClient(cfg.Subgraph.OmenURL, cfg.Subgraph.APIKey)
		deps.Conditional = conditional.NewClient(cfg.Subgraph.ConditionalTokensURL, cfg.Subgraph.APIKey)
		if cfg.Staking.ServiceID != 0 {
			deps.Staking = staking.NewClient(cfg.Subgraph.StakingURL, cfg.Subgraph.APIKey)
		}

		if cfg.Chain.VerifyBalances {
			verifier, err := chain.NewVerifier(cfg.Chain.RPCURL, cfg.Chain.ConditionalTokensAddress)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: chain verifier: %w", err)
			}
			closers = append(closers, verifier.Close)
			deps.Verifier = verifier
		}
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("s3", deps.BlobWriter != nil),
		slog.Bool("chain_verifier", deps.Verifier != nil),
		slog.Bool("staking", deps.Staking != nil),
	)

	return deps, cleanup, nil
}
