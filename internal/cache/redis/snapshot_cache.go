package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supafund/supafund-engine/internal/domain"
)

// SnapshotCache implements domain.PortfolioCache and domain.RewardsCache
// using JSON blobs at "portfolio:{wallet}" and "rewards:{serviceID}". The TTL
// keeps a stale view alive across a few missed refresh cycles but not
// indefinitely.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client. ttl
// should be a small multiple of the refresh polling interval.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: c.rdb, ttl: ttl}
}

func portfolioKey(wallet string) string {
	return "portfolio:" + wallet
}

func rewardsKey(serviceID int64) string {
	return "rewards:" + strconv.FormatInt(serviceID, 10)
}

// SetPortfolio overwrites the cached view for the wallet atomically.
func (sc *SnapshotCache) SetPortfolio(ctx context.Context, view domain.PortfolioView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: marshal portfolio %s: %w", view.Wallet, err)
	}
	if err := sc.rdb.Set(ctx, portfolioKey(view.Wallet), payload, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set portfolio %s: %w", view.Wallet, err)
	}
	return nil
}

// GetPortfolio returns the last cached view for the wallet, or
// domain.ErrNotFound when no cycle has completed yet.
func (sc *SnapshotCache) GetPortfolio(ctx context.Context, wallet string) (domain.PortfolioView, error) {
	payload, err := sc.rdb.Get(ctx, portfolioKey(wallet)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PortfolioView{}, domain.ErrNotFound
		}
		return domain.PortfolioView{}, fmt.Errorf("redis: get portfolio %s: %w", wallet, err)
	}

	var view domain.PortfolioView
	if err := json.Unmarshal(payload, &view); err != nil {
		return domain.PortfolioView{}, fmt.Errorf("redis: decode portfolio %s: %w", wallet, err)
	}
	return view, nil
}

// SetRewards overwrites the cached rewards view for the staking identity.
func (sc *SnapshotCache) SetRewards(ctx context.Context, serviceID int64, view domain.RewardsView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: marshal rewards %d: %w", serviceID, err)
	}
	if err := sc.rdb.Set(ctx, rewardsKey(serviceID), payload, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set rewards %d: %w", serviceID, err)
	}
	return nil
}

// GetRewards returns the last cached rewards view, or domain.ErrNotFound when
// no cycle has completed yet.
func (sc *SnapshotCache) GetRewards(ctx context.Context, serviceID int64) (domain.RewardsView, error) {
	payload, err := sc.rdb.Get(ctx, rewardsKey(serviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RewardsView{}, domain.ErrNotFound
		}
		return domain.RewardsView{}, fmt.Errorf("redis: get rewards %d: %w", serviceID, err)
	}

	var view domain.RewardsView
	if err := json.Unmarshal(payload, &view); err != nil {
		return domain.RewardsView{}, fmt.Errorf("redis: decode rewards %d: %w", serviceID, err)
	}
	return view, nil
}

// Compile-time interface checks.
var (
	_ domain.PortfolioCache = (*SnapshotCache)(nil)
	_ domain.RewardsCache   = (*SnapshotCache)(nil)
)
