package domain

import "context"

// PortfolioCache stores the last successful PortfolioView per wallet with a
// TTL equal to the polling interval, so a failed cycle keeps serving the
// previous good result.
type PortfolioCache interface {
	SetPortfolio(ctx context.Context, view PortfolioView) error
	GetPortfolio(ctx context.Context, wallet string) (PortfolioView, error)
}

// RewardsCache stores the last successful RewardsView per staking identity.
type RewardsCache interface {
	SetRewards(ctx context.Context, serviceID int64, view RewardsView) error
	GetRewards(ctx context.Context, serviceID int64) (RewardsView, error)
}

// SignalBus provides pub/sub fan-out of refresh events to the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
