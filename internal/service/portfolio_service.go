// Package service orchestrates refresh cycles: it pulls raw events from the
// indexers, runs them through the accounting engine, and distributes the
// resulting views to the cache, the snapshot store, and the signal bus.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/supafund/supafund-engine/internal/domain"
	"github.com/supafund/supafund-engine/internal/engine"
)

// Pub/sub channels carrying completed refresh views to the WebSocket hub.
const (
	ChannelPortfolio = "portfolio"
	ChannelRewards   = "rewards"
)

// TradeSource fetches the agent's trade history and the current set of open
// markets from the trade indexer.
type TradeSource interface {
	FetchUserTrades(ctx context.Context, wallet string) ([]domain.TradeEvent, error)
	FetchOpenMarkets(ctx context.Context, creator string, now time.Time) ([]domain.MarketSnapshot, error)
}

// BalanceSource fetches authoritative outcome-token balances from the
// conditional-tokens indexer.
type BalanceSource interface {
	FetchUserBalances(ctx context.Context, wallet string) (map[domain.BalanceKey]float64, error)
}

// BalanceVerifier cross-checks indexer balances against the chain. Optional;
// a nil verifier skips the check.
type BalanceVerifier interface {
	FetchBalances(ctx context.Context, wallet, collateralToken string, keys []domain.BalanceKey) (map[domain.BalanceKey]float64, error)
}

// PortfolioConfig holds the refresh parameters for one tracked wallet.
type PortfolioConfig struct {
	Wallet        string
	MarketCreator string
	// OversellPolicy decides how sells exceeding held inventory are booked.
	OversellPolicy engine.OversellPolicy
	// PollInterval applies while new trades keep arriving; IdlePollInterval
	// applies once a cycle sees no change in trade count.
	PollInterval     time.Duration
	IdlePollInterval time.Duration
	// StakingServiceID keys the rewards cache lookup that stamps the reward
	// streak onto snapshots. Zero disables the lookup.
	StakingServiceID int64
}

// PortfolioService runs the portfolio refresh loop. Each cycle is
// all-or-nothing: any fetch failure aborts the cycle and the previously
// cached view keeps serving.
type PortfolioService struct {
	cfg      PortfolioConfig
	trades   TradeSource
	balances BalanceSource
	verifier BalanceVerifier
	store    domain.SnapshotStore
	cache    domain.PortfolioCache
	rewards  domain.RewardsCache
	bus      domain.SignalBus
	logger   *slog.Logger

	lastTradeCount int
	sawNewTrades   bool
}

// NewPortfolioService creates a PortfolioService. verifier and rewards may
// be nil; a nil verifier takes indexer balances as-is and a nil rewards
// cache leaves the snapshot streak at zero.
func NewPortfolioService(
	cfg PortfolioConfig,
	trades TradeSource,
	balances BalanceSource,
	verifier BalanceVerifier,
	store domain.SnapshotStore,
	cache domain.PortfolioCache,
	rewards domain.RewardsCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		cfg:            cfg,
		trades:         trades,
		balances:       balances,
		verifier:       verifier,
		store:          store,
		cache:          cache,
		rewards:        rewards,
		bus:            bus,
		logger:         logger,
		lastTradeCount: -1,
	}
}

// RunCycle executes one full refresh: fetch, replay, valuate, format, and
// distribute. The returned view is what was cached and published.
func (s *PortfolioService) RunCycle(ctx context.Context, now time.Time) (domain.PortfolioView, error) {
	var (
		trades   []domain.TradeEvent
		markets  []domain.MarketSnapshot
		balances map[domain.BalanceKey]float64
	)

	// The three indexer fetches are independent; fail the cycle if any fails.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trades, err = s.trades.FetchUserTrades(gctx, s.cfg.Wallet)
		return err
	})
	g.Go(func() error {
		var err error
		markets, err = s.trades.FetchOpenMarkets(gctx, s.cfg.MarketCreator, now)
		return err
	})
	g.Go(func() error {
		var err error
		balances, err = s.balances.FetchUserBalances(gctx, s.cfg.Wallet)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.PortfolioView{}, fmt.Errorf("portfolio_service: fetch: %w", err)
	}

	analytics := engine.BuildAnalytics(trades, now, s.cfg.OversellPolicy)

	if s.verifier != nil {
		s.verifyBalances(ctx, analytics.Aggregates, balances)
	}

	marketsByCondition := make(map[string]domain.MarketSnapshot, len(markets))
	for _, m := range markets {
		if m.ConditionID != "" {
			marketsByCondition[strings.ToLower(m.ConditionID)] = m
		}
	}

	view := domain.PortfolioView{
		CycleID:       uuid.NewString(),
		Wallet:        s.cfg.Wallet,
		Metrics:       engine.BuildMetrics(analytics.Aggregates, now),
		Positions:     engine.BuildPositions(analytics.Aggregates, balances, marketsByCondition, now),
		Activities:    engine.BuildActivities(trades, analytics.PerTrade, marketsByCondition, now),
		Opportunities: engine.BuildOpportunities(markets, now),
		RefreshedAt:   now,
	}

	if err := s.cache.SetPortfolio(ctx, view); err != nil {
		return domain.PortfolioView{}, fmt.Errorf("portfolio_service: cache view: %w", err)
	}

	snap := domain.PortfolioSnapshot{
		ID:        view.CycleID,
		Wallet:    view.Wallet,
		Metrics:   view.Metrics,
		Positions: len(view.Positions),
		TakenAt:   now,
	}
	if s.rewards != nil && s.cfg.StakingServiceID != 0 {
		if rewardsView, err := s.rewards.GetRewards(ctx, s.cfg.StakingServiceID); err == nil {
			snap.RewardStreak = rewardsView.Streak
		}
	}
	if err := s.store.Insert(ctx, snap); err != nil {
		// History is best-effort; the live view already made it to the cache.
		s.logger.WarnContext(ctx, "portfolio_service: snapshot insert failed",
			slog.String("cycle_id", view.CycleID),
			slog.String("error", err.Error()),
		)
	}

	payload, _ := json.Marshal(view)
	if err := s.bus.Publish(ctx, ChannelPortfolio, payload); err != nil {
		s.logger.WarnContext(ctx, "portfolio_service: publish failed",
			slog.String("cycle_id", view.CycleID),
			slog.String("error", err.Error()),
		)
	}

	s.sawNewTrades = len(trades) != s.lastTradeCount
	s.lastTradeCount = len(trades)

	s.logger.InfoContext(ctx, "portfolio_service: cycle complete",
		slog.String("cycle_id", view.CycleID),
		slog.Int("trades", len(trades)),
		slog.Int("positions", len(view.Positions)),
		slog.Float64("total_pnl", view.Metrics.TotalProfitLoss),
	)

	return view, nil
}

// verifyBalances replaces indexer balances with on-chain values for every
// position the replay knows a condition id for. Chain read failures leave the
// indexer values in place.
func (s *PortfolioService) verifyBalances(
	ctx context.Context,
	aggregates map[string]*domain.PositionAggregate,
	balances map[domain.BalanceKey]float64,
) {
	// The conditional tokens contract derives position ids from the
	// collateral address, so keys must be grouped per collateral token.
	byCollateral := make(map[string][]domain.BalanceKey)
	for _, agg := range aggregates {
		if agg.ConditionID == "" || agg.CollateralToken == "" {
			continue
		}
		key := domain.BalanceKey{ConditionID: agg.ConditionID, OutcomeIndex: agg.OutcomeIndex}
		byCollateral[agg.CollateralToken] = append(byCollateral[agg.CollateralToken], key)
	}

	for collateral, keys := range byCollateral {
		verified, err := s.verifier.FetchBalances(ctx, s.cfg.Wallet, collateral, keys)
		if err != nil {
			s.logger.WarnContext(ctx, "portfolio_service: balance verification failed",
				slog.String("collateral", collateral),
				slog.String("error", err.Error()),
			)
			continue
		}
		for key, tokens := range verified {
			if prev, ok := balances[key]; ok && prev != tokens {
				s.logger.WarnContext(ctx, "portfolio_service: indexer balance drift",
					slog.String("condition_id", key.ConditionID),
					slog.Int("outcome_index", key.OutcomeIndex),
					slog.Float64("indexer", prev),
					slog.Float64("chain", tokens),
				)
			}
			balances[key] = tokens
		}
	}
}

// Run executes refresh cycles until the context is cancelled. The cadence
// drops to the idle interval whenever a cycle sees no new trades.
func (s *PortfolioService) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.RunCycle(ctx, time.Now().UTC()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "portfolio_service: cycle failed",
				slog.String("error", err.Error()),
			)
			timer.Reset(s.cfg.PollInterval)
			continue
		}

		interval := s.cfg.PollInterval
		if !s.sawNewTrades && s.cfg.IdlePollInterval > 0 {
			interval = s.cfg.IdlePollInterval
		}
		timer.Reset(interval)
	}
}
