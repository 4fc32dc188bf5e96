package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/supafund/supafund-engine/internal/domain"
	"github.com/supafund/supafund-engine/internal/engine"
)

func wei(v float64) string {
	return decimal.NewFromFloat(v).Shift(18).String()
}

type fakeTradeSource struct {
	trades  []domain.TradeEvent
	markets []domain.MarketSnapshot
	err     error
}

func (f *fakeTradeSource) FetchUserTrades(_ context.Context, _ string) ([]domain.TradeEvent, error) {
	return f.trades, f.err
}

func (f *fakeTradeSource) FetchOpenMarkets(_ context.Context, _ string, _ time.Time) ([]domain.MarketSnapshot, error) {
	return f.markets, f.err
}

type fakeBalanceSource struct {
	balances map[domain.BalanceKey]float64
	err      error
}

func (f *fakeBalanceSource) FetchUserBalances(_ context.Context, _ string) (map[domain.BalanceKey]float64, error) {
	return f.balances, f.err
}

type fakeSnapshotStore struct {
	inserted  []domain.PortfolioSnapshot
	insertErr error

	beforeRows []domain.PortfolioSnapshot
	listErr    error
	deleted    int64
	deleteErr  error
}

func (f *fakeSnapshotStore) Insert(_ context.Context, snap domain.PortfolioSnapshot) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, snap)
	return nil
}

func (f *fakeSnapshotStore) Latest(_ context.Context, _ string) (domain.PortfolioSnapshot, error) {
	if len(f.inserted) == 0 {
		return domain.PortfolioSnapshot{}, domain.ErrNotFound
	}
	return f.inserted[len(f.inserted)-1], nil
}

func (f *fakeSnapshotStore) ListSince(_ context.Context, _ string, _ time.Time, _ int) ([]domain.PortfolioSnapshot, error) {
	return f.inserted, nil
}

func (f *fakeSnapshotStore) ListBefore(_ context.Context, _ time.Time, _ int) ([]domain.PortfolioSnapshot, error) {
	return f.beforeRows, f.listErr
}

func (f *fakeSnapshotStore) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deleted = int64(len(f.beforeRows))
	f.beforeRows = nil
	return f.deleted, nil
}

type fakeCache struct {
	portfolios map[string]domain.PortfolioView
	rewards    map[int64]domain.RewardsView
	setErr     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		portfolios: make(map[string]domain.PortfolioView),
		rewards:    make(map[int64]domain.RewardsView),
	}
}

func (f *fakeCache) SetPortfolio(_ context.Context, view domain.PortfolioView) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.portfolios[view.Wallet] = view
	return nil
}

func (f *fakeCache) GetPortfolio(_ context.Context, wallet string) (domain.PortfolioView, error) {
	view, ok := f.portfolios[wallet]
	if !ok {
		return domain.PortfolioView{}, domain.ErrNotFound
	}
	return view, nil
}

func (f *fakeCache) SetRewards(_ context.Context, serviceID int64, view domain.RewardsView) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.rewards[serviceID] = view
	return nil
}

func (f *fakeCache) GetRewards(_ context.Context, serviceID int64) (domain.RewardsView, error) {
	view, ok := f.rewards[serviceID]
	if !ok {
		return domain.RewardsView{}, domain.ErrNotFound
	}
	return view, nil
}

type fakeBus struct {
	published map[string][][]byte
	err       error
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testPortfolioConfig() PortfolioConfig {
	return PortfolioConfig{
		Wallet:           "0xagent",
		MarketCreator:    "0xcreator",
		OversellPolicy:   engine.OversellZeroCost,
		PollInterval:     time.Minute,
		IdlePollInterval: 5 * time.Minute,
	}
}

func testTrade() domain.TradeEvent {
	return domain.TradeEvent{
		ID:                "trade-1",
		MarketID:          "0xmarket",
		OutcomeIndex:      0,
		Side:              domain.TradeSideBuy,
		CollateralAmount:  wei(3.0),
		FeeAmount:         wei(0.06),
		OutcomeTokens:     wei(6.0),
		CreationTimestamp: time.Now().Add(-time.Hour).Unix(),
		Market: domain.MarketSnapshot{
			ID:             "0xmarket",
			Title:          "Will the project ship?",
			Outcomes:       []string{"Yes", "No"},
			MarginalPrices: []string{"0.55", "0.45"},
			Category:       "Technology",
			ConditionID:    "0xCOND",
		},
	}
}

func TestPortfolioServiceRunCycle(t *testing.T) {
	trades := &fakeTradeSource{
		trades: []domain.TradeEvent{testTrade()},
		markets: []domain.MarketSnapshot{
			{
				ID:                "0xopen",
				Title:             "Open market",
				Outcomes:          []string{"Yes", "No"},
				MarginalPrices:    []string{"0.8", "0.2"},
				CreationTimestamp: time.Now().Add(-time.Hour).Unix(),
				OpeningTimestamp:  time.Now().Add(time.Hour).Unix(),
			},
		},
	}
	balances := &fakeBalanceSource{balances: map[domain.BalanceKey]float64{}}
	store := &fakeSnapshotStore{}
	cache := newFakeCache()
	bus := newFakeBus()

	svc := NewPortfolioService(testPortfolioConfig(), trades, balances, nil, store, cache, nil, bus, testLogger())

	view, err := svc.RunCycle(context.Background(), time.Now().UTC())
	require.NoError(t, err)

	require.NotEmpty(t, view.CycleID)
	require.Equal(t, "0xagent", view.Wallet)
	require.Len(t, view.Positions, 1)
	require.Len(t, view.Activities, 1)
	require.Len(t, view.Opportunities, 1)
	require.Equal(t, 1, view.Metrics.ActivePositions)

	cached, err := cache.GetPortfolio(context.Background(), "0xagent")
	require.NoError(t, err)
	require.Equal(t, view.CycleID, cached.CycleID)

	require.Len(t, store.inserted, 1)
	require.Equal(t, view.CycleID, store.inserted[0].ID)
	require.Equal(t, 1, store.inserted[0].Positions)

	require.Len(t, bus.published[ChannelPortfolio], 1)
}

func TestPortfolioServiceFetchFailureAborts(t *testing.T) {
	trades := &fakeTradeSource{err: errors.New("indexer down")}
	balances := &fakeBalanceSource{balances: map[domain.BalanceKey]float64{}}
	store := &fakeSnapshotStore{}
	cache := newFakeCache()

	svc := NewPortfolioService(testPortfolioConfig(), trades, balances, nil, store, cache, nil, newFakeBus(), testLogger())

	_, err := svc.RunCycle(context.Background(), time.Now().UTC())
	require.Error(t, err)
	require.Contains(t, err.Error(), "indexer down")

	// Nothing is distributed on a failed cycle.
	require.Empty(t, cache.portfolios)
	require.Empty(t, store.inserted)
}

func TestPortfolioServiceSnapshotInsertFailureIsNonFatal(t *testing.T) {
	trades := &fakeTradeSource{trades: []domain.TradeEvent{testTrade()}}
	balances := &fakeBalanceSource{balances: map[domain.BalanceKey]float64{}}
	store := &fakeSnapshotStore{insertErr: errors.New("pg down")}
	cache := newFakeCache()

	svc := NewPortfolioService(testPortfolioConfig(), trades, balances, nil, store, cache, nil, newFakeBus(), testLogger())

	_, err := svc.RunCycle(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, cache.portfolios, 1)
}

func TestPortfolioServiceIdleDetection(t *testing.T) {
	trades := &fakeTradeSource{trades: []domain.TradeEvent{testTrade()}}
	balances := &fakeBalanceSource{balances: map[domain.BalanceKey]float64{}}

	svc := NewPortfolioService(testPortfolioConfig(), trades, balances, nil, &fakeSnapshotStore{}, newFakeCache(), nil, newFakeBus(), testLogger())

	_, err := svc.RunCycle(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, svc.sawNewTrades)

	// Same trade count on the next cycle means the agent is idle.
	_, err = svc.RunCycle(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.False(t, svc.sawNewTrades)
}

func TestPortfolioServiceStampsRewardStreak(t *testing.T) {
	cfg := testPortfolioConfig()
	cfg.StakingServiceID = 7

	trades := &fakeTradeSource{trades: []domain.TradeEvent{testTrade()}}
	balances := &fakeBalanceSource{balances: map[domain.BalanceKey]float64{}}
	store := &fakeSnapshotStore{}
	cache := newFakeCache()
	cache.rewards[7] = domain.RewardsView{Streak: 4}

	svc := NewPortfolioService(cfg, trades, balances, nil, store, cache, cache, newFakeBus(), testLogger())

	_, err := svc.RunCycle(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	require.Equal(t, 4, store.inserted[0].RewardStreak)
}

type fakeVerifier struct {
	balances map[domain.BalanceKey]float64
	err      error

	gotCollateral string
	gotKeys       []domain.BalanceKey
}

func (f *fakeVerifier) FetchBalances(_ context.Context, _, collateral string, keys []domain.BalanceKey) (map[domain.BalanceKey]float64, error) {
	f.gotCollateral = collateral
	f.gotKeys = keys
	return f.balances, f.err
}

func TestPortfolioServiceChainBalancesOverrideIndexer(t *testing.T) {
	trade := testTrade()
	trade.Market.CollateralToken = "0xwxdai"

	key := domain.BalanceKey{ConditionID: "0xcond", OutcomeIndex: 0}
	trades := &fakeTradeSource{trades: []domain.TradeEvent{trade}}
	balances := &fakeBalanceSource{balances: map[domain.BalanceKey]float64{key: 6}}
	verifier := &fakeVerifier{balances: map[domain.BalanceKey]float64{key: 5}}

	svc := NewPortfolioService(testPortfolioConfig(), trades, balances, verifier, &fakeSnapshotStore{}, newFakeCache(), nil, newFakeBus(), testLogger())

	view, err := svc.RunCycle(context.Background(), time.Now().UTC())
	require.NoError(t, err)

	require.Equal(t, "0xwxdai", verifier.gotCollateral)
	require.Equal(t, []domain.BalanceKey{key}, verifier.gotKeys)

	require.Len(t, view.Positions, 1)
	require.InDelta(t, 5.0, view.Positions[0].Size, 1e-9)
}

func TestPortfolioServiceVerifierFailureKeepsIndexerBalances(t *testing.T) {
	trade := testTrade()
	trade.Market.CollateralToken = "0xwxdai"

	key := domain.BalanceKey{ConditionID: "0xcond", OutcomeIndex: 0}
	trades := &fakeTradeSource{trades: []domain.TradeEvent{trade}}
	balances := &fakeBalanceSource{balances: map[domain.BalanceKey]float64{key: 6}}
	verifier := &fakeVerifier{err: errors.New("rpc timeout")}

	svc := NewPortfolioService(testPortfolioConfig(), trades, balances, verifier, &fakeSnapshotStore{}, newFakeCache(), nil, newFakeBus(), testLogger())

	view, err := svc.RunCycle(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, view.Positions, 1)
	require.InDelta(t, 6.0, view.Positions[0].Size, 1e-9)
}
