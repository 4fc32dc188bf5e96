package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/supafund/supafund-engine/internal/domain"
)

func wei(v float64) string {
	return decimal.NewFromFloat(v).Shift(18).String()
}

func testMarket() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		ID:             "0xmarket",
		Title:          "Will project Alpha ship by Q4?",
		Outcomes:       []string{"Yes", "No"},
		MarginalPrices: []string{"0.55", "0.45"},
		Category:       "Technology",
		ConditionID:    "0xCOND",
	}
}

func buy(id string, ts int64, tokens, collateral, fee float64) domain.TradeEvent {
	return domain.TradeEvent{
		ID:                id,
		MarketID:          "0xmarket",
		OutcomeIndex:      0,
		Side:              domain.TradeSideBuy,
		CollateralAmount:  wei(collateral),
		FeeAmount:         wei(fee),
		OutcomeTokens:     wei(tokens),
		CreationTimestamp: ts,
		Market:            testMarket(),
	}
}

func sell(id string, ts int64, tokens, collateral, fee float64) domain.TradeEvent {
	ev := buy(id, ts, tokens, collateral, fee)
	ev.Side = domain.TradeSideSell
	return ev
}

func TestBuildAnalyticsBuyThenPartialSell(t *testing.T) {
	now := time.Unix(2000, 0)
	trades := []domain.TradeEvent{
		buy("t1", 1000, 10, 5.0, 0.1),
		sell("t2", 1100, 4, 3.0, 0.05),
	}

	analytics := BuildAnalytics(trades, now, OversellZeroCost)
	require.Len(t, analytics.Aggregates, 1)

	agg := analytics.Aggregates[domain.AggregateKey("0xmarket", 0)]
	require.NotNil(t, agg)
	require.InDelta(t, 6.0, agg.NetTokens, 1e-9)
	require.InDelta(t, 3.06, agg.CostBasis, 1e-9)
	require.InDelta(t, 0.91, agg.RealizedPnL, 1e-9)
	require.Equal(t, 1, agg.ClosedTrades)
	require.Equal(t, 1, agg.WinTrades)
	require.InDelta(t, 0.15, agg.TotalFees, 1e-9)

	summary := analytics.PerTrade["t2"]
	require.InDelta(t, 0.91, summary.RealizedPnL, 1e-9)
	require.InDelta(t, 2.95/4, summary.Price, 1e-9)
}

func TestBuildAnalyticsFullCloseConservation(t *testing.T) {
	now := time.Unix(5000, 0)
	trades := []domain.TradeEvent{
		buy("t1", 1000, 10, 5.0, 0.1),
		sell("t2", 1100, 10, 7.0, 0.2),
	}

	analytics := BuildAnalytics(trades, now, OversellZeroCost)
	agg := analytics.Aggregates[domain.AggregateKey("0xmarket", 0)]
	require.NotNil(t, agg)

	// p - (c + f) = 6.8 - 5.1
	require.InDelta(t, 1.7, agg.RealizedPnL, 1e-9)
	require.Zero(t, agg.NetTokens)
	require.Zero(t, agg.CostBasis)
}

func TestBuildAnalyticsCostBasisInvariant(t *testing.T) {
	now := time.Unix(10000, 0)
	trades := []domain.TradeEvent{
		buy("t1", 1000, 3, 1.5, 0.01),
		sell("t2", 1100, 1, 0.6, 0.01),
		buy("t3", 1200, 2, 1.2, 0.02),
		sell("t4", 1300, 4, 2.4, 0.03),
		sell("t5", 1400, 2, 1.0, 0.01), // oversell
		buy("t6", 1500, 1, 0.4, 0.0),
	}

	analytics := BuildAnalytics(trades, now, OversellZeroCost)
	for _, agg := range analytics.Aggregates {
		require.GreaterOrEqual(t, agg.CostBasis, 0.0)
		if agg.NetTokens <= domain.DustEpsilon && agg.NetTokens >= -domain.DustEpsilon {
			require.Zero(t, agg.CostBasis)
		}
	}
}

func TestBuildAnalyticsIdempotent(t *testing.T) {
	now := time.Unix(9999, 0)
	trades := []domain.TradeEvent{
		buy("t1", 1000, 10, 5.0, 0.1),
		sell("t2", 1100, 4, 3.0, 0.05),
		buy("t3", 1200, 2, 1.5, 0.02),
	}

	first := BuildAnalytics(trades, now, OversellZeroCost)
	second := BuildAnalytics(trades, now, OversellZeroCost)
	require.Equal(t, first.Aggregates, second.Aggregates)
	require.Equal(t, first.PerTrade, second.PerTrade)
}

func TestBuildAnalyticsInputOrderIrrelevant(t *testing.T) {
	now := time.Unix(9999, 0)
	ordered := []domain.TradeEvent{
		buy("t1", 1000, 10, 5.0, 0.1),
		sell("t2", 1100, 4, 3.0, 0.05),
	}
	reversed := []domain.TradeEvent{ordered[1], ordered[0]}

	a := BuildAnalytics(ordered, now, OversellZeroCost)
	b := BuildAnalytics(reversed, now, OversellZeroCost)
	require.Equal(t, a.Aggregates, b.Aggregates)
}

func TestBuildAnalyticsMalformedAmounts(t *testing.T) {
	now := time.Unix(2000, 0)
	trade := buy("t1", 1000, 10, 5.0, 0.1)
	trade.CollateralAmount = "abc"

	require.NotPanics(t, func() {
		analytics := BuildAnalytics([]domain.TradeEvent{trade}, now, OversellZeroCost)
		agg := analytics.Aggregates[domain.AggregateKey("0xmarket", 0)]
		require.NotNil(t, agg)
		// Malformed collateral contributes 0; only the fee lands in the basis.
		require.InDelta(t, 0.1, agg.CostBasis, 1e-9)
		require.InDelta(t, 10.0, agg.NetTokens, 1e-9)
	})
}

func TestBuildAnalyticsOversellPolicies(t *testing.T) {
	now := time.Unix(2000, 0)
	trades := []domain.TradeEvent{
		buy("t1", 1000, 2, 1.0, 0.0),
		sell("t2", 1100, 5, 2.5, 0.0), // 3 more than held
	}

	zeroCost := BuildAnalytics(trades, now, OversellZeroCost)
	agg := zeroCost.Aggregates[domain.AggregateKey("0xmarket", 0)]
	require.NotNil(t, agg)
	// sold 2 at ppt 0.5 against basis 1.0, plus 3 excess at zero cost; the
	// depleted balance snaps to zero rather than going negative.
	require.InDelta(t, 1.5, agg.RealizedPnL, 1e-9)
	require.Zero(t, agg.NetTokens)
	require.Zero(t, agg.CostBasis)

	ignored := BuildAnalytics(trades, now, OversellIgnore)
	agg = ignored.Aggregates[domain.AggregateKey("0xmarket", 0)]
	require.NotNil(t, agg)
	require.InDelta(t, 0.0, agg.RealizedPnL, 1e-9)
	require.Zero(t, agg.NetTokens)
	require.Zero(t, agg.CostBasis)
}

func TestBuildAnalyticsReentryAfterOversell(t *testing.T) {
	now := time.Unix(3000, 0)
	trades := []domain.TradeEvent{
		buy("t1", 1000, 2, 1.0, 0.0),
		sell("t2", 1100, 5, 2.5, 0.0), // 3 more than held
		buy("t3", 1200, 10, 5.0, 0.0),
	}

	analytics := BuildAnalytics(trades, now, OversellZeroCost)
	agg := analytics.Aggregates[domain.AggregateKey("0xmarket", 0)]
	require.NotNil(t, agg)

	// The oversold position re-opens at exactly the new buy, not the buy
	// minus a phantom deficit.
	require.InDelta(t, 10.0, agg.NetTokens, 1e-9)
	require.InDelta(t, 5.0, agg.CostBasis, 1e-9)
	require.InDelta(t, 0.5, agg.CostBasis/agg.NetTokens, 1e-9)
}

func TestBuildAnalyticsWindowedRealizedPnL(t *testing.T) {
	now := time.Unix(100*24*3600, 0)
	oldTs := now.Add(-40 * 24 * time.Hour).Unix()
	monthTs := now.Add(-20 * 24 * time.Hour).Unix()
	weekTs := now.Add(-2 * 24 * time.Hour).Unix()

	trades := []domain.TradeEvent{
		buy("t1", oldTs-10, 30, 15.0, 0.0),
		sell("t2", oldTs, 10, 6.0, 0.0),   // outside both windows
		sell("t3", monthTs, 10, 6.0, 0.0), // monthly only
		sell("t4", weekTs, 10, 6.0, 0.0),  // weekly and monthly
	}

	analytics := BuildAnalytics(trades, now, OversellZeroCost)
	agg := analytics.Aggregates[domain.AggregateKey("0xmarket", 0)]
	require.NotNil(t, agg)
	require.InDelta(t, 3.0, agg.RealizedPnL, 1e-9)
	require.InDelta(t, 2.0, agg.RealizedPnLMonthly, 1e-9)
	require.InDelta(t, 1.0, agg.RealizedPnLWeekly, 1e-9)
}

func TestBuildAnalyticsDustSnap(t *testing.T) {
	now := time.Unix(2000, 0)
	trades := []domain.TradeEvent{
		buy("t1", 1000, 10, 5.0, 0.0),
		sell("t2", 1100, 9.9999999, 5.0, 0.0),
	}

	analytics := BuildAnalytics(trades, now, OversellZeroCost)
	agg := analytics.Aggregates[domain.AggregateKey("0xmarket", 0)]
	require.NotNil(t, agg)
	require.Zero(t, agg.NetTokens)
	require.Zero(t, agg.CostBasis)
}

func TestBuildAnalyticsMetadataFollowsLatestTrade(t *testing.T) {
	now := time.Unix(5000, 0)
	first := buy("t1", 1000, 1, 0.5, 0.0)
	second := buy("t2", 2000, 1, 0.5, 0.0)
	second.Market.Title = "Renamed market"
	second.Market.MarginalPrices = []string{"0.70", "0.30"}

	analytics := BuildAnalytics([]domain.TradeEvent{second, first}, now, OversellZeroCost)
	agg := analytics.Aggregates[domain.AggregateKey("0xmarket", 0)]
	require.NotNil(t, agg)
	require.Equal(t, "Renamed market", agg.MarketTitle)
	require.InDelta(t, 0.70, agg.CurrentPrice, 1e-9)
	require.Equal(t, "0xcond", agg.ConditionID)
}
