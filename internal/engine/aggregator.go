// Package engine implements the position and rewards accounting core: trade
// replay with weighted-average inventory costing, portfolio valuation,
// activity/opportunity projections, and the staking reward streak. Every
// function here is a pure function of its inputs plus an explicit "now", so
// a refresh cycle is idempotent and the whole engine is testable without
// I/O.
package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/supafund/supafund-engine/internal/domain"
)

// OversellPolicy decides how a sell that exceeds currently-held inventory is
// treated. Indexer replay order is not contractually guaranteed, so this is
// configuration rather than a hard-coded assumption.
type OversellPolicy string

const (
	// OversellZeroCost books the excess as zero-cost proceeds (observed
	// behavior of the original system); the resulting balance is snapped
	// to zero so a later buy restarts the position from a clean slate.
	OversellZeroCost OversellPolicy = "zero_cost"
	// OversellIgnore drops the excess entirely.
	OversellIgnore OversellPolicy = "ignore"
)

// Valid reports whether p is a known policy.
func (p OversellPolicy) Valid() bool {
	return p == OversellZeroCost || p == OversellIgnore
}

const (
	weekWindow  = 7 * 24 * time.Hour
	monthWindow = 30 * 24 * time.Hour
)

// Analytics is the result of one full trade replay: per-key aggregates plus
// the per-trade summaries the activity formatter consumes.
type Analytics struct {
	Aggregates map[string]*domain.PositionAggregate
	PerTrade   map[string]domain.TradeSummary
}

// BuildAnalytics replays the full trade history into inventory-costed
// position aggregates. Input order is irrelevant: trades are sorted
// ascending by creation timestamp before replay. The 7-day and 30-day
// realized P&L windows are anchored at now, not at trade time.
func BuildAnalytics(trades []domain.TradeEvent, now time.Time, policy OversellPolicy) Analytics {
	out := Analytics{
		Aggregates: make(map[string]*domain.PositionAggregate),
		PerTrade:   make(map[string]domain.TradeSummary),
	}
	if len(trades) == 0 {
		return out
	}
	if !policy.Valid() {
		policy = OversellZeroCost
	}

	sorted := make([]domain.TradeEvent, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreationTimestamp < sorted[j].CreationTimestamp
	})

	weekAgo := now.Add(-weekWindow).Unix()
	monthAgo := now.Add(-monthWindow).Unix()

	for _, trade := range sorted {
		key := domain.AggregateKey(trade.MarketID, trade.OutcomeIndex)
		tokens := domain.FromWei(trade.OutcomeTokens)
		collateral := domain.FromWei(trade.CollateralAmount)
		fee := domain.FromWei(trade.FeeAmount)

		outcomeName := SanitizeOutcomeLabel(outcomeAt(trade.Market.Outcomes, trade.OutcomeIndex), trade.OutcomeIndex)
		marketTitle := SanitizeMarketTitle(trade.Market.Title)

		agg, ok := out.Aggregates[key]
		if !ok {
			agg = &domain.PositionAggregate{
				MarketID:            trade.MarketID,
				OutcomeIndex:        trade.OutcomeIndex,
				Category:            categoryOrDefault(trade.Market.Category),
				ConditionID:         lowerOrEmpty(trade.Market.ConditionID),
				CollateralToken:     trade.Market.CollateralToken,
				OpeningTimestamp:    trade.Market.OpeningTimestamp,
				ResolutionTimestamp: trade.Market.ResolutionTimestamp,
				LastTradeTimestamp:  trade.CreationTimestamp,
			}
			out.Aggregates[key] = agg
		}

		// Metadata follows the most recent trade's snapshot for the key.
		agg.MarketTitle = marketTitle
		agg.OutcomeName = outcomeName
		if trade.Market.CollateralToken != "" {
			agg.CollateralToken = trade.Market.CollateralToken
		}
		if price, ok := domain.ParsePrice(priceAt(trade.Market.MarginalPrices, trade.OutcomeIndex)); ok {
			agg.CurrentPrice = price
		}
		if trade.CreationTimestamp > agg.LastTradeTimestamp {
			agg.LastTradeTimestamp = trade.CreationTimestamp
		}
		agg.TotalFees += fee

		var realized float64
		if tokens > 0 {
			switch trade.Side {
			case domain.TradeSideBuy:
				agg.NetTokens += tokens
				agg.CostBasis += collateral + fee

			case domain.TradeSideSell:
				realized = applySell(agg, tokens, collateral, fee, policy)
				agg.RealizedPnL += realized
				agg.ClosedTrades++
				if trade.CreationTimestamp >= weekAgo {
					agg.RealizedPnLWeekly += realized
				}
				if trade.CreationTimestamp >= monthAgo {
					agg.RealizedPnLMonthly += realized
				}
				if realized > 0 {
					agg.WinTrades++
				}
			}
		}

		out.PerTrade[trade.ID] = domain.TradeSummary{
			TradeID:     trade.ID,
			RealizedPnL: realized,
			Price:       perTokenPrice(trade.Side, tokens, collateral, fee),
			Tokens:      tokens,
			Fee:         fee,
			Side:        trade.Side,
			OutcomeName: agg.OutcomeName,
			MarketTitle: agg.MarketTitle,
			MarketID:    agg.MarketID,
			Timestamp:   trade.CreationTimestamp,
		}
	}

	for _, agg := range out.Aggregates {
		snapDust(agg)
	}

	return out
}

// applySell closes sold tokens against existing inventory at average cost
// and returns the realized P&L contribution of this fill.
func applySell(agg *domain.PositionAggregate, tokens, collateral, fee float64, policy OversellPolicy) float64 {
	netProceeds := math.Max(collateral-fee, 0)
	var pricePerToken float64
	if tokens > 0 {
		pricePerToken = netProceeds / tokens
	}

	held := agg.NetTokens
	basis := agg.CostBasis

	var realized float64
	sold := math.Min(tokens, math.Max(held, 0))
	if sold > 0 && held > 0 {
		avgCost := basis / held
		costPortion := avgCost * sold
		realized += pricePerToken*sold - costPortion
		agg.NetTokens = held - sold
		agg.CostBasis = math.Max(basis-costPortion, 0)
	}

	// Selling more than held means the indexer fed us fills out of order or
	// incompletely; the excess has no inventory to close against. The
	// depleted balance snaps to exactly zero, never negative, so inventory
	// never understates a subsequent buy.
	if remaining := tokens - sold; remaining > 0 && policy == OversellZeroCost {
		realized += pricePerToken * remaining
		agg.NetTokens -= remaining
		if agg.NetTokens <= domain.DustEpsilon {
			agg.NetTokens = 0
			agg.CostBasis = 0
		}
	}

	return realized
}

// snapDust zeroes both net tokens and cost basis when holdings are within
// the dust epsilon of zero, honoring the cost-basis invariant.
func snapDust(agg *domain.PositionAggregate) {
	if agg.NetTokens != 0 && math.Abs(agg.NetTokens) <= domain.DustEpsilon {
		agg.NetTokens = 0
		agg.CostBasis = 0
	}
}

// perTokenPrice is the effective per-token price of a fill: all-in cost for
// buys, net proceeds for sells.
func perTokenPrice(side domain.TradeSide, tokens, collateral, fee float64) float64 {
	if tokens <= 0 {
		return 0
	}
	if side == domain.TradeSideBuy {
		return (collateral + fee) / tokens
	}
	return math.Max(collateral-fee, 0) / tokens
}

func outcomeAt(outcomes []string, idx int) string {
	if idx >= 0 && idx < len(outcomes) {
		return outcomes[idx]
	}
	return ""
}

func priceAt(prices []string, idx int) string {
	if idx >= 0 && idx < len(prices) {
		return prices[idx]
	}
	return ""
}

func categoryOrDefault(category string) string {
	if category == "" {
		return "General"
	}
	return category
}

func lowerOrEmpty(s string) string {
	return strings.ToLower(s)
}
