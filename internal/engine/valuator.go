package engine

import (
	"sort"
	"time"

	"github.com/supafund/supafund-engine/internal/domain"
)

// BuildPositions merges replay aggregates with authoritative on-chain
// balances and live market data into display positions.
//
// Balances, when present for a key, are ground truth for tokens held; the
// replay-derived net tokens is the fallback. Positions at or below the dust
// epsilon are omitted entirely.
func BuildPositions(
	aggregates map[string]*domain.PositionAggregate,
	balances map[domain.BalanceKey]float64,
	marketsByCondition map[string]domain.MarketSnapshot,
	now time.Time,
) []domain.ProcessedPosition {
	if len(aggregates) == 0 {
		return nil
	}

	nowUnix := now.Unix()
	out := make([]domain.ProcessedPosition, 0, len(aggregates))

	for _, agg := range aggregates {
		tokensHeld := agg.NetTokens
		if agg.ConditionID != "" {
			if balance, ok := balances[domain.BalanceKey{ConditionID: agg.ConditionID, OutcomeIndex: agg.OutcomeIndex}]; ok {
				tokensHeld = balance
			}
		}
		if tokensHeld <= domain.DustEpsilon {
			continue
		}

		var live domain.MarketSnapshot
		var haveLive bool
		if agg.ConditionID != "" {
			live, haveLive = marketsByCondition[agg.ConditionID]
		}

		resolutionTs := agg.ResolutionTimestamp
		openingTs := agg.OpeningTimestamp
		collateralAddr := agg.CollateralToken
		if haveLive {
			if live.ResolutionTimestamp != 0 {
				resolutionTs = live.ResolutionTimestamp
			}
			if live.OpeningTimestamp != 0 {
				openingTs = live.OpeningTimestamp
			}
			if live.CollateralToken != "" {
				collateralAddr = live.CollateralToken
			}
		}
		collateral := domain.CollateralMetadata(collateralAddr)

		// Cost basis attributable to the tokens actually held, prorated when
		// the authoritative balance disagrees with the replay.
		costBasisForHeld := agg.CostBasis
		if agg.NetTokens > domain.DustEpsilon && tokensHeld > 0 {
			costBasisForHeld = agg.CostBasis * (tokensHeld / agg.NetTokens)
		}

		var entryPrice float64
		if tokensHeld > 0 {
			entryPrice = costBasisForHeld / tokensHeld
		}

		currentPrice := agg.CurrentPrice
		if haveLive {
			if price, ok := domain.ParsePrice(priceAt(live.MarginalPrices, agg.OutcomeIndex)); ok {
				currentPrice = price
			}
		}

		unrealized := tokensHeld * (currentPrice - entryPrice)
		totalPnL := agg.RealizedPnL + unrealized
		var pnlPct float64
		if costBasisForHeld > 0 {
			pnlPct = totalPnL / costBasisForHeld * 100
		}

		resolved := resolutionTs != 0 && resolutionTs <= nowUnix
		status := domain.PositionStatusOpen
		timeRemaining := ""
		if resolved {
			status = domain.PositionStatusClosed
			timeRemaining = "Resolved"
		} else {
			expiry := openingTs
			if expiry == 0 {
				expiry = resolutionTs
			}
			timeRemaining = FormatTimeUntil(expiry, nowUnix)
		}

		title := agg.MarketTitle
		if haveLive && live.Title != "" {
			title = live.Title
		}
		category := agg.Category
		if haveLive && live.Category != "" {
			category = live.Category
		}

		out = append(out, domain.ProcessedPosition{
			ID:            agg.Key(),
			Market:        TruncateText(SanitizeMarketTitle(title), positionTitleLen),
			Direction:     InferDirection(agg.OutcomeName, agg.OutcomeIndex),
			EntryPrice:    domain.Round(entryPrice, 2),
			CurrentPrice:  domain.Round(currentPrice, 2),
			Size:          domain.Round(tokensHeld, 4),
			PnL:           domain.Round(totalPnL, 2),
			PnLPercentage: domain.Round(pnlPct, 2),
			TimeRemaining: timeRemaining,
			Status:        status,
			Category:      category,
			EntryValue:    domain.Round(costBasisForHeld, 2),
			CurrentValue:  domain.Round(tokensHeld*currentPrice, 2),
			Collateral:    collateral.Symbol,
			CollateralUSD: collateral.USDPegged,
			MarketAddress: agg.MarketID,
		})
	}

	// OPEN before CLOSED, then biggest P&L first within each group.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status == domain.PositionStatusOpen
		}
		return out[i].PnL > out[j].PnL
	})

	return out
}

// BuildMetrics rolls the replay aggregates up into portfolio-level scalars.
// Unrealized P&L only counts aggregates still holding tokens above dust, and
// every percentage is 0 (never NaN or Inf) when its base is 0.
func BuildMetrics(aggregates map[string]*domain.PositionAggregate, now time.Time) domain.ProcessedMetrics {
	if len(aggregates) == 0 {
		return domain.ProcessedMetrics{}
	}

	nowUnix := now.Unix()

	var (
		totalCostBasis    float64
		totalCurrentValue float64
		realizedPnL       float64
		weeklyPnL         float64
		monthlyPnL        float64
		wins              int
		closedTrades      int
		activePositions   int
	)

	for _, agg := range aggregates {
		realizedPnL += agg.RealizedPnL
		weeklyPnL += agg.RealizedPnLWeekly
		monthlyPnL += agg.RealizedPnLMonthly
		wins += agg.WinTrades
		closedTrades += agg.ClosedTrades

		if agg.NetTokens > domain.DustEpsilon {
			totalCostBasis += agg.CostBasis
			totalCurrentValue += agg.NetTokens * agg.CurrentPrice
			if agg.ResolutionTimestamp == 0 || agg.ResolutionTimestamp > nowUnix {
				activePositions++
			}
		}
	}

	totalPnL := realizedPnL + (totalCurrentValue - totalCostBasis)

	var totalPct, winRate, weeklyPerf, monthlyPerf float64
	if totalCostBasis > 0 {
		totalPct = totalPnL / totalCostBasis * 100
		weeklyPerf = weeklyPnL / totalCostBasis * 100
		monthlyPerf = monthlyPnL / totalCostBasis * 100
	}
	if closedTrades > 0 {
		winRate = float64(wins) / float64(closedTrades) * 100
	}

	return domain.ProcessedMetrics{
		TotalProfitLoss:           domain.Round(totalPnL, 2),
		TotalProfitLossPercentage: domain.Round(totalPct, 2),
		ActivePositions:           activePositions,
		WinRate:                   domain.Round(winRate, 2),
		WeeklyPerformance:         domain.Round(weeklyPerf, 2),
		MonthlyPerformance:        domain.Round(monthlyPerf, 2),
	}
}
