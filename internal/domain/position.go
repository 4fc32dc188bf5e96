package domain

import "fmt"

// DustEpsilon is the token threshold below which holdings are treated as
// exactly zero to absorb floating-point drift from the replay.
const DustEpsilon = 1e-6

// PositionStatus is the display lifecycle of a processed position.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "OPEN"
	PositionStatusClosed  PositionStatus = "CLOSED"
	PositionStatusPending PositionStatus = "PENDING"
)

// Direction is the YES/NO side of an outcome position, inferred from the
// outcome label.
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// PositionAggregate is the replay-derived state for one (market, outcome)
// key. It is rebuilt from the full trade history on every refresh and never
// persisted.
//
// Invariant: CostBasis >= 0, and CostBasis == 0 whenever NetTokens == 0
// (within DustEpsilon).
type PositionAggregate struct {
	MarketID     string
	OutcomeIndex int

	MarketTitle string
	OutcomeName string
	Category    string
	ConditionID string // lowercased, empty when the indexer omitted it

	CollateralToken     string
	OpeningTimestamp    int64
	ResolutionTimestamp int64

	CurrentPrice float64 // last marginal price seen, clamped to [0,1]

	NetTokens          float64
	CostBasis          float64
	RealizedPnL        float64
	RealizedPnLWeekly  float64
	RealizedPnLMonthly float64
	WinTrades          int
	ClosedTrades       int
	TotalFees          float64
	LastTradeTimestamp int64
}

// AggregateKey builds the map key for a (market, outcome) pair.
func AggregateKey(marketID string, outcomeIndex int) string {
	return fmt.Sprintf("%s-%d", marketID, outcomeIndex)
}

// Key returns the aggregation key for this position.
func (a PositionAggregate) Key() string {
	return AggregateKey(a.MarketID, a.OutcomeIndex)
}

// ProcessedPosition is the presentation projection of an aggregate merged
// with an authoritative on-chain balance and live market data.
type ProcessedPosition struct {
	ID            string         `json:"id"`
	Market        string         `json:"market"`
	Direction     Direction      `json:"direction"`
	EntryPrice    float64        `json:"entryPrice"`
	CurrentPrice  float64        `json:"currentPrice"`
	Size          float64        `json:"size"`
	PnL           float64        `json:"pnl"`
	PnLPercentage float64        `json:"pnlPercentage"`
	TimeRemaining string         `json:"timeRemaining"`
	Status        PositionStatus `json:"status"`
	Category      string         `json:"category,omitempty"`
	EntryValue    float64        `json:"entryValue"`
	CurrentValue  float64        `json:"currentValue"`
	Collateral    string         `json:"collateralSymbol"`
	CollateralUSD bool           `json:"collateralIsStable"`
	MarketAddress string         `json:"marketAddress"`
}

// ProcessedMetrics is the portfolio-level scalar rollup recomputed on every
// refresh cycle.
type ProcessedMetrics struct {
	TotalProfitLoss           float64 `json:"totalProfitLoss"`
	TotalProfitLossPercentage float64 `json:"totalProfitLossPercentage"`
	ActivePositions           int     `json:"activePositions"`
	WinRate                   float64 `json:"winRate"`
	WeeklyPerformance         float64 `json:"weeklyPerformance"`
	MonthlyPerformance        float64 `json:"monthlyPerformance"`
}
