package domain

// TradeSide distinguishes buy fills from sell fills.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "Buy"
	TradeSideSell TradeSide = "Sell"
)

// TradeEvent is one immutable buy/sell fill from the trade subgraph. Amount
// fields hold 18-decimal fixed-point integer strings exactly as the indexer
// returns them; conversion to monetary units happens via FromWei at
// aggregation time so that malformed values degrade to zero in one place.
type TradeEvent struct {
	ID                string
	MarketID          string
	OutcomeIndex      int
	Side              TradeSide
	CollateralAmount  string // wei string, 18 decimals
	FeeAmount         string // wei string, 18 decimals
	OutcomeTokens     string // wei string, 18 decimals
	CreationTimestamp int64  // unix seconds
	TxHash            string

	// Denormalized market metadata snapshotted by the indexer at event time.
	Market MarketSnapshot
}

// MarketSnapshot is the fixed-product-market-maker metadata attached to a
// trade or returned by the open-markets query.
type MarketSnapshot struct {
	ID                  string
	Title               string
	Outcomes            []string
	MarginalPrices      []string // decimal strings in [0,1], one per outcome
	Category            string
	CollateralToken     string
	ConditionID         string
	CreationTimestamp   int64
	OpeningTimestamp    int64 // 0 when unknown
	ResolutionTimestamp int64 // 0 when unresolved
}

// Resolved reports whether the market has a resolution timestamp at or
// before now (unix seconds).
func (m MarketSnapshot) Resolved(now int64) bool {
	return m.ResolutionTimestamp > 0 && m.ResolutionTimestamp <= now
}

// BalanceKey identifies one outcome slot of a condition for balance lookups.
// ConditionID is stored lowercased.
type BalanceKey struct {
	ConditionID  string
	OutcomeIndex int
}

// CollateralMeta describes the collateral token a market settles in.
type CollateralMeta struct {
	Symbol    string
	USDPegged bool
}
