package domain

// ActivityType labels recent-activity rows for the UI.
type ActivityType string

const (
	ActivityPositionOpened ActivityType = "POSITION_OPENED"
	ActivityPositionClosed ActivityType = "POSITION_CLOSED"
)

// ProcessedActivity is one recent buy/sell entry in the activity feed.
type ProcessedActivity struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Timestamp   string       `json:"timestamp"` // human relative, e.g. "5m ago"
	PnL         *float64     `json:"pnl,omitempty"`
}

// ProcessedOpportunity is one open market ranked into the opportunities view.
type ProcessedOpportunity struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MarketLeader string `json:"marketLeader"` // "62.5% YES" or "No liquidity"
	Category     string `json:"category"`
	ExpiresIn    string `json:"expiresIn"`
}

// TradeSummary carries the per-trade slice of the replay that the activity
// formatter needs: the realized P&L this fill contributed and its effective
// per-token price.
type TradeSummary struct {
	TradeID     string
	RealizedPnL float64
	Price       float64
	Tokens      float64
	Fee         float64
	Side        TradeSide
	OutcomeName string
	MarketTitle string
	MarketID    string
	Timestamp   int64
}
