package domain

import "time"

// PortfolioView is the full output of one successful portfolio refresh
// cycle. It is what the UI endpoints serve and what the last-good cache
// stores; it is overwritten atomically on every successful cycle.
type PortfolioView struct {
	CycleID       string                 `json:"cycleId"`
	Wallet        string                 `json:"wallet"`
	Metrics       ProcessedMetrics       `json:"metrics"`
	Positions     []ProcessedPosition    `json:"positions"`
	Activities    []ProcessedActivity    `json:"activities"`
	Opportunities []ProcessedOpportunity `json:"opportunities"`
	RefreshedAt   time.Time              `json:"refreshedAt"`
}

// RewardsView is the output of one rewards refresh cycle.
type RewardsView struct {
	CycleID     string       `json:"cycleId"`
	Streak      int          `json:"latestRewardStreak"`
	Checkpoints []Checkpoint `json:"checkpoints"`
	RefreshedAt time.Time    `json:"refreshedAt"`
}

// PortfolioSnapshot is the persisted history row written after each
// successful cycle so the UI can chart performance over time. The live
// numbers are always recomputed from the indexers; snapshots are
// write-only history.
type PortfolioSnapshot struct {
	ID           string
	Wallet       string
	Metrics      ProcessedMetrics
	Positions    int
	RewardStreak int
	TakenAt      time.Time
}
