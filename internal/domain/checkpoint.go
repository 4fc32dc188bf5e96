package domain

// RawCheckpoint is one staking-epoch close event exactly as the rewards
// subgraph returns it. Numeric fields are decimal strings; Rewards and
// ServiceIDs are parallel arrays (Rewards[i] belongs to ServiceIDs[i]).
type RawCheckpoint struct {
	Epoch            string
	Rewards          []string
	ServiceIDs       []string
	BlockTimestamp   string
	TransactionHash  string
	EpochLength      string
	ContractAddress  string
	AvailableRewards string // optional, empty when absent
}

// Checkpoint is a transformed epoch close for one staking identity: epoch
// boundaries resolved, the identity's reward extracted, and the earned flag
// decided. Canonical order is epoch end descending (most recent first).
type Checkpoint struct {
	Epoch           int64   `json:"epoch"`
	ContractAddress string  `json:"contractAddress"`
	EpochStartTime  int64   `json:"epochStartTime"`
	EpochEndTime    int64   `json:"epochEndTime"`
	EpochLength     int64   `json:"epochLength"`
	Reward          float64 `json:"reward"` // token units (wei / 1e18)
	Earned          bool    `json:"earned"`
	ServiceIDs      []string `json:"serviceIds"`
	TxHash          string  `json:"transactionHash"`
}
