// Package staking queries the staking-rewards subgraph for epoch checkpoint
// history.
package staking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/supafund/supafund-engine/internal/domain"
	"github.com/supafund/supafund-engine/internal/platform/subgraph"
)

const maxCheckpoints = 1000

// Client fetches staking-epoch checkpoints from the rewards subgraph.
type Client struct {
	gql *subgraph.Client
}

// NewClient creates a client for the given rewards subgraph endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{gql: subgraph.NewClient(endpoint, apiKey)}
}

type checkpointEnvelope struct {
	Epoch            string   `json:"epoch"`
	Rewards          []string `json:"rewards"`
	ServiceIDs       []string `json:"serviceIds"`
	BlockTimestamp   string   `json:"blockTimestamp"`
	TransactionHash  string   `json:"transactionHash"`
	EpochLength      string   `json:"epochLength"`
	ContractAddress  string   `json:"contractAddress"`
	AvailableRewards *string  `json:"availableRewards"`
}

// FetchCheckpoints returns epoch-close checkpoints for the given staking
// contract addresses, newest epoch first. One malformed checkpoint rejects
// the whole batch.
func (c *Client) FetchCheckpoints(ctx context.Context, contracts []string) ([]domain.RawCheckpoint, error) {
	if len(contracts) == 0 {
		return nil, nil
	}

	query := `
		query Checkpoints($contracts: [String!]!, $first: Int!) {
			checkpoints(
				where: { contractAddress_in: $contracts }
				orderBy: epoch
				orderDirection: desc
				first: $first
			) {
				epoch
				rewards
				serviceIds
				blockTimestamp
				transactionHash
				epochLength
				contractAddress
				availableRewards
			}
		}
	`

	lowered := make([]string, 0, len(contracts))
	for _, addr := range contracts {
		lowered = append(lowered, strings.ToLower(addr))
	}
	variables := map[string]any{
		"contracts": lowered,
		"first":     maxCheckpoints,
	}

	respData, err := c.gql.Query(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("staking: fetch checkpoints: %w", err)
	}

	var result struct {
		Checkpoints []checkpointEnvelope `json:"checkpoints"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("staking: decode checkpoints: %w", err)
	}

	checkpoints := make([]domain.RawCheckpoint, 0, len(result.Checkpoints))
	for i, raw := range result.Checkpoints {
		cp, err := validateCheckpoint(raw)
		if err != nil {
			return nil, fmt.Errorf("staking: checkpoint %d: %w", i, err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

func validateCheckpoint(raw checkpointEnvelope) (domain.RawCheckpoint, error) {
	if raw.Epoch == "" {
		return domain.RawCheckpoint{}, fmt.Errorf("missing epoch: %w", domain.ErrSchemaMismatch)
	}
	if raw.ContractAddress == "" {
		return domain.RawCheckpoint{}, fmt.Errorf("missing contract address: %w", domain.ErrSchemaMismatch)
	}
	if domain.ParseTimestamp(raw.BlockTimestamp) == 0 {
		return domain.RawCheckpoint{}, fmt.Errorf("bad block timestamp %q: %w", raw.BlockTimestamp, domain.ErrSchemaMismatch)
	}
	if len(raw.Rewards) != len(raw.ServiceIDs) {
		return domain.RawCheckpoint{}, fmt.Errorf("rewards/serviceIds length mismatch: %w", domain.ErrSchemaMismatch)
	}

	available := ""
	if raw.AvailableRewards != nil {
		available = *raw.AvailableRewards
	}

	return domain.RawCheckpoint{
		Epoch:            raw.Epoch,
		Rewards:          raw.Rewards,
		ServiceIDs:       raw.ServiceIDs,
		BlockTimestamp:   raw.BlockTimestamp,
		TransactionHash:  raw.TransactionHash,
		EpochLength:      raw.EpochLength,
		ContractAddress:  raw.ContractAddress,
		AvailableRewards: available,
	}, nil
}
