// Package conditional queries the conditional-tokens subgraph for a wallet's
// authoritative outcome-token balances.
package conditional

import (
	"context"
	"encoding/json"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/supafund/supafund-engine/internal/domain"
	"github.com/supafund/supafund-engine/internal/platform/subgraph"
)

const maxPositions = 200

// Client fetches held-token balances from the conditional-tokens subgraph.
type Client struct {
	gql *subgraph.Client
}

// NewClient creates a client for the given conditional-tokens subgraph
// endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{gql: subgraph.NewClient(endpoint, apiKey)}
}

type userPositionEnvelope struct {
	ID             string `json:"id"`
	Balance        string `json:"balance"`
	WrappedBalance string `json:"wrappedBalance"`
	Position       *struct {
		ID           string   `json:"id"`
		ConditionIDs []string `json:"conditionIds"`
		IndexSets    []string `json:"indexSets"`
	} `json:"position"`
}

// FetchUserBalances returns the wallet's nonzero outcome-token balances keyed
// by (condition id, outcome index). Positions whose index set does not map to
// a single outcome slot are skipped; they belong to combined positions the
// engine does not track.
func (c *Client) FetchUserBalances(ctx context.Context, wallet string) (map[domain.BalanceKey]float64, error) {
	query := `
		query UserBalances($user: ID!, $first: Int!) {
			user(id: $user) {
				userPositions(where: { balance_gt: "0" }, first: $first) {
					id
					balance
					wrappedBalance
					position {
						id
						conditionIds
						indexSets
					}
				}
			}
		}
	`

	variables := map[string]any{
		"user":  strings.ToLower(wallet),
		"first": maxPositions,
	}

	respData, err := c.gql.Query(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("conditional: fetch user balances: %w", err)
	}

	var result struct {
		User *struct {
			UserPositions []userPositionEnvelope `json:"userPositions"`
		} `json:"user"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("conditional: decode user balances: %w", err)
	}

	balances := make(map[domain.BalanceKey]float64)
	if result.User == nil {
		// Wallet has never held a position; an empty table is a valid answer.
		return balances, nil
	}

	for i, raw := range result.User.UserPositions {
		if raw.Position == nil || len(raw.Position.ConditionIDs) == 0 {
			return nil, fmt.Errorf("conditional: position %d missing condition ids: %w", i, domain.ErrSchemaMismatch)
		}

		outcomeIndex, ok := outcomeIndexFromIndexSet(firstOf(raw.Position.IndexSets))
		if !ok {
			continue
		}

		key := domain.BalanceKey{
			ConditionID:  strings.ToLower(raw.Position.ConditionIDs[0]),
			OutcomeIndex: outcomeIndex,
		}
		balances[key] += domain.FromWei(raw.Balance) + domain.FromWei(raw.WrappedBalance)
	}
	return balances, nil
}

// outcomeIndexFromIndexSet maps a conditional-tokens index set to the single
// outcome slot it covers. Index sets are bitmasks; only power-of-two sets
// identify one outcome.
func outcomeIndexFromIndexSet(indexSet string) (int, bool) {
	if indexSet == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(indexSet, 10, 64)
	if err != nil || n == 0 || n&(n-1) != 0 {
		return 0, false
	}
	return bits.TrailingZeros64(n), true
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
