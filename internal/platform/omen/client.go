// Package omen queries the Omen fixed-product-market-maker subgraph for a
// wallet's trade history and for currently-open markets.
package omen

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supafund/supafund-engine/internal/domain"
	"github.com/supafund/supafund-engine/internal/platform/subgraph"
)

const (
	maxTrades  = 1000
	maxMarkets = 20

	// openMarketWindow bounds the open-markets query to recently created
	// markets so the opportunities view stays fresh.
	openMarketWindow = 30 * 24 * time.Hour
)

// Client fetches trades and market snapshots from the Omen subgraph.
type Client struct {
	gql *subgraph.Client
}

// NewClient creates a client for the given Omen subgraph endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{gql: subgraph.NewClient(endpoint, apiKey)}
}

// fpmmEnvelope is the denormalized market snapshot the subgraph attaches to
// trades and returns from the open-markets query.
type fpmmEnvelope struct {
	ID                         string   `json:"id"`
	Title                      string   `json:"title"`
	Outcomes                   []string `json:"outcomes"`
	OutcomeTokenMarginalPrices []string `json:"outcomeTokenMarginalPrices"`
	Category                   string   `json:"category"`
	CollateralToken            string   `json:"collateralToken"`
	CreationTimestamp          string   `json:"creationTimestamp"`
	OpeningTimestamp           string   `json:"openingTimestamp"`
	ResolutionTimestamp        string   `json:"resolutionTimestamp"`
	Condition                  *struct {
		ID string `json:"id"`
	} `json:"condition"`
	Question *struct {
		Category string `json:"category"`
	} `json:"question"`
}

type tradeEnvelope struct {
	ID                  string       `json:"id"`
	Type                string       `json:"type"`
	CollateralAmount    string       `json:"collateralAmount"`
	FeeAmount           string       `json:"feeAmount"`
	OutcomeIndex        string       `json:"outcomeIndex"`
	OutcomeTokensTraded string       `json:"outcomeTokensTraded"`
	CreationTimestamp   string       `json:"creationTimestamp"`
	TransactionHash     string       `json:"transactionHash"`
	FPMM                fpmmEnvelope `json:"fpmm"`
}

// FetchUserTrades returns the wallet's full buy/sell fill history. The
// response is validated field-by-field; one malformed record rejects the
// whole batch so a half-decoded history never reaches aggregation.
func (c *Client) FetchUserTrades(ctx context.Context, wallet string) ([]domain.TradeEvent, error) {
	query := `
		query UserTrades($creator: String!, $first: Int!) {
			fpmmTrades(
				where: { creator: $creator }
				orderBy: creationTimestamp
				orderDirection: asc
				first: $first
			) {
				id
				type
				collateralAmount
				feeAmount
				outcomeIndex
				outcomeTokensTraded
				creationTimestamp
				transactionHash
				fpmm {
					id
					title
					outcomes
					outcomeTokenMarginalPrices
					category
					collateralToken
					creationTimestamp
					openingTimestamp
					resolutionTimestamp
					condition {
						id
					}
					question {
						category
					}
				}
			}
		}
	`

	variables := map[string]any{
		"creator": strings.ToLower(wallet),
		"first":   maxTrades,
	}

	respData, err := c.gql.Query(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("omen: fetch user trades: %w", err)
	}

	var result struct {
		FpmmTrades []tradeEnvelope `json:"fpmmTrades"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("omen: decode user trades: %w", err)
	}

	trades := make([]domain.TradeEvent, 0, len(result.FpmmTrades))
	for i, raw := range result.FpmmTrades {
		trade, err := validateTrade(raw)
		if err != nil {
			return nil, fmt.Errorf("omen: trade %d (%s): %w", i, raw.ID, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// FetchOpenMarkets returns unresolved markets created by the given creator
// address within the open-market window.
func (c *Client) FetchOpenMarkets(ctx context.Context, creator string, now time.Time) ([]domain.MarketSnapshot, error) {
	query := `
		query OpenMarkets($creator: String!, $createdAfter: BigInt!, $first: Int!) {
			fixedProductMarketMakers(
				where: {
					creator: $creator
					resolutionTimestamp: null
					creationTimestamp_gt: $createdAfter
				}
				orderBy: creationTimestamp
				orderDirection: desc
				first: $first
			) {
				id
				title
				outcomes
				outcomeTokenMarginalPrices
				category
				collateralToken
				creationTimestamp
				openingTimestamp
				resolutionTimestamp
				condition {
					id
				}
				question {
					category
				}
			}
		}
	`

	createdAfter := now.Add(-openMarketWindow).Unix()
	variables := map[string]any{
		"creator":      strings.ToLower(creator),
		"createdAfter": strconv.FormatInt(createdAfter, 10),
		"first":        maxMarkets,
	}

	respData, err := c.gql.Query(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("omen: fetch open markets: %w", err)
	}

	var result struct {
		FixedProductMarketMakers []fpmmEnvelope `json:"fixedProductMarketMakers"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("omen: decode open markets: %w", err)
	}

	markets := make([]domain.MarketSnapshot, 0, len(result.FixedProductMarketMakers))
	for i, raw := range result.FixedProductMarketMakers {
		market, err := validateMarket(raw)
		if err != nil {
			return nil, fmt.Errorf("omen: market %d (%s): %w", i, raw.ID, err)
		}
		markets = append(markets, market)
	}
	return markets, nil
}

// validateTrade checks the structural fields the replay depends on. Amount
// strings are deliberately NOT validated here: malformed amounts degrade to
// zero during conversion instead of rejecting the batch.
func validateTrade(raw tradeEnvelope) (domain.TradeEvent, error) {
	if raw.ID == "" {
		return domain.TradeEvent{}, fmt.Errorf("missing id: %w", domain.ErrSchemaMismatch)
	}
	if raw.FPMM.ID == "" {
		return domain.TradeEvent{}, fmt.Errorf("missing fpmm id: %w", domain.ErrSchemaMismatch)
	}

	side := domain.TradeSide(raw.Type)
	if side != domain.TradeSideBuy && side != domain.TradeSideSell {
		return domain.TradeEvent{}, fmt.Errorf("unknown trade type %q: %w", raw.Type, domain.ErrSchemaMismatch)
	}

	outcomeIndex, err := strconv.Atoi(raw.OutcomeIndex)
	if err != nil || outcomeIndex < 0 {
		return domain.TradeEvent{}, fmt.Errorf("bad outcome index %q: %w", raw.OutcomeIndex, domain.ErrSchemaMismatch)
	}

	createdAt := domain.ParseTimestamp(raw.CreationTimestamp)
	if createdAt == 0 {
		return domain.TradeEvent{}, fmt.Errorf("bad creation timestamp %q: %w", raw.CreationTimestamp, domain.ErrSchemaMismatch)
	}

	return domain.TradeEvent{
		ID:                raw.ID,
		MarketID:          raw.FPMM.ID,
		OutcomeIndex:      outcomeIndex,
		Side:              side,
		CollateralAmount:  raw.CollateralAmount,
		FeeAmount:         raw.FeeAmount,
		OutcomeTokens:     raw.OutcomeTokensTraded,
		CreationTimestamp: createdAt,
		TxHash:            raw.TransactionHash,
		Market:            marketFromEnvelope(raw.FPMM),
	}, nil
}

func validateMarket(raw fpmmEnvelope) (domain.MarketSnapshot, error) {
	if raw.ID == "" {
		return domain.MarketSnapshot{}, fmt.Errorf("missing id: %w", domain.ErrSchemaMismatch)
	}
	if len(raw.Outcomes) == 0 {
		return domain.MarketSnapshot{}, fmt.Errorf("missing outcomes: %w", domain.ErrSchemaMismatch)
	}
	return marketFromEnvelope(raw), nil
}

func marketFromEnvelope(raw fpmmEnvelope) domain.MarketSnapshot {
	category := raw.Category
	if category == "" && raw.Question != nil {
		category = raw.Question.Category
	}

	conditionID := ""
	if raw.Condition != nil {
		conditionID = strings.ToLower(raw.Condition.ID)
	}

	return domain.MarketSnapshot{
		ID:                  raw.ID,
		Title:               raw.Title,
		Outcomes:            raw.Outcomes,
		MarginalPrices:      raw.OutcomeTokenMarginalPrices,
		Category:            category,
		CollateralToken:     raw.CollateralToken,
		ConditionID:         conditionID,
		CreationTimestamp:   domain.ParseTimestamp(raw.CreationTimestamp),
		OpeningTimestamp:    domain.ParseTimestamp(raw.OpeningTimestamp),
		ResolutionTimestamp: domain.ParseTimestamp(raw.ResolutionTimestamp),
	}
}
