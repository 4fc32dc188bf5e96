package omen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supafund/supafund-engine/internal/domain"
)

func graphqlStub(t *testing.T, data string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":` + data + `}`))
	}))
}

func TestFetchUserTrades(t *testing.T) {
	srv := graphqlStub(t, `{
		"fpmmTrades": [
			{
				"id": "0xtrade1",
				"type": "Buy",
				"collateralAmount": "5000000000000000000",
				"feeAmount": "100000000000000000",
				"outcomeIndex": "0",
				"outcomeTokensTraded": "10000000000000000000",
				"creationTimestamp": "1700000000",
				"transactionHash": "0xtx1",
				"fpmm": {
					"id": "0xmarket",
					"title": "Will it ship?",
					"outcomes": ["Yes", "No"],
					"outcomeTokenMarginalPrices": ["0.55", "0.45"],
					"collateralToken": "0xe91d153e0b41518a2ce8dd3d7944fa863463a97d",
					"creationTimestamp": "1699000000",
					"condition": {"id": "0xC0ND"},
					"question": {"category": "Tech"}
				}
			}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	trades, err := client.FetchUserTrades(context.Background(), "0xWallet")
	require.NoError(t, err)
	require.Len(t, trades, 1)

	trade := trades[0]
	require.Equal(t, "0xtrade1", trade.ID)
	require.Equal(t, domain.TradeSideBuy, trade.Side)
	require.Equal(t, 0, trade.OutcomeIndex)
	require.Equal(t, int64(1700000000), trade.CreationTimestamp)
	require.Equal(t, "0xmarket", trade.MarketID)
	require.Equal(t, "0xc0nd", trade.Market.ConditionID)
	require.Equal(t, "Tech", trade.Market.Category)
}

func TestFetchUserTradesRejectsUnknownType(t *testing.T) {
	srv := graphqlStub(t, `{
		"fpmmTrades": [
			{
				"id": "0xtrade1",
				"type": "Swap",
				"outcomeIndex": "0",
				"creationTimestamp": "1700000000",
				"fpmm": {"id": "0xmarket", "outcomes": ["Yes", "No"]}
			}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.FetchUserTrades(context.Background(), "0xwallet")
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestFetchUserTradesRejectsBadOutcomeIndex(t *testing.T) {
	srv := graphqlStub(t, `{
		"fpmmTrades": [
			{
				"id": "0xtrade1",
				"type": "Buy",
				"outcomeIndex": "not-a-number",
				"creationTimestamp": "1700000000",
				"fpmm": {"id": "0xmarket", "outcomes": ["Yes", "No"]}
			}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.FetchUserTrades(context.Background(), "0xwallet")
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestFetchOpenMarkets(t *testing.T) {
	srv := graphqlStub(t, `{
		"fixedProductMarketMakers": [
			{
				"id": "0xmarket",
				"title": "Will it ship?",
				"outcomes": ["Yes", "No"],
				"outcomeTokenMarginalPrices": ["0.60", "0.40"],
				"category": "Tech",
				"creationTimestamp": "1700000000",
				"openingTimestamp": "1700600000",
				"condition": {"id": "0xcond"}
			}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	markets, err := client.FetchOpenMarkets(context.Background(), "0xcreator", time.Unix(1700500000, 0))
	require.NoError(t, err)
	require.Len(t, markets, 1)
	require.Equal(t, "0xmarket", markets[0].ID)
	require.Equal(t, int64(1700600000), markets[0].OpeningTimestamp)
}

func TestFetchOpenMarketsRejectsMissingOutcomes(t *testing.T) {
	srv := graphqlStub(t, `{
		"fixedProductMarketMakers": [
			{"id": "0xmarket", "title": "No outcomes here"}
		]
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.FetchOpenMarkets(context.Background(), "0xcreator", time.Unix(1700500000, 0))
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestFetchUserTradesGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.FetchUserTrades(context.Background(), "0xwallet")
	require.ErrorContains(t, err, "rate limited")
}
