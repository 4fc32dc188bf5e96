package conditional

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/supafund/supafund-engine/internal/domain"
)

func graphqlStub(data string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":` + data + `}`))
	}))
}

func TestFetchUserBalances(t *testing.T) {
	srv := graphqlStub(`{
		"user": {
			"userPositions": [
				{
					"id": "0xpos1",
					"balance": "6000000000000000000",
					"wrappedBalance": "0",
					"position": {
						"id": "0xp1",
						"conditionIds": ["0xCOND"],
						"indexSets": ["1"]
					}
				},
				{
					"id": "0xpos2",
					"balance": "1000000000000000000",
					"wrappedBalance": "500000000000000000",
					"position": {
						"id": "0xp2",
						"conditionIds": ["0xcond"],
						"indexSets": ["2"]
					}
				}
			]
		}
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	balances, err := client.FetchUserBalances(context.Background(), "0xWallet")
	require.NoError(t, err)
	require.Len(t, balances, 2)

	require.InDelta(t, 6.0, balances[domain.BalanceKey{ConditionID: "0xcond", OutcomeIndex: 0}], 1e-9)
	// Wrapped balance counts toward the held total.
	require.InDelta(t, 1.5, balances[domain.BalanceKey{ConditionID: "0xcond", OutcomeIndex: 1}], 1e-9)
}

func TestFetchUserBalancesSkipsCombinedPositions(t *testing.T) {
	srv := graphqlStub(`{
		"user": {
			"userPositions": [
				{
					"id": "0xpos1",
					"balance": "1000000000000000000",
					"wrappedBalance": "0",
					"position": {
						"id": "0xp1",
						"conditionIds": ["0xcond"],
						"indexSets": ["3"]
					}
				}
			]
		}
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	balances, err := client.FetchUserBalances(context.Background(), "0xwallet")
	require.NoError(t, err)
	require.Empty(t, balances)
}

func TestFetchUserBalancesUnknownWallet(t *testing.T) {
	srv := graphqlStub(`{"user": null}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	balances, err := client.FetchUserBalances(context.Background(), "0xwallet")
	require.NoError(t, err)
	require.Empty(t, balances)
}

func TestFetchUserBalancesRejectsMissingCondition(t *testing.T) {
	srv := graphqlStub(`{
		"user": {
			"userPositions": [
				{"id": "0xpos1", "balance": "1", "wrappedBalance": "0", "position": null}
			]
		}
	}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.FetchUserBalances(context.Background(), "0xwallet")
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestOutcomeIndexFromIndexSet(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1", 0, true},
		{"2", 1, true},
		{"4", 2, true},
		{"3", 0, false},
		{"0", 0, false},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := outcomeIndexFromIndexSet(tc.in)
		require.Equal(t, tc.ok, ok, "index set %q", tc.in)
		if ok {
			require.Equal(t, tc.want, got, "index set %q", tc.in)
		}
	}
}
