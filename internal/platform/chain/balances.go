// Package chain verifies subgraph-reported outcome-token balances directly
// against the conditional-tokens contract over JSON-RPC. The verifier is
// strictly read-only; it holds no key material and never sends transactions.
package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/supafund/supafund-engine/internal/domain"
)

var ctfABI abi.ABI

func init() {
	var err error
	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getCollectionId",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "indexSet", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bytes32"}]
		},
		{
			"name": "getPositionId",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "collectionId", "type": "bytes32"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "balanceOfBatch",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "owners", "type": "address[]"},
				{"name": "ids", "type": "uint256[]"}
			],
			"outputs": [{"name": "", "type": "uint256[]"}]
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}
}

// Verifier resolves ERC-1155 position ids through the conditional-tokens
// contract and reads their balances in one batched call.
type Verifier struct {
	client   *ethclient.Client
	ctfAddr  common.Address
	weiScale decimal.Decimal
}

// NewVerifier dials the given RPC endpoint. ctfAddress is the deployed
// conditional-tokens contract.
func NewVerifier(rpcURL, ctfAddress string) (*Verifier, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc %s: %w", rpcURL, err)
	}
	return &Verifier{
		client:   client,
		ctfAddr:  common.HexToAddress(ctfAddress),
		weiScale: decimal.New(1, 18),
	}, nil
}

// Close releases the underlying RPC connection.
func (v *Verifier) Close() {
	v.client.Close()
}

// FetchBalances reads the on-chain balance for every (condition, outcome)
// key and returns them in token units. Keys whose condition id is not a
// valid 32-byte hex string are skipped rather than failing the batch.
func (v *Verifier) FetchBalances(ctx context.Context, wallet, collateralToken string, keys []domain.BalanceKey) (map[domain.BalanceKey]float64, error) {
	balances := make(map[domain.BalanceKey]float64, len(keys))
	if len(keys) == 0 {
		return balances, nil
	}

	owner := common.HexToAddress(wallet)
	collateral := common.HexToAddress(collateralToken)

	owners := make([]common.Address, 0, len(keys))
	ids := make([]*big.Int, 0, len(keys))
	resolved := make([]domain.BalanceKey, 0, len(keys))

	for _, key := range keys {
		conditionID, err := hexToBytes32(key.ConditionID)
		if err != nil {
			continue
		}
		indexSet := big.NewInt(1)
		indexSet.Lsh(indexSet, uint(key.OutcomeIndex))

		collectionID, err := v.getCollectionID(ctx, conditionID, indexSet)
		if err != nil {
			return nil, fmt.Errorf("chain: collection id for %s: %w", key.ConditionID, err)
		}
		positionID, err := v.getPositionID(ctx, collateral, collectionID)
		if err != nil {
			return nil, fmt.Errorf("chain: position id for %s: %w", key.ConditionID, err)
		}

		owners = append(owners, owner)
		ids = append(ids, positionID)
		resolved = append(resolved, key)
	}
	if len(ids) == 0 {
		return balances, nil
	}

	raw, err := v.balanceOfBatch(ctx, owners, ids)
	if err != nil {
		return nil, fmt.Errorf("chain: balance of batch: %w", err)
	}
	if len(raw) != len(resolved) {
		return nil, fmt.Errorf("chain: balance count %d does not match query count %d", len(raw), len(resolved))
	}

	for i, key := range resolved {
		amount, _ := decimal.NewFromBigInt(raw[i], 0).Div(v.weiScale).Float64()
		balances[key] = amount
	}
	return balances, nil
}

func (v *Verifier) getCollectionID(ctx context.Context, conditionID [32]byte, indexSet *big.Int) ([32]byte, error) {
	callData, err := ctfABI.Pack("getCollectionId", [32]byte{}, conditionID, indexSet)
	if err != nil {
		return [32]byte{}, err
	}
	result, err := v.call(ctx, callData)
	if err != nil {
		return [32]byte{}, err
	}
	vals, err := ctfABI.Unpack("getCollectionId", result)
	if err != nil || len(vals) == 0 {
		return [32]byte{}, fmt.Errorf("unpack getCollectionId: %w", err)
	}
	return vals[0].([32]byte), nil
}

func (v *Verifier) getPositionID(ctx context.Context, collateral common.Address, collectionID [32]byte) (*big.Int, error) {
	callData, err := ctfABI.Pack("getPositionId", collateral, collectionID)
	if err != nil {
		return nil, err
	}
	result, err := v.call(ctx, callData)
	if err != nil {
		return nil, err
	}
	vals, err := ctfABI.Unpack("getPositionId", result)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("unpack getPositionId: %w", err)
	}
	return vals[0].(*big.Int), nil
}

func (v *Verifier) balanceOfBatch(ctx context.Context, owners []common.Address, ids []*big.Int) ([]*big.Int, error) {
	callData, err := ctfABI.Pack("balanceOfBatch", owners, ids)
	if err != nil {
		return nil, err
	}
	result, err := v.call(ctx, callData)
	if err != nil {
		return nil, err
	}
	vals, err := ctfABI.Unpack("balanceOfBatch", result)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("unpack balanceOfBatch: %w", err)
	}
	return vals[0].([]*big.Int), nil
}

func (v *Verifier) call(ctx context.Context, data []byte) ([]byte, error) {
	return v.client.CallContract(ctx, ethereum.CallMsg{
		To:   &v.ctfAddr,
		Data: data,
	}, nil)
}

func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}
