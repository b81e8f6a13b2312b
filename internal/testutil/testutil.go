// Package testutil provides the mock JSON-RPC node and signed transaction
// fixtures shared by package tests.
package testutil

import (
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// IntegrationEnv enables tests that talk to public RPC endpoints
const IntegrationEnv = "CHAINQUERY_INTEGRATION"

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// SkipUnlessIntegration skips live-network tests under -short or without CHAINQUERY_INTEGRATION
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv(IntegrationEnv) == "" {
		t.Skipf("set %s=1 to run integration tests", IntegrationEnv)
	}
}

// NewTestReceipt creates a test receipt for the given transaction hash
func NewTestReceipt(txHash common.Hash, blockNumber uint64, status uint64) *types.Receipt {
	return &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            status,
		CumulativeGasUsed: 21000,
		BlockNumber:       new(big.Int).SetUint64(blockNumber),
		TxHash:            txHash,
		GasUsed:           21000,
		Logs:              []*types.Log{},
	}
}

// LegacyTransfer builds an unsigned legacy value transfer
func LegacyTransfer(nonce uint64, to common.Address, value, gasPrice *big.Int, gas uint64) *types.LegacyTx {
	return &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
	}
}

// DynamicFeeTransfer builds an unsigned EIP-1559 value transfer
func DynamicFeeTransfer(chainID, nonce uint64, to common.Address, value, feeCap, tipCap *big.Int, gas uint64) *types.DynamicFeeTx {
	return &types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		To:        &to,
		Value:     value,
		Gas:       gas,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
	}
}
