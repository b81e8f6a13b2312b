package resolver

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)

	dial := func(context.Context, chain.Target) (Provider, error) { return nil, nil }
	_, err = NewEngine(dial, nil, nil, &Config{MaxConcurrency: -1}, nil, nil)
	assert.Error(t, err)

	engine, err := NewEngine(dial, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, engine.Accounts())
	assert.NotNil(t, engine.Transactions())
}

func TestEngine_ResolveTransactions(t *testing.T) {
	f := newTxFixture(t, 1)
	engine, err := NewEngine(f.dialer(t), nil, nil, nil, nil, nil)
	require.NoError(t, err)

	results, err := engine.ResolveTransactions(context.Background(), &types.TransactionQuery{
		Block:      blockID(t, "100:101"),
		Predicates: []types.Predicate{predicate(t, "to="+bob.Hex())},
		Fields:     []types.TransactionField{types.TxHash},
	}, targets(chain.Ethereum))
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{f.legacy.Hash(), f.later.Hash()}, hashesOf(results))
}
