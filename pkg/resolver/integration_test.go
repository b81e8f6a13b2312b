package resolver

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/chainquery/internal/testutil"
	"github.com/0xmhha/chainquery/pkg/fetch"
	"github.com/0xmhha/chainquery/pkg/multichain"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// These tests query Ethereum mainnet through the public catalogue endpoint.

func liveResolver(t *testing.T) *TransactionResolver {
	t.Helper()
	testutil.SkipUnlessIntegration(t)

	cfg := multichain.DefaultConfig()
	cfg.Timeout = time.Minute
	g, err := multichain.NewGateway(cfg, nil, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(g.Close)

	return NewTransactionResolver(GatewayDialer(g), fetch.NewBlockResolver(nil, nil), nil, nil, testutil.NewTestLogger(t))
}

func TestIntegration_BlockTransactionCount(t *testing.T) {
	r := liveResolver(t)

	results, err := r.Resolve(context.Background(), &types.TransactionQuery{
		Block:  blockID(t, "21036202"),
		Fields: []types.TransactionField{types.TxHash},
	}, targets(chain.Ethereum))
	require.NoError(t, err)
	assert.Len(t, results, 177)
}

func TestIntegration_BlockRangeTransactionCount(t *testing.T) {
	r := liveResolver(t)

	results, err := r.Resolve(context.Background(), &types.TransactionQuery{
		Block:  blockID(t, "10000000:10000015"),
		Fields: []types.TransactionField{types.TxHash},
	}, targets(chain.Ethereum))
	require.NoError(t, err)
	assert.Len(t, results, 2394)
}

func TestIntegration_BlockRangeAllFields(t *testing.T) {
	r := liveResolver(t)

	rpcTarget, err := chain.ForRPC(chain.Ethereum.RPCURL())
	require.NoError(t, err)

	results, err := r.Resolve(context.Background(), &types.TransactionQuery{
		Block:  blockID(t, "10000000:10000001"),
		Fields: types.AllTransactionFields(),
	}, []chain.Target{rpcTarget})
	require.NoError(t, err)
	assert.Len(t, results, 211)
}

func TestIntegration_Predicates(t *testing.T) {
	r := liveResolver(t)

	from := common.HexToAddress("0xBF2EFaA8715d75AfC562Cde29f56B55aA0Fb219F")
	to := common.HexToAddress("0x3fE873889008521bf335E07CEAfdfd0D9a6864A8")
	value, _ := new(big.Int).SetString("1000000000000000", 10)

	results, err := r.Resolve(context.Background(), &types.TransactionQuery{
		Block: blockID(t, "10000004"),
		Predicates: []types.Predicate{
			predicate(t, "value<=1000000000000000"),
			predicate(t, "from="+from.Hex()),
			predicate(t, "to="+to.Hex()),
			predicate(t, "gas<=22000"),
			predicate(t, "gas_price<=5000000000"),
			predicate(t, "status=true"),
		},
		Fields: types.AllTransactionFields(),
	}, targets(chain.Ethereum))
	require.NoError(t, err)
	require.Len(t, results, 1)

	tx := results[0]
	assert.Equal(t, value, tx.Value)
	assert.Equal(t, from, *tx.From)
	assert.Equal(t, to, *tx.To)
	assert.Equal(t, uint64(22_000), *tx.Gas)
	assert.Equal(t, big.NewInt(5_000_000_000), tx.GasPrice)
	assert.True(t, *tx.Status)
}
