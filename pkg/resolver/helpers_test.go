package resolver

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/chainquery/internal/testutil"
	"github.com/0xmhha/chainquery/pkg/client"
	"github.com/0xmhha/chainquery/pkg/ens"
	"github.com/0xmhha/chainquery/pkg/fetch"
	"github.com/0xmhha/chainquery/pkg/multichain"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func dialClient(t *testing.T, m *testutil.MockRPC) *client.Client {
	t.Helper()
	c, err := client.NewClient(&client.Config{Endpoint: m.URL(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// newGateway routes named chains to mock servers
func newGateway(t *testing.T, servers map[chain.Chain]*testutil.MockRPC) *multichain.Gateway {
	t.Helper()
	cfg := multichain.DefaultConfig()
	cfg.Timeout = 5 * time.Second
	for c, m := range servers {
		cfg.Overrides[c] = m.URL()
	}
	g, err := multichain.NewGateway(cfg, nil, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

// countingDialer records how many times targets were dialed
func countingDialer(dial DialFunc, count *int) DialFunc {
	return func(ctx context.Context, target chain.Target) (Provider, error) {
		*count++
		return dial(ctx, target)
	}
}

func newTxResolver(t *testing.T, dial DialFunc) *TransactionResolver {
	t.Helper()
	blocks := fetch.NewBlockResolver(&fetch.Config{BatchSize: 2, MaxConcurrentBatches: 2}, nil)
	return NewTransactionResolver(dial, blocks, &Config{MaxConcurrency: 4}, nil, testutil.NewTestLogger(t))
}

func addressID(addr common.Address) types.EntityID {
	return types.NewAccountID(types.NewAddress(addr))
}

func nameID(name string) types.EntityID {
	return types.NewAccountID(types.NewName(name))
}

func blockID(t *testing.T, s string) *types.BlockID {
	t.Helper()
	id, err := types.ParseBlockID(s)
	require.NoError(t, err)
	return &id
}

func predicate(t *testing.T, expr string) types.Predicate {
	t.Helper()
	p, err := types.ParsePredicateExpr(expr)
	require.NoError(t, err)
	return p
}

func targets(cs ...chain.Chain) []chain.Target {
	out := make([]chain.Target, len(cs))
	for i, c := range cs {
		out[i] = chain.ForChain(c)
	}
	return out
}

// stubNames resolves from a fixed book
type stubNames map[string]common.Address

func (s stubNames) Resolve(_ context.Context, account types.NameOrAddress) (common.Address, error) {
	if addr, ok := account.Address(); ok {
		return addr, nil
	}
	name, _ := account.Name()
	addr, ok := s[name]
	if !ok {
		return common.Address{}, ens.ErrNameNotFound
	}
	return addr, nil
}
