package resolver

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/chainquery/internal/testutil"
	"github.com/0xmhha/chainquery/pkg/ens"
	"github.com/0xmhha/chainquery/pkg/metrics"
	"github.com/0xmhha/chainquery/pkg/multichain"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

var (
	alice    = testutil.KeyAddress(1)
	bob      = testutil.KeyAddress(2)
	contract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
)

func accountChain(t *testing.T) *testutil.MockRPC {
	t.Helper()
	fake := testutil.NewFakeChain(1)
	fake.SetAccount(alice, big.NewInt(1_000), 7, nil)
	fake.SetAccount(bob, big.NewInt(42), 1, nil)
	fake.SetAccount(contract, big.NewInt(0), 1, []byte{0x60, 0x01})
	return fake.Serve(t)
}

func TestAccountResolver_OnlyRequestedFields(t *testing.T) {
	m := accountChain(t)
	p := dialClient(t, m)
	m.ResetCalls()

	r := NewAccountResolver(nil, nil, nil, testutil.NewTestLogger(t))
	results, err := r.Resolve(context.Background(),
		[]types.EntityID{addressID(alice), addressID(bob)},
		[]types.AccountField{types.AccountBalance, types.AccountNonce},
		p)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, big.NewInt(1_000), results[0].Balance)
	assert.Equal(t, uint64(7), *results[0].Nonce)
	assert.Equal(t, big.NewInt(42), results[1].Balance)
	assert.Equal(t, uint64(1), *results[1].Nonce)
	for _, row := range results {
		assert.Nil(t, row.Address)
		assert.Nil(t, row.Code)
		assert.Nil(t, row.Chain)
	}

	assert.Equal(t, 2, m.Calls("eth_getBalance"))
	assert.Equal(t, 2, m.Calls("eth_getTransactionCount"))
	assert.Zero(t, m.Calls("eth_getCode"))
}

func TestAccountResolver_AllFields(t *testing.T) {
	m := accountChain(t)
	p := dialClient(t, m)

	r := NewAccountResolver(nil, nil, nil, nil)
	results, err := r.Resolve(context.Background(),
		[]types.EntityID{addressID(contract)},
		types.AllAccountFields(),
		p)
	require.NoError(t, err)
	require.Len(t, results, 1)

	row := results[0]
	assert.Equal(t, contract, *row.Address)
	assert.Equal(t, 0, row.Balance.Sign())
	assert.Equal(t, uint64(1), *row.Nonce)
	assert.Equal(t, []byte{0x60, 0x01}, []byte(*row.Code))
	require.NotNil(t, row.Chain)
	assert.Equal(t, "ethereum", row.Chain.Name)
	assert.Equal(t, uint64(1), row.Chain.ID)
}

func TestAccountResolver_EntityMismatchBeforeAnyCall(t *testing.T) {
	m := accountChain(t)
	p := dialClient(t, m)
	m.ResetCalls()

	ids := []types.EntityID{
		addressID(alice),
		types.NewTransactionID(common.HexToHash("0x01")),
	}
	r := NewAccountResolver(nil, nil, nil, nil)
	results, err := r.Resolve(context.Background(), ids, []types.AccountField{types.AccountBalance}, p)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrEntityMismatch)

	var mismatch *EntityMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Index)
	assert.Equal(t, types.TransactionEntity, mismatch.Got.Kind())

	assert.Zero(t, m.TotalCalls())
}

func TestAccountResolver_Names(t *testing.T) {
	m := accountChain(t)
	p := dialClient(t, m)
	names := stubNames{"alice.eth": alice}

	r := NewAccountResolver(names, nil, nil, nil)
	results, err := r.Resolve(context.Background(),
		[]types.EntityID{nameID("alice.eth"), addressID(bob)},
		[]types.AccountField{types.AccountAddress, types.AccountBalance},
		p)
	require.NoError(t, err)
	assert.Equal(t, alice, *results[0].Address)
	assert.Equal(t, big.NewInt(1_000), results[0].Balance)
	assert.Equal(t, bob, *results[1].Address)

	_, err = r.Resolve(context.Background(),
		[]types.EntityID{addressID(bob), nameID("nobody.eth")},
		[]types.AccountField{types.AccountBalance},
		p)
	assert.ErrorIs(t, err, ErrNameResolution)
	assert.ErrorIs(t, err, ens.ErrNameNotFound)

	noNames := NewAccountResolver(nil, nil, nil, nil)
	_, err = noNames.Resolve(context.Background(), []types.EntityID{nameID("alice.eth")}, nil, p)
	assert.ErrorIs(t, err, ErrNameResolution)
}

func TestAccountResolver_FailureAbortsBatch(t *testing.T) {
	fake := testutil.NewFakeChain(1)
	m := fake.Serve(t)
	p := dialClient(t, m)
	m.Handle("eth_getTransactionCount", testutil.ErrorHandler("header not found"))

	reg := prometheus.NewRegistry()
	met := metrics.New(reg, "test")
	r := NewAccountResolver(nil, &Config{MaxConcurrency: 1}, met, nil)
	results, err := r.Resolve(context.Background(),
		[]types.EntityID{addressID(alice), addressID(bob)},
		[]types.AccountField{types.AccountBalance, types.AccountNonce},
		p)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "header not found")

	assert.Equal(t, float64(1), promtest.ToFloat64(
		met.QueriesTotal.WithLabelValues("account", metrics.StatusError)))
}

func TestEngine_ResolveAccountsAcrossChains(t *testing.T) {
	mainnet := testutil.NewFakeChain(1)
	mainnet.SetAccount(alice, big.NewInt(100), 1, nil)
	base := testutil.NewFakeChain(8453)
	base.SetAccount(alice, big.NewInt(200), 2, nil)

	g := newGateway(t, map[chain.Chain]*testutil.MockRPC{
		chain.Ethereum: mainnet.Serve(t),
		chain.Base:     base.Serve(t),
	})
	engine, err := NewEngine(GatewayDialer(g), stubNames{"alice.eth": alice}, nil, nil, nil, testutil.NewTestLogger(t))
	require.NoError(t, err)

	results, err := engine.ResolveAccounts(context.Background(),
		[]types.EntityID{nameID("alice.eth")},
		[]types.AccountField{types.AccountBalance, types.AccountChain},
		targets(chain.Base, chain.Ethereum))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, big.NewInt(200), results[0].Balance)
	assert.Equal(t, "base", results[0].Chain.Name)
	assert.Equal(t, big.NewInt(100), results[1].Balance)
	assert.Equal(t, "ethereum", results[1].Chain.Name)
}

func TestEngine_ResolveAccountsChainFailure(t *testing.T) {
	mainnet := testutil.NewFakeChain(1)
	broken := testutil.NewFakeChain(10)
	brokenRPC := broken.Serve(t)
	brokenRPC.Handle("eth_getBalance", testutil.ErrorHandler("upstream unavailable"))

	g := newGateway(t, map[chain.Chain]*testutil.MockRPC{
		chain.Ethereum: mainnet.Serve(t),
		chain.Optimism: brokenRPC,
	})
	engine, err := NewEngine(GatewayDialer(g), nil, nil, nil, nil, nil)
	require.NoError(t, err)

	results, err := engine.ResolveAccounts(context.Background(),
		[]types.EntityID{addressID(alice)},
		[]types.AccountField{types.AccountBalance},
		targets(chain.Ethereum, chain.Optimism))
	require.Error(t, err)
	assert.Nil(t, results)

	var chainErr *multichain.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, "optimism", chainErr.ChainID)
	assert.ErrorIs(t, err, multichain.ErrQueryFailed)
}

func TestEngine_ResolveAccountsMismatchSkipsDial(t *testing.T) {
	dials := 0
	engine, err := NewEngine(countingDialer(func(context.Context, chain.Target) (Provider, error) {
		t.Fatal("dial must not be reached")
		return nil, nil
	}, &dials), nil, nil, nil, nil, nil)
	require.NoError(t, err)

	_, err = engine.ResolveAccounts(context.Background(),
		[]types.EntityID{types.NewBlockEntityID(types.NewBlockNumberID(1))},
		[]types.AccountField{types.AccountBalance},
		targets(chain.Ethereum))
	assert.ErrorIs(t, err, ErrEntityMismatch)
	assert.Zero(t, dials)
}

// countingNames counts lookups per name
type countingNames struct {
	book  stubNames
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingNames) Resolve(ctx context.Context, account types.NameOrAddress) (common.Address, error) {
	name, _ := account.Name()
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
	return c.book.Resolve(ctx, account)
}

func TestEngine_ResolveAccountsLooksUpNamesOnce(t *testing.T) {
	mainnet := testutil.NewFakeChain(1)
	mainnet.SetAccount(alice, big.NewInt(100), 1, nil)
	base := testutil.NewFakeChain(8453)
	base.SetAccount(alice, big.NewInt(200), 2, nil)
	optimism := testutil.NewFakeChain(10)

	g := newGateway(t, map[chain.Chain]*testutil.MockRPC{
		chain.Ethereum: mainnet.Serve(t),
		chain.Base:     base.Serve(t),
		chain.Optimism: optimism.Serve(t),
	})
	names := &countingNames{book: stubNames{"alice.eth": alice}, calls: make(map[string]int)}
	engine, err := NewEngine(GatewayDialer(g), names, nil, nil, nil, testutil.NewTestLogger(t))
	require.NoError(t, err)

	results, err := engine.ResolveAccounts(context.Background(),
		[]types.EntityID{nameID("alice.eth"), addressID(bob), nameID("alice.eth")},
		[]types.AccountField{types.AccountAddress, types.AccountBalance},
		targets(chain.Ethereum, chain.Base, chain.Optimism))
	require.NoError(t, err)
	require.Len(t, results, 9)

	assert.Equal(t, map[string]int{"alice.eth": 1}, names.calls)
	assert.Equal(t, alice, *results[0].Address)
	assert.Equal(t, bob, *results[1].Address)
	assert.Equal(t, alice, *results[2].Address)
	assert.Equal(t, big.NewInt(100), results[0].Balance)
	assert.Equal(t, big.NewInt(200), results[3].Balance)
}

func TestEngine_ResolveAccountsNameFailureSkipsDial(t *testing.T) {
	dials := 0
	names := &countingNames{book: stubNames{}, calls: make(map[string]int)}
	engine, err := NewEngine(countingDialer(func(context.Context, chain.Target) (Provider, error) {
		t.Fatal("dial must not be reached")
		return nil, nil
	}, &dials), names, nil, nil, nil, nil)
	require.NoError(t, err)

	_, err = engine.ResolveAccounts(context.Background(),
		[]types.EntityID{nameID("nobody.eth")},
		[]types.AccountField{types.AccountBalance},
		targets(chain.Ethereum, chain.Base))
	assert.ErrorIs(t, err, ErrNameResolution)
	assert.ErrorIs(t, err, ens.ErrNameNotFound)
	assert.Zero(t, dials)
	assert.Equal(t, 1, names.calls["nobody.eth"])

	results, err := engine.ResolveAccounts(context.Background(),
		[]types.EntityID{nameID("nobody.eth")},
		[]types.AccountField{types.AccountBalance},
		nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, names.calls["nobody.eth"], "no targets means no lookups")
}
