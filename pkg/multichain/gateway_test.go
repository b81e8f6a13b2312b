package multichain

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "github.com/0xmhha/chainquery/internal/testutil"
	"github.com/0xmhha/chainquery/pkg/client"
	"github.com/0xmhha/chainquery/pkg/metrics"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -1 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.RequestsPerSecond = -1 }, wantErr: true},
		{name: "throttle without burst", mutate: func(c *Config) { c.RequestsPerSecond = 5; c.Burst = 0 }, wantErr: true},
		{name: "bad override", mutate: func(c *Config) { c.Overrides[chain.Base] = "base.example" }, wantErr: true},
		{name: "good override", mutate: func(c *Config) { c.Overrides[chain.Base] = "https://base.example" }},
		{name: "negative raw clients", mutate: func(c *Config) { c.MaxRawClients = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGateway_URLFor(t *testing.T) {
	cfg := testConfig()
	cfg.Overrides[chain.Base] = "https://base.internal:8545"
	g, err := NewGateway(cfg, nil, nil)
	require.NoError(t, err)

	url, err := g.URLFor(chain.ForChain(chain.Base))
	require.NoError(t, err)
	assert.Equal(t, "https://base.internal:8545", url)

	url, err = g.URLFor(chain.ForChain(chain.Ethereum))
	require.NoError(t, err)
	assert.Equal(t, chain.Ethereum.RPCURL(), url)

	raw, err := chain.ForRPC("http://127.0.0.1:8545")
	require.NoError(t, err)
	url, err = g.URLFor(raw)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", url)

	_, err = g.URLFor(chain.Target{})
	assert.ErrorIs(t, err, chain.ErrEmptyTarget)
}

func TestGateway_DialReusesClients(t *testing.T) {
	m := tu.NewFakeChain(8453).Serve(t)
	reg := prometheus.NewRegistry()

	cfg := testConfig()
	cfg.Overrides[chain.Base] = m.URL()
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 10
	met := metrics.New(reg, "test")
	g, err := NewGateway(cfg, met, tu.NewTestLogger(t))
	require.NoError(t, err)
	defer g.Close()

	ctx := context.Background()
	first, err := g.Dial(ctx, chain.ForChain(chain.Base))
	require.NoError(t, err)
	second, err := g.Dial(ctx, chain.ForChain(chain.Base))
	require.NoError(t, err)
	assert.Same(t, first, second)

	raw, err := chain.ForRPC(m.URL())
	require.NoError(t, err)
	third, err := g.Dial(ctx, raw)
	require.NoError(t, err)
	assert.Same(t, first, third, "same url shares one client")

	assert.Equal(t, 1, m.Calls("eth_chainId"))
	assert.Equal(t, []string{m.URL()}, g.Endpoints())

	info, err := first.ChainInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "base", info.Name)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		met.RPCRequestsTotal.WithLabelValues("eth_chainId", metrics.StatusSuccess)))
}

func TestGateway_DialFailure(t *testing.T) {
	m := tu.NewMockRPC(t, map[string]tu.MethodHandler{
		"eth_chainId": tu.ErrorHandler("node is syncing"),
	})
	g, err := NewGateway(testConfig(), nil, nil)
	require.NoError(t, err)
	defer g.Close()

	raw, err := chain.ForRPC(m.URL())
	require.NoError(t, err)
	_, err = g.Dial(context.Background(), raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDialFailed)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, m.URL(), chainErr.ChainID)
	assert.Empty(t, g.Endpoints(), "failed dials are not cached")
}

func TestGateway_HealthAndClose(t *testing.T) {
	m := tu.NewFakeChain(1).Serve(t)
	g, err := NewGateway(testConfig(), nil, nil)
	require.NoError(t, err)

	raw, err := chain.ForRPC(m.URL())
	require.NoError(t, err)
	_, err = g.Dial(context.Background(), raw)
	require.NoError(t, err)

	report := g.Health(context.Background())
	require.Contains(t, report, m.URL())
	assert.NoError(t, report[m.URL()])

	g.Close()
	g.Close()
	assert.Empty(t, g.Endpoints())

	_, err = g.Dial(context.Background(), raw)
	assert.ErrorIs(t, err, ErrGatewayClosed)
}

func TestGateway_RawClientsAreBounded(t *testing.T) {
	m := tu.NewFakeChain(1).Serve(t)

	cfg := testConfig()
	cfg.MaxRawClients = 3
	cfg.Overrides[chain.Ethereum] = m.URL()
	g, err := NewGateway(cfg, nil, nil)
	require.NoError(t, err)
	defer g.Close()

	ctx := context.Background()
	named, err := g.Dial(ctx, chain.ForChain(chain.Ethereum))
	require.NoError(t, err)

	var first *client.Client
	for i := 0; i < 50; i++ {
		raw, err := chain.ForRPC(fmt.Sprintf("%s/?n=%d", m.URL(), i))
		require.NoError(t, err)
		c, err := g.Dial(ctx, raw)
		require.NoError(t, err)
		if i == 0 {
			first = c
		}
	}

	endpoints := g.Endpoints()
	assert.Len(t, endpoints, 4)
	assert.Contains(t, endpoints, m.URL(), "named chains are never evicted")
	assert.NotContains(t, endpoints, m.URL()+"/?n=0")

	again, err := g.Dial(ctx, chain.ForChain(chain.Ethereum))
	require.NoError(t, err)
	assert.Same(t, named, again)

	raw, err := chain.ForRPC(m.URL() + "/?n=0")
	require.NoError(t, err)
	redialed, err := g.Dial(ctx, raw)
	require.NoError(t, err)
	assert.NotSame(t, first, redialed, "an evicted url is dialed again")
	assert.Len(t, g.Endpoints(), 4)
}
