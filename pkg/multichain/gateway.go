// Package multichain turns chain targets into dialed RPC providers and carries
// per-chain error context for multi-chain queries.
package multichain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/chainquery/internal/constants"
	"github.com/0xmhha/chainquery/pkg/client"
	"github.com/0xmhha/chainquery/pkg/metrics"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// Config holds gateway configuration
type Config struct {
	// Overrides replaces the catalogue RPC URL of a named chain
	Overrides map[chain.Chain]string

	// Timeout bounds dialing and every call of a dialed client
	Timeout time.Duration

	// RequestsPerSecond throttles each endpoint; 0 disables throttling
	RequestsPerSecond float64

	// Burst is the limiter burst when throttling is enabled
	Burst int

	// MaxRawClients bounds the clients cached for raw RPC URL targets. The least
	// recently used one is closed when the bound is reached. 0 uses the default.
	MaxRawClients int
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() *Config {
	return &Config{
		Overrides:         make(map[chain.Chain]string),
		Timeout:           constants.DefaultRPCTimeout,
		RequestsPerSecond: constants.DefaultRPCRequestsPerSecond,
		Burst:             constants.DefaultRPCBurst,
		MaxRawClients:     constants.DefaultMaxRawClients,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second cannot be negative", ErrInvalidConfig)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return fmt.Errorf("%w: burst must be positive when throttling", ErrInvalidConfig)
	}
	if c.MaxRawClients < 0 {
		return fmt.Errorf("%w: max raw clients cannot be negative", ErrInvalidConfig)
	}
	for name, url := range c.Overrides {
		if _, err := chain.ForRPC(url); err != nil {
			return fmt.Errorf("%w: chain %s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// Gateway dials chain targets and reuses one client per RPC URL. Clients of
// named chains live until Close; raw URL clients are kept in a bounded LRU.
type Gateway struct {
	config  *Config
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]*client.Client
	raw     lru.BasicLRU[string, *client.Client]
	closed  bool
}

// NewGateway creates a gateway. A nil config uses DefaultConfig.
func NewGateway(config *Config, m *metrics.Metrics, logger *zap.Logger) (*Gateway, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRaw := config.MaxRawClients
	if maxRaw == 0 {
		maxRaw = constants.DefaultMaxRawClients
	}
	return &Gateway{
		config:  config,
		metrics: m,
		logger:  logger.Named("gateway"),
		clients: make(map[string]*client.Client),
		raw:     lru.NewBasicLRU[string, *client.Client](maxRaw),
	}, nil
}

// URLFor returns the RPC URL a target is dialed at
func (g *Gateway) URLFor(target chain.Target) (string, error) {
	if target.IsZero() {
		return "", chain.ErrEmptyTarget
	}
	c, ok := target.Chain()
	if !ok {
		return target.RPCURL(), nil
	}
	if url, ok := g.config.Overrides[c]; ok && url != "" {
		return url, nil
	}
	return c.RPCURL(), nil
}

// Dial returns a client for target, dialing it on first use
func (g *Gateway) Dial(ctx context.Context, target chain.Target) (*client.Client, error) {
	url, err := g.URLFor(target)
	if err != nil {
		return nil, NewChainError(target.String(), ErrDialFailed, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrGatewayClosed
	}
	if cached, ok := g.lookup(url); ok {
		return cached, nil
	}

	named, isNamed := target.Chain()
	c, err := client.Dial(ctx, &client.Config{
		Endpoint: url,
		Chain:    named,
		Timeout:  g.config.Timeout,
		Limiter:  g.newLimiter(),
		Metrics:  g.metrics,
		Logger:   g.logger.With(zap.String("chain", target.String())),
	})
	if err != nil {
		return nil, NewChainError(target.String(), ErrDialFailed, err)
	}

	if isNamed {
		g.clients[url] = c
	} else if evictedURL, evicted, ok := g.raw.Add3(url, c); ok {
		evicted.Close()
		g.logger.Debug("evicted raw rpc client", zap.String("rpc_url", evictedURL))
	}

	g.logger.Debug("dialed chain",
		zap.String("chain", target.String()),
		zap.String("rpc_url", url))

	return c, nil
}

// lookup finds a dialed client by URL. Callers hold g.mu.
func (g *Gateway) lookup(url string) (*client.Client, bool) {
	if c, ok := g.clients[url]; ok {
		return c, true
	}
	return g.raw.Get(url)
}

// snapshot copies the dialed clients by URL. Callers hold g.mu.
func (g *Gateway) snapshot() map[string]*client.Client {
	all := make(map[string]*client.Client, len(g.clients)+g.raw.Len())
	for url, c := range g.clients {
		all[url] = c
	}
	for _, url := range g.raw.Keys() {
		if c, ok := g.raw.Peek(url); ok {
			all[url] = c
		}
	}
	return all
}

func (g *Gateway) newLimiter() *rate.Limiter {
	if g.config.RequestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(g.config.RequestsPerSecond), g.config.Burst)
}

// Endpoints returns the URLs of all dialed clients, sorted
func (g *Gateway) Endpoints() []string {
	g.mu.Lock()
	clients := g.snapshot()
	g.mu.Unlock()

	urls := make([]string, 0, len(clients))
	for url := range clients {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Health pings every dialed client and reports failures by URL
func (g *Gateway) Health(ctx context.Context) map[string]error {
	g.mu.Lock()
	clients := g.snapshot()
	g.mu.Unlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = make(map[string]error, len(clients))
	)
	for url, c := range clients {
		wg.Add(1)
		go func(url string, c *client.Client) {
			defer wg.Done()
			err := c.Ping(ctx)
			if err != nil {
				g.logger.Warn("chain health check failed",
					zap.String("rpc_url", url),
					zap.Error(err))
			}
			mu.Lock()
			report[url] = err
			mu.Unlock()
		}(url, c)
	}
	wg.Wait()
	return report
}

// Close closes all dialed clients. Dial fails afterwards.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	for url, c := range g.snapshot() {
		c.Close()
		delete(g.clients, url)
	}
	g.raw.Purge()
	g.logger.Info("gateway closed")
}
