package resolver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/chainquery/pkg/fetch"
	"github.com/0xmhha/chainquery/pkg/metrics"
	"github.com/0xmhha/chainquery/pkg/multichain"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// Engine answers account and transaction queries over a list of chains
type Engine struct {
	dial         DialFunc
	accounts     *AccountResolver
	transactions *TransactionResolver
	logger       *zap.Logger
}

// NewEngine wires both resolvers to one dialer
func NewEngine(dial DialFunc, names NameResolver, blocks *fetch.BlockResolver, config *Config, m *metrics.Metrics, logger *zap.Logger) (*Engine, error) {
	if dial == nil {
		return nil, fmt.Errorf("dial function cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		dial:         dial,
		accounts:     NewAccountResolver(names, config, m, logger),
		transactions: NewTransactionResolver(dial, blocks, config, m, logger),
		logger:       logger.Named("engine"),
	}, nil
}

// GatewayDialer adapts a gateway to DialFunc
func GatewayDialer(g *multichain.Gateway) DialFunc {
	return func(ctx context.Context, target chain.Target) (Provider, error) {
		c, err := g.Dial(ctx, target)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ResolveAccounts resolves ids on every target in order and concatenates the
// rows, len(ids) rows per chain. Names are resolved once on the canonical chain
// before any target is dialed. A failure on any chain aborts the query.
func (e *Engine) ResolveAccounts(ctx context.Context, ids []types.EntityID, fields []types.AccountField, targets []chain.Target) ([]*types.AccountResult, error) {
	if _, err := accountsOf(ids); err != nil {
		return nil, err
	}

	started := time.Now()
	results := make([]*types.AccountResult, 0, len(ids)*len(targets))
	if len(targets) == 0 {
		return results, nil
	}

	resolved, err := e.accounts.ResolveNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, target := range targets {
		p, err := e.dial(ctx, target)
		if err != nil {
			return nil, chainError(target, err)
		}
		rows, err := e.accounts.Resolve(ctx, resolved, fields, p)
		if err != nil {
			return nil, chainError(target, err)
		}
		results = append(results, rows...)
	}

	e.logger.Info("account query resolved",
		zap.Int("ids", len(ids)),
		zap.Int("chains", len(targets)),
		zap.Duration("elapsed", time.Since(started)))

	return results, nil
}

// ResolveTransactions runs q on every target in order
func (e *Engine) ResolveTransactions(ctx context.Context, q *types.TransactionQuery, targets []chain.Target) ([]*types.TransactionResult, error) {
	return e.transactions.Resolve(ctx, q, targets)
}

// Accounts returns the single-chain account resolver
func (e *Engine) Accounts() *AccountResolver {
	return e.accounts
}

// Transactions returns the transaction resolver
func (e *Engine) Transactions() *TransactionResolver {
	return e.transactions
}
