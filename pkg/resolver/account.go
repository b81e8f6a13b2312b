package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xmhha/chainquery/pkg/metrics"
	"github.com/0xmhha/chainquery/pkg/types"
)

const tracerName = "chainquery/resolver"

// accountFetcher fills one slot of an account row with at most one remote call
type accountFetcher func(ctx context.Context, p AccountProvider, addr common.Address, row *types.AccountResult) error

var accountFetchers = map[types.AccountField]accountFetcher{
	types.AccountAddress: func(_ context.Context, _ AccountProvider, addr common.Address, row *types.AccountResult) error {
		row.Address = &addr
		return nil
	},
	types.AccountBalance: func(ctx context.Context, p AccountProvider, addr common.Address, row *types.AccountResult) error {
		balance, err := p.BalanceAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		row.Balance = balance
		return nil
	},
	types.AccountNonce: func(ctx context.Context, p AccountProvider, addr common.Address, row *types.AccountResult) error {
		nonce, err := p.NonceAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		row.Nonce = &nonce
		return nil
	},
	types.AccountCode: func(ctx context.Context, p AccountProvider, addr common.Address, row *types.AccountResult) error {
		code, err := p.CodeAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		b := hexutil.Bytes(code)
		row.Code = &b
		return nil
	},
	types.AccountChain: func(ctx context.Context, p AccountProvider, _ common.Address, row *types.AccountResult) error {
		info, err := p.ChainInfo(ctx)
		if err != nil {
			return err
		}
		row.Chain = &info
		return nil
	},
}

// AccountResolver resolves account ids on a single chain
type AccountResolver struct {
	names   NameResolver
	config  *Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewAccountResolver creates an account resolver. names may be nil when
// callers only pass addresses.
func NewAccountResolver(names NameResolver, config *Config, m *metrics.Metrics, logger *zap.Logger) *AccountResolver {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountResolver{
		names:   names,
		config:  config,
		metrics: m,
		logger:  logger.Named("accounts"),
	}
}

// Resolve returns one row per id, results[i] for ids[i]. Ids resolve
// concurrently and the first failure aborts the whole batch.
func (r *AccountResolver) Resolve(ctx context.Context, ids []types.EntityID, fields []types.AccountField, p AccountProvider) (results []*types.AccountResult, err error) {
	started := time.Now()
	defer func() {
		r.metrics.ObserveQuery(types.AccountEntity.String(), len(results), err, started)
	}()

	accounts, err := accountsOf(ids)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if _, ok := accountFetchers[f]; !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrUnknownField, f)
		}
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.accounts")
	span.SetAttributes(
		attribute.Int("ids", len(ids)),
		attribute.Int("fields", len(fields)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	results = make([]*types.AccountResult, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.limit())
	for i, account := range accounts {
		g.Go(func() error {
			row, err := r.resolveOne(gctx, account, fields, p)
			if err != nil {
				return err
			}
			results[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("resolved accounts",
		zap.Int("ids", len(ids)),
		zap.Int("fields", len(fields)))

	return results, nil
}

func (r *AccountResolver) resolveOne(ctx context.Context, account types.NameOrAddress, fields []types.AccountField, p AccountProvider) (*types.AccountResult, error) {
	addr, err := r.address(ctx, account)
	if err != nil {
		return nil, err
	}
	row := &types.AccountResult{}
	for _, f := range fields {
		if err := accountFetchers[f](ctx, p, addr, row); err != nil {
			return nil, fmt.Errorf("failed to fetch %s of %s: %w", f, account, err)
		}
	}
	return row, nil
}

func (r *AccountResolver) address(ctx context.Context, account types.NameOrAddress) (common.Address, error) {
	if addr, ok := account.Address(); ok {
		return addr, nil
	}
	if r.names == nil {
		return common.Address{}, fmt.Errorf("%w: %s: no name resolver configured", ErrNameResolution, account)
	}
	addr, err := r.names.Resolve(ctx, account)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %w", ErrNameResolution, account, err)
	}
	return addr, nil
}

// ResolveNames returns ids with every name replaced by its address. Each
// distinct name is looked up once and addresses pass through untouched.
func (r *AccountResolver) ResolveNames(ctx context.Context, ids []types.EntityID) ([]types.EntityID, error) {
	accounts, err := accountsOf(ids)
	if err != nil {
		return nil, err
	}

	var names []types.NameOrAddress
	index := make(map[string]int)
	for _, account := range accounts {
		name, ok := account.Name()
		if !ok {
			continue
		}
		if _, seen := index[name]; !seen {
			index[name] = len(names)
			names = append(names, account)
		}
	}
	if len(names) == 0 {
		return ids, nil
	}

	addrs := make([]common.Address, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.limit())
	for i, name := range names {
		g.Go(func() error {
			addr, err := r.address(gctx, name)
			if err != nil {
				return err
			}
			addrs[i] = addr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]types.EntityID, len(ids))
	for i, account := range accounts {
		if name, ok := account.Name(); ok {
			account = types.NewAddress(addrs[index[name]])
		}
		out[i] = types.NewAccountID(account)
	}

	r.logger.Debug("resolved names", zap.Int("names", len(names)))
	return out, nil
}

// accountsOf checks every id before any remote call is made
func accountsOf(ids []types.EntityID) ([]types.NameOrAddress, error) {
	accounts := make([]types.NameOrAddress, len(ids))
	for i, id := range ids {
		account, ok := id.Account()
		if !ok {
			return nil, &EntityMismatchError{Index: i, Expected: types.AccountEntity, Got: id}
		}
		accounts[i] = account
	}
	return accounts, nil
}
