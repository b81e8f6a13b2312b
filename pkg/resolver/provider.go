// Package resolver turns entity ids, requested fields and predicates into
// result rows by fanning remote calls out over one or more chains.
package resolver

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/chainquery/internal/constants"
	"github.com/0xmhha/chainquery/pkg/fetch"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// AccountProvider is the remote capability the account resolver needs
type AccountProvider interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	ChainInfo(ctx context.Context) (chain.Info, error)
}

// TransactionProvider is the remote capability the transaction resolver needs.
// TransactionByHash returns nil for unknown hashes and TransactionReceipt
// returns nil when no receipt exists yet.
type TransactionProvider interface {
	fetch.BlockProvider
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
	ChainInfo(ctx context.Context) (chain.Info, error)
}

// Provider serves both resolvers on one chain
type Provider interface {
	AccountProvider
	TransactionProvider
}

// NameResolver turns an account into an address
type NameResolver interface {
	Resolve(ctx context.Context, account types.NameOrAddress) (common.Address, error)
}

// DialFunc returns the provider of a target
type DialFunc func(ctx context.Context, target chain.Target) (Provider, error)

// Config holds resolver configuration
type Config struct {
	// MaxConcurrency bounds in-flight ids or transactions per chain; 0 means unbounded
	MaxConcurrency int
}

// DefaultConfig returns the default resolver configuration
func DefaultConfig() *Config {
	return &Config{MaxConcurrency: constants.DefaultMaxConcurrency}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency cannot be negative")
	}
	return nil
}

// limit converts MaxConcurrency into an errgroup limit
func (c *Config) limit() int {
	if c.MaxConcurrency <= 0 {
		return -1
	}
	return c.MaxConcurrency
}
