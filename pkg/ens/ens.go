// Package ens resolves ENS names to addresses. Names are always looked up on
// a single canonical chain, whatever network the surrounding query targets.
package ens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/0xmhha/chainquery/internal/constants"
	"github.com/0xmhha/chainquery/pkg/types"
)

var (
	// ErrNameNotFound is returned when a name has no resolver or no address record
	ErrNameNotFound = errors.New("ens name not found")
	// ErrInvalidName is returned for names with empty labels
	ErrInvalidName = errors.New("invalid ens name")
)

// registry and public resolver methods used for forward resolution
const lookupABI = `[
	{"name":"resolver","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"addr","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
]`

var parsedABI = mustParseABI(lookupABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("ens: invalid lookup abi: %v", err))
	}
	return parsed
}

// ContractCaller executes read-only calls on the canonical chain
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DialFunc connects to the canonical chain
type DialFunc func(ctx context.Context) (ContractCaller, error)

// Config holds name resolver configuration
type Config struct {
	// Registry is the ENS registry address on the canonical chain
	Registry common.Address
}

// DefaultConfig returns the mainnet registry configuration
func DefaultConfig() *Config {
	return &Config{Registry: common.HexToAddress(constants.DefaultENSRegistry)}
}

// Resolver resolves names through the ENS registry. The canonical chain is
// dialed on first use and reused afterwards.
type Resolver struct {
	dial     DialFunc
	registry common.Address
	logger   *zap.Logger

	mu     sync.Mutex
	caller ContractCaller
}

// NewResolver creates a name resolver. A nil config uses DefaultConfig.
func NewResolver(dial DialFunc, config *Config, logger *zap.Logger) *Resolver {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		dial:     dial,
		registry: config.Registry,
		logger:   logger.Named("ens"),
	}
}

// Resolve returns the address of an account. Addresses are returned as is
// without touching the network.
func (r *Resolver) Resolve(ctx context.Context, account types.NameOrAddress) (common.Address, error) {
	if addr, ok := account.Address(); ok {
		return addr, nil
	}
	name, _ := account.Name()
	return r.ResolveName(ctx, name)
}

// ResolveName looks up the address record of name
func (r *Resolver) ResolveName(ctx context.Context, name string) (common.Address, error) {
	node, err := NameHash(name)
	if err != nil {
		return common.Address{}, err
	}

	caller, err := r.canonical(ctx)
	if err != nil {
		return common.Address{}, err
	}

	resolver, err := r.callAddress(ctx, caller, r.registry, "resolver", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to look up resolver of %s: %w", name, err)
	}
	if resolver == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no resolver", ErrNameNotFound, name)
	}

	addr, err := r.callAddress(ctx, caller, resolver, "addr", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to look up address of %s: %w", name, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no address record", ErrNameNotFound, name)
	}

	r.logger.Debug("resolved ens name",
		zap.String("name", name),
		zap.String("address", addr.Hex()))

	return addr, nil
}

// canonical dials the canonical chain once; a failed dial is retried on the next call
func (r *Resolver) canonical(ctx context.Context) (ContractCaller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.caller != nil {
		return r.caller, nil
	}
	if r.dial == nil {
		return nil, fmt.Errorf("no canonical chain configured for ens")
	}
	caller, err := r.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to dial canonical chain: %w", err)
	}
	r.caller = caller
	return caller, nil
}

func (r *Resolver) callAddress(ctx context.Context, caller ContractCaller, to common.Address, method string, node common.Hash) (common.Address, error) {
	data, err := parsedABI.Pack(method, [32]byte(node))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	// no contract at the target
	if len(out) == 0 {
		return common.Address{}, nil
	}
	values, err := parsedABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected %s output length %d", method, len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s output type %T", method, values[0])
	}
	return addr, nil
}

// NameHash computes the EIP-137 node of a name. Labels are lower-cased.
func NameHash(name string) (common.Hash, error) {
	var node common.Hash
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return node, nil
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		if labels[i] == "" {
			return common.Hash{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		label := crypto.Keccak256Hash([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label.Bytes())
	}
	return node, nil
}
