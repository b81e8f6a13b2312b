package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/chainquery/pkg/metrics"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// Client wraps Ethereum JSON-RPC client with throttling, per-call timeouts and metrics
type Client struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	endpoint  string
	chain     chain.Chain
	chainID   *big.Int
	timeout   time.Duration
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	logger    *zap.Logger

	infoOnce sync.Once
	info     chain.Info
}

// Config holds client configuration
type Config struct {
	Endpoint string
	// Chain names the catalogue network behind Endpoint, if known
	Chain chain.Chain
	// Timeout bounds dialing and every individual call
	Timeout time.Duration
	Limiter *rate.Limiter
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// NewClient creates a new Ethereum client
func NewClient(cfg *Config) (*Client, error) {
	return Dial(context.Background(), cfg)
}

// Dial connects to the endpoint and verifies it by reading the chain id
func Dial(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	client := &Client{
		ethClient: ethclient.NewClient(rpcClient),
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		chain:     cfg.Chain,
		timeout:   cfg.Timeout,
		limiter:   cfg.Limiter,
		metrics:   cfg.Metrics,
		logger:    logger,
	}

	// Verify connection
	chainID, err := client.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}
	client.chainID = chainID

	logger.Info("connected to Ethereum RPC",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("chain_id", chainID.String()))

	return client, nil
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ChainID(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// Endpoint returns the RPC URL the client is connected to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// call throttles, bounds and instruments a single remote operation
func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	err := fn(ctx)
	c.metrics.ObserveRPC(method, err, started)
	return err
}

// ChainID returns the chain ID
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := c.call(ctx, "eth_chainId", func(ctx context.Context) error {
		var err error
		chainID, err = c.ethClient.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return chainID, nil
}

// ChainInfo describes the network behind the client. The catalogue name is
// used when known; otherwise the chain id reported at dial time is looked up.
func (c *Client) ChainInfo(ctx context.Context) (chain.Info, error) {
	c.infoOnce.Do(func() {
		if c.chain.Known() {
			c.info = chain.InfoFor(c.chain, c.endpoint)
			return
		}
		var id uint64
		if c.chainID != nil {
			id = c.chainID.Uint64()
		}
		if known, err := chain.FromID(id); err == nil {
			c.info = chain.InfoFor(known, c.endpoint)
			return
		}
		c.info = chain.Info{Name: "chain-" + strconv.FormatUint(id, 10), ID: id, RPCURL: c.endpoint}
	})
	return c.info, nil
}

// BalanceAt returns the balance of an account at a specific block number
// If blockNumber is nil, returns the balance at the latest block
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := c.call(ctx, "eth_getBalance", func(ctx context.Context) error {
		var err error
		balance, err = c.ethClient.BalanceAt(ctx, account, blockNumber)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s at block %v: %w", account.Hex(), blockNumber, err)
	}
	return balance, nil
}

// NonceAt returns the transaction count of an account at a specific block number
func (c *Client) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		var err error
		nonce, err = c.ethClient.NonceAt(ctx, account, blockNumber)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce for %s at block %v: %w", account.Hex(), blockNumber, err)
	}
	return nonce, nil
}

// CodeAt returns the contract code of an account at a specific block number
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	var code []byte
	err := c.call(ctx, "eth_getCode", func(ctx context.Context) error {
		var err error
		code, err = c.ethClient.CodeAt(ctx, account, blockNumber)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get code for %s at block %v: %w", account.Hex(), blockNumber, err)
	}
	return code, nil
}

// CallContract executes a read-only message call
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.call(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.CallContract(ctx, msg, blockNumber)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call contract %v: %w", msg.To, err)
	}
	return out, nil
}

// TransactionByHash fetches a transaction with its node-reported context.
// It returns nil without error when the node does not know the hash.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	var raw json.RawMessage
	err := c.call(ctx, "eth_getTransactionByHash", func(ctx context.Context) error {
		return c.rpcClient.CallContext(ctx, &raw, "eth_getTransactionByHash", hash)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
	}
	if isNull(raw) {
		return nil, nil
	}

	tx := new(types.Transaction)
	if err := json.Unmarshal(raw, tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", hash.Hex(), err)
	}
	return tx, nil
}

// TransactionReceipt fetches a transaction receipt.
// It returns nil without error when no receipt exists yet.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	var receipt *gethtypes.Receipt
	err := c.call(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
		var err error
		receipt, err = c.ethClient.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			receipt, err = nil, nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// BlockByNumber fetches a block by number or tag. With full set the block
// carries transaction bodies, otherwise only their hashes.
// It returns nil without error when the block does not exist.
func (c *Client) BlockByNumber(ctx context.Context, number rpc.BlockNumber, full bool) (*types.Block, error) {
	var raw json.RawMessage
	err := c.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		return c.rpcClient.CallContext(ctx, &raw, "eth_getBlockByNumber", blockArg(number), full)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", types.FormatBlockNumber(number), err)
	}
	if isNull(raw) {
		return nil, nil
	}

	block := new(types.Block)
	if err := json.Unmarshal(raw, block); err != nil {
		return nil, fmt.Errorf("failed to decode block %s: %w", types.FormatBlockNumber(number), err)
	}
	return block, nil
}

// BatchBlocksByNumber fetches multiple blocks in a single batch request.
// Blocks unknown to the node are returned as nil entries.
func (c *Client) BatchBlocksByNumber(ctx context.Context, numbers []uint64, full bool) ([]*types.Block, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	blocks := make([]*types.Block, len(numbers))
	batch := make([]rpc.BatchElem, len(numbers))

	for i, num := range numbers {
		batch[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{hexutil.EncodeUint64(num), full},
			Result: &blocks[i],
		}
	}

	err := c.call(ctx, "eth_getBlockByNumber_batch", func(ctx context.Context) error {
		return c.rpcClient.BatchCallContext(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("batch call failed: %w", err)
	}

	// Check for individual errors
	for i, elem := range batch {
		if elem.Error != nil {
			c.logger.Error("failed to fetch block in batch",
				zap.Uint64("block_number", numbers[i]),
				zap.Error(elem.Error))
			return nil, fmt.Errorf("failed to fetch block %d: %w", numbers[i], elem.Error)
		}
	}

	c.logger.Debug("batch block fetch completed",
		zap.Int("blocks", len(numbers)),
		zap.Bool("full", full))

	return blocks, nil
}

// blockArg encodes a block number the way eth_getBlockByNumber expects
func blockArg(number rpc.BlockNumber) string {
	switch number {
	case rpc.LatestBlockNumber:
		return "latest"
	case rpc.PendingBlockNumber:
		return "pending"
	case rpc.SafeBlockNumber:
		return "safe"
	case rpc.FinalizedBlockNumber:
		return "finalized"
	}
	if number < 0 {
		return "earliest"
	}
	return hexutil.EncodeUint64(uint64(number))
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
