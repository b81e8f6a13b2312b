package testutil

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key returns a deterministic private key for test account i
func Key(i int) *ecdsa.PrivateKey {
	seed := crypto.Keccak256([]byte(fmt.Sprintf("chainquery-test-key-%d", i)))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		panic(err)
	}
	return key
}

// KeyAddress returns the address of Key(i)
func KeyAddress(i int) common.Address {
	return crypto.PubkeyToAddress(Key(i).PublicKey)
}

// BlockHash returns the deterministic hash FakeChain assigns to a block
func BlockHash(number uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	return crypto.Keccak256Hash([]byte("block"), buf[:])
}

// Tx is a signed transaction fixture with its sender and optional receipt status
type Tx struct {
	Tx   *types.Transaction
	From common.Address
	// GasPrice overrides the node-reported gasPrice; defaults to the envelope's
	GasPrice *big.Int
	// Status is the receipt status; nil serves no receipt
	Status *uint64

	block *uint64
}

// Hash returns the transaction hash
func (tx *Tx) Hash() common.Hash {
	return tx.Tx.Hash()
}

// SignTx signs inner with Key(keyIndex) for chainID and gives it a successful receipt
func SignTx(t *testing.T, keyIndex int, chainID uint64, inner types.TxData) *Tx {
	t.Helper()
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	tx, err := types.SignNewTx(Key(keyIndex), signer, inner)
	if err != nil {
		t.Fatalf("failed to sign test transaction: %v", err)
	}
	status := types.ReceiptStatusSuccessful
	return &Tx{Tx: tx, From: KeyAddress(keyIndex), Status: &status}
}

// WithStatus sets the receipt status
func (tx *Tx) WithStatus(status uint64) *Tx {
	tx.Status = &status
	return tx
}

// WithoutReceipt makes the node answer null for the receipt
func (tx *Tx) WithoutReceipt() *Tx {
	tx.Status = nil
	return tx
}

// RPCJSON renders the transaction as a node would in eth_getTransactionByHash
func (tx *Tx) RPCJSON() json.RawMessage {
	raw, err := tx.Tx.MarshalJSON()
	if err != nil {
		panic(err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		panic(err)
	}
	fields["from"] = tx.From.Hex()
	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice = tx.Tx.GasPrice()
	}
	fields["gasPrice"] = hexutil.EncodeBig(gasPrice)
	if tx.block != nil {
		fields["blockNumber"] = hexutil.EncodeUint64(*tx.block)
		fields["blockHash"] = BlockHash(*tx.block).Hex()
	} else {
		fields["blockNumber"] = nil
		fields["blockHash"] = nil
	}
	out, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	return out
}

// ReceiptJSON renders a minimal receipt accepted by go-ethereum
func ReceiptJSON(txHash common.Hash, blockNumber, status uint64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"blockHash":"%s",
		"blockNumber":"%s",
		"contractAddress":null,
		"cumulativeGasUsed":"0x5208",
		"effectiveGasPrice":"0x3b9aca00",
		"gasUsed":"0x5208",
		"logs":[],
		"logsBloom":"0x%s",
		"status":"%s",
		"transactionHash":"%s",
		"transactionIndex":"0x0",
		"type":"0x0"
	}`, BlockHash(blockNumber).Hex(), hexutil.EncodeUint64(blockNumber),
		strings.Repeat("00", 256), hexutil.EncodeUint64(status), txHash.Hex()))
}

// CallFunc answers eth_call for one contract
type CallFunc func(data []byte) ([]byte, error)

// FakeChain is an in-memory EVM node served over the mock JSON-RPC server
type FakeChain struct {
	ChainID uint64

	mu        sync.RWMutex
	head      uint64
	blocks    map[uint64][]*Tx
	hashOnly  map[uint64]bool
	txs       map[common.Hash]*Tx
	balances  map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	codes     map[common.Address][]byte
	contracts map[common.Address]CallFunc
}

// NewFakeChain creates an empty chain with the given chain id
func NewFakeChain(chainID uint64) *FakeChain {
	return &FakeChain{
		ChainID:   chainID,
		blocks:    make(map[uint64][]*Tx),
		hashOnly:  make(map[uint64]bool),
		txs:       make(map[common.Hash]*Tx),
		balances:  make(map[common.Address]*big.Int),
		nonces:    make(map[common.Address]uint64),
		codes:     make(map[common.Address][]byte),
		contracts: make(map[common.Address]CallFunc),
	}
}

// AddBlock stores a block with the given transactions and advances the head
func (c *FakeChain) AddBlock(number uint64, txs ...*Tx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range txs {
		n := number
		tx.block = &n
		c.txs[tx.Hash()] = tx
	}
	c.blocks[number] = txs
	if number > c.head {
		c.head = number
	}
}

// AddPending stores a transaction that is not yet in a block
func (c *FakeChain) AddPending(tx *Tx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx.block = nil
	c.txs[tx.Hash()] = tx
}

// ServeHashOnly makes the node ignore the full flag for a block and return hashes
func (c *FakeChain) ServeHashOnly(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashOnly[number] = true
}

// SetAccount sets the balance, nonce and code of an address
func (c *FakeChain) SetAccount(addr common.Address, balance *big.Int, nonce uint64, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = balance
	c.nonces[addr] = nonce
	c.codes[addr] = code
}

// SetContract installs the eth_call behaviour of a contract address
func (c *FakeChain) SetContract(addr common.Address, fn CallFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[addr] = fn
}

// Head returns the highest stored block number
func (c *FakeChain) Head() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// Serve starts a mock server backed by the chain
func (c *FakeChain) Serve(t *testing.T) *MockRPC {
	t.Helper()
	return NewMockRPC(t, c.Handlers())
}

// Handlers returns the JSON-RPC methods the chain answers
func (c *FakeChain) Handlers() map[string]MethodHandler {
	return map[string]MethodHandler{
		"eth_chainId":               ChainIDHandler(c.ChainID),
		"eth_blockNumber":           c.blockNumber,
		"eth_getBlockByNumber":      c.getBlockByNumber,
		"eth_getTransactionByHash":  c.getTransactionByHash,
		"eth_getTransactionReceipt": c.getTransactionReceipt,
		"eth_getBalance":            c.getBalance,
		"eth_getTransactionCount":   c.getTransactionCount,
		"eth_getCode":               c.getCode,
		"eth_call":                  c.call,
	}
}

func (c *FakeChain) blockNumber(_ json.RawMessage) (json.RawMessage, *RPCError) {
	return hexUint(c.Head()), nil
}

func (c *FakeChain) getBlockByNumber(params json.RawMessage) (json.RawMessage, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) != 2 {
		return nil, invalidParams("expected [block, full]")
	}
	var tag string
	var full bool
	if err := json.Unmarshal(args[0], &tag); err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := json.Unmarshal(args[1], &full); err != nil {
		return nil, invalidParams(err.Error())
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var number uint64
	switch tag {
	case "latest", "pending", "safe", "finalized":
		number = c.head
	case "earliest":
		number = 0
	default:
		n, err := hexutil.DecodeUint64(tag)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
		number = n
	}

	txs, ok := c.blocks[number]
	if !ok {
		return json.RawMessage("null"), nil
	}

	entries := make([]json.RawMessage, len(txs))
	for i, tx := range txs {
		if full && !c.hashOnly[number] {
			entries[i] = tx.RPCJSON()
		} else {
			entries[i] = mustJSON(tx.Hash().Hex())
		}
	}
	parent := common.Hash{}
	if number > 0 {
		parent = BlockHash(number - 1)
	}
	block := map[string]any{
		"number":       hexutil.EncodeUint64(number),
		"hash":         BlockHash(number).Hex(),
		"parentHash":   parent.Hex(),
		"timestamp":    hexutil.EncodeUint64(1_600_000_000 + number*12),
		"transactions": entries,
	}
	return mustJSON(block), nil
}

func (c *FakeChain) getTransactionByHash(params json.RawMessage) (json.RawMessage, *RPCError) {
	hash, rpcErr := hashParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.txs[hash]
	if !ok {
		return json.RawMessage("null"), nil
	}
	return tx.RPCJSON(), nil
}

func (c *FakeChain) getTransactionReceipt(params json.RawMessage) (json.RawMessage, *RPCError) {
	hash, rpcErr := hashParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.txs[hash]
	if !ok || tx.Status == nil || tx.block == nil {
		return json.RawMessage("null"), nil
	}
	return ReceiptJSON(hash, *tx.block, *tx.Status), nil
}

func (c *FakeChain) getBalance(params json.RawMessage) (json.RawMessage, *RPCError) {
	addr, rpcErr := addressParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	balance := c.balances[addr]
	if balance == nil {
		balance = new(big.Int)
	}
	return mustJSON(hexutil.EncodeBig(balance)), nil
}

func (c *FakeChain) getTransactionCount(params json.RawMessage) (json.RawMessage, *RPCError) {
	addr, rpcErr := addressParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return hexUint(c.nonces[addr]), nil
}

func (c *FakeChain) getCode(params json.RawMessage) (json.RawMessage, *RPCError) {
	addr, rpcErr := addressParam(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return mustJSON(hexutil.Encode(c.codes[addr])), nil
}

func (c *FakeChain) call(params json.RawMessage) (json.RawMessage, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, invalidParams("expected [call, block]")
	}
	var msg struct {
		To    *common.Address `json:"to"`
		Input *hexutil.Bytes  `json:"input"`
		Data  *hexutil.Bytes  `json:"data"`
	}
	if err := json.Unmarshal(args[0], &msg); err != nil {
		return nil, invalidParams(err.Error())
	}
	if msg.To == nil {
		return nil, invalidParams("missing to")
	}
	var data []byte
	if msg.Input != nil {
		data = *msg.Input
	} else if msg.Data != nil {
		data = *msg.Data
	}

	c.mu.RLock()
	fn, ok := c.contracts[*msg.To]
	c.mu.RUnlock()
	if !ok {
		return mustJSON("0x"), nil
	}
	out, err := fn(data)
	if err != nil {
		return nil, &RPCError{Code: 3, Message: "execution reverted: " + err.Error()}
	}
	return mustJSON(hexutil.Encode(out)), nil
}

func hashParam(params json.RawMessage) (common.Hash, *RPCError) {
	var args []common.Hash
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return common.Hash{}, invalidParams("expected [hash]")
	}
	return args[0], nil
}

func addressParam(params json.RawMessage) (common.Address, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return common.Address{}, invalidParams("expected [address, block]")
	}
	var addr common.Address
	if err := json.Unmarshal(args[0], &addr); err != nil {
		return common.Address{}, invalidParams(err.Error())
	}
	return addr, nil
}

func invalidParams(msg string) *RPCError {
	return &RPCError{Code: -32602, Message: "invalid params: " + msg}
}

func hexUint(n uint64) json.RawMessage {
	return mustJSON(hexutil.EncodeUint64(n))
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
