package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// AccountResult is one row of an account query. A slot is set only when its
// field was requested and the source reported a value.
type AccountResult struct {
	Address *common.Address `json:"address,omitempty"`
	Balance *big.Int        `json:"balance,omitempty"`
	Nonce   *uint64         `json:"nonce,omitempty"`
	Code    *hexutil.Bytes  `json:"code,omitempty"`
	Chain   *chain.Info     `json:"chain,omitempty"`
}

// TransactionResult is one row of a transaction query. A slot is set only when
// its field was requested and the source reported a value.
type TransactionResult struct {
	Type                 *uint8          `json:"type,omitempty"`
	Hash                 *common.Hash    `json:"hash,omitempty"`
	From                 *common.Address `json:"from,omitempty"`
	To                   *common.Address `json:"to,omitempty"`
	Data                 *hexutil.Bytes  `json:"data,omitempty"`
	Value                *big.Int        `json:"value,omitempty"`
	GasPrice             *big.Int        `json:"gas_price,omitempty"`
	Gas                  *uint64         `json:"gas,omitempty"`
	Status               *bool           `json:"status,omitempty"`
	ChainID              *big.Int        `json:"chain_id,omitempty"`
	V                    *big.Int        `json:"v,omitempty"`
	R                    *big.Int        `json:"r,omitempty"`
	S                    *big.Int        `json:"s,omitempty"`
	MaxFeePerBlobGas     *big.Int        `json:"max_fee_per_blob_gas,omitempty"`
	MaxFeePerGas         *big.Int        `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas *big.Int        `json:"max_priority_fee_per_gas,omitempty"`
	YParity              *bool           `json:"y_parity,omitempty"`
	Chain                *chain.Info     `json:"chain,omitempty"`

	blockNumber *uint64
}

// SetBlockNumber records the containing block for membership checks
func (r *TransactionResult) SetBlockNumber(n uint64) {
	r.blockNumber = &n
}

// BlockNumber returns the containing block, false for pending transactions
func (r *TransactionResult) BlockNumber() (uint64, bool) {
	if r.blockNumber == nil {
		return 0, false
	}
	return *r.blockNumber, true
}

// Clear unsets the slot of a single field
func (r *TransactionResult) Clear(f TransactionField) {
	switch f {
	case TxType:
		r.Type = nil
	case TxHash:
		r.Hash = nil
	case TxFrom:
		r.From = nil
	case TxTo:
		r.To = nil
	case TxData:
		r.Data = nil
	case TxValue:
		r.Value = nil
	case TxGasPrice:
		r.GasPrice = nil
	case TxGas:
		r.Gas = nil
	case TxStatus:
		r.Status = nil
	case TxChainID:
		r.ChainID = nil
	case TxV:
		r.V = nil
	case TxR:
		r.R = nil
	case TxS:
		r.S = nil
	case TxMaxFeePerBlobGas:
		r.MaxFeePerBlobGas = nil
	case TxMaxFeePerGas:
		r.MaxFeePerGas = nil
	case TxMaxPriorityFeePerGas:
		r.MaxPriorityFeePerGas = nil
	case TxYParity:
		r.YParity = nil
	case TxChain:
		r.Chain = nil
	}
}

// Retain clears every slot whose field is not listed
func (r *TransactionResult) Retain(fields []TransactionField) {
	keep := make(map[TransactionField]struct{}, len(fields))
	for _, f := range fields {
		keep[f] = struct{}{}
	}
	for _, f := range AllTransactionFields() {
		if _, ok := keep[f]; !ok {
			r.Clear(f)
		}
	}
}

// Get returns the value held by a slot and whether it is set.
// Numeric slots are returned as *big.Int so callers compare them uniformly.
func (r *TransactionResult) Get(f TransactionField) (any, bool) {
	switch f {
	case TxType:
		if r.Type != nil {
			return new(big.Int).SetUint64(uint64(*r.Type)), true
		}
	case TxHash:
		if r.Hash != nil {
			return *r.Hash, true
		}
	case TxFrom:
		if r.From != nil {
			return *r.From, true
		}
	case TxTo:
		if r.To != nil {
			return *r.To, true
		}
	case TxData:
		if r.Data != nil {
			return []byte(*r.Data), true
		}
	case TxGas:
		if r.Gas != nil {
			return new(big.Int).SetUint64(*r.Gas), true
		}
	case TxStatus:
		if r.Status != nil {
			return *r.Status, true
		}
	case TxYParity:
		if r.YParity != nil {
			return *r.YParity, true
		}
	case TxChain:
		if r.Chain != nil {
			return r.Chain.Name, true
		}
	default:
		if v := r.bigSlot(f); v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r *TransactionResult) bigSlot(f TransactionField) *big.Int {
	switch f {
	case TxValue:
		return r.Value
	case TxGasPrice:
		return r.GasPrice
	case TxChainID:
		return r.ChainID
	case TxV:
		return r.V
	case TxR:
		return r.R
	case TxS:
		return r.S
	case TxMaxFeePerBlobGas:
		return r.MaxFeePerBlobGas
	case TxMaxFeePerGas:
		return r.MaxFeePerGas
	case TxMaxPriorityFeePerGas:
		return r.MaxPriorityFeePerGas
	}
	return nil
}
