package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transaction is a transaction as reported by eth_getTransactionByHash or a
// full block body: the signed envelope plus the node-supplied context.
//
// Tx is nil for envelope types go-ethereum cannot decode (for example OP-stack
// deposit transactions); the generic fields are then served from the raw JSON.
type Transaction struct {
	Tx          *types.Transaction
	From        common.Address
	BlockNumber *uint64
	BlockHash   *common.Hash
	// GasPrice is the effective gas price reported by the node, if any
	GasPrice *big.Int

	foreign *foreignTx
}

// foreignTx holds the generic fields of an envelope type unknown to go-ethereum
type foreignTx struct {
	Type    hexutil.Uint64  `json:"type"`
	Hash    common.Hash     `json:"hash"`
	To      *common.Address `json:"to"`
	Input   hexutil.Bytes   `json:"input"`
	Value   *hexutil.Big    `json:"value"`
	Gas     hexutil.Uint64  `json:"gas"`
	ChainID *hexutil.Big    `json:"chainId"`
}

// rpcExtra carries the fields that are not part of the signed envelope
type rpcExtra struct {
	From        *common.Address `json:"from"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	BlockHash   *common.Hash    `json:"blockHash"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
}

// UnmarshalJSON decodes the envelope with go-ethereum and the context fields separately
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var extra rpcExtra
	if err := json.Unmarshal(data, &extra); err != nil {
		return fmt.Errorf("failed to decode transaction context: %w", err)
	}

	*t = Transaction{}
	tx := new(types.Transaction)
	if err := tx.UnmarshalJSON(data); err != nil {
		if !errors.Is(err, types.ErrTxTypeNotSupported) {
			return fmt.Errorf("failed to decode transaction: %w", err)
		}
		foreign := new(foreignTx)
		if err := json.Unmarshal(data, foreign); err != nil {
			return fmt.Errorf("failed to decode transaction: %w", err)
		}
		t.foreign = foreign
	} else {
		t.Tx = tx
	}

	if extra.From != nil {
		t.From = *extra.From
	}
	if extra.BlockNumber != nil {
		n := extra.BlockNumber.ToInt().Uint64()
		t.BlockNumber = &n
	}
	t.BlockHash = extra.BlockHash
	if extra.GasPrice != nil {
		t.GasPrice = extra.GasPrice.ToInt()
	}
	return nil
}

// MarshalJSON re-encodes the envelope merged with the context fields
func (t *Transaction) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any)
	var base []byte
	var err error
	if t.Tx != nil {
		base, err = t.Tx.MarshalJSON()
	} else if t.foreign != nil {
		base, err = json.Marshal(t.foreign)
	}
	if err != nil {
		return nil, err
	}
	if base != nil {
		if err := json.Unmarshal(base, &fields); err != nil {
			return nil, err
		}
	}
	fields["from"] = t.From
	if t.BlockNumber != nil {
		fields["blockNumber"] = hexutil.Uint64(*t.BlockNumber)
	}
	if t.BlockHash != nil {
		fields["blockHash"] = t.BlockHash
	}
	if t.GasPrice != nil {
		fields["gasPrice"] = (*hexutil.Big)(t.GasPrice)
	}
	return json.Marshal(fields)
}

// Type returns the EIP-2718 envelope type
func (t *Transaction) Type() uint8 {
	if t.Tx != nil {
		return t.Tx.Type()
	}
	if t.foreign != nil {
		return uint8(t.foreign.Type)
	}
	return 0
}

// Hash returns the transaction hash
func (t *Transaction) Hash() common.Hash {
	if t.Tx != nil {
		return t.Tx.Hash()
	}
	if t.foreign != nil {
		return t.foreign.Hash
	}
	return common.Hash{}
}

// To returns the recipient, nil for contract creation
func (t *Transaction) To() *common.Address {
	if t.Tx != nil {
		return t.Tx.To()
	}
	if t.foreign != nil {
		return t.foreign.To
	}
	return nil
}

// Data returns the call data
func (t *Transaction) Data() []byte {
	if t.Tx != nil {
		return t.Tx.Data()
	}
	if t.foreign != nil {
		return t.foreign.Input
	}
	return nil
}

// Value returns the transferred amount in wei
func (t *Transaction) Value() *big.Int {
	if t.Tx != nil {
		return t.Tx.Value()
	}
	if t.foreign != nil && t.foreign.Value != nil {
		return t.foreign.Value.ToInt()
	}
	return nil
}

// Gas returns the gas limit
func (t *Transaction) Gas() uint64 {
	if t.Tx != nil {
		return t.Tx.Gas()
	}
	if t.foreign != nil {
		return uint64(t.foreign.Gas)
	}
	return 0
}

// ChainID returns the replay-protection chain id, or nil when the envelope has none
func (t *Transaction) ChainID() *big.Int {
	if t.Tx != nil {
		id := t.Tx.ChainId()
		if id == nil || id.Sign() == 0 {
			return nil
		}
		return id
	}
	if t.foreign != nil && t.foreign.ChainID != nil {
		return t.foreign.ChainID.ToInt()
	}
	return nil
}

// EffectiveGasPrice prefers the node-reported price over the envelope's
func (t *Transaction) EffectiveGasPrice() *big.Int {
	if t.GasPrice != nil {
		return t.GasPrice
	}
	if t.Tx != nil {
		return t.Tx.GasPrice()
	}
	return nil
}
