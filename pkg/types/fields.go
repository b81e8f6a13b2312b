package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownField is returned when a field name does not match any known field
var ErrUnknownField = errors.New("unknown field")

// AccountField is a projectable attribute of an account
type AccountField uint8

const (
	AccountAddress AccountField = iota
	AccountBalance
	AccountNonce
	AccountCode
	AccountChain
)

var accountFieldNames = [...]string{
	AccountAddress: "address",
	AccountBalance: "balance",
	AccountNonce:   "nonce",
	AccountCode:    "code",
	AccountChain:   "chain",
}

// AllAccountFields returns every account field in declaration order
func AllAccountFields() []AccountField {
	fields := make([]AccountField, len(accountFieldNames))
	for i := range accountFieldNames {
		fields[i] = AccountField(i)
	}
	return fields
}

func (f AccountField) String() string {
	if int(f) < len(accountFieldNames) {
		return accountFieldNames[f]
	}
	return fmt.Sprintf("AccountField(%d)", uint8(f))
}

// ParseAccountField maps a field name to its AccountField
func ParseAccountField(s string) (AccountField, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range accountFieldNames {
		if n == name {
			return AccountField(i), nil
		}
	}
	return 0, fmt.Errorf("%w: account field %q", ErrUnknownField, s)
}

// ParseAccountFields parses a list of names. "all" expands to every field.
func ParseAccountFields(names []string) ([]AccountField, error) {
	var fields []AccountField
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), "all") {
			return AllAccountFields(), nil
		}
		f, err := ParseAccountField(n)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// MarshalText implements encoding.TextMarshaler
func (f AccountField) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *AccountField) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountField(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// TransactionField is a projectable attribute of a transaction
type TransactionField uint8

const (
	TxType TransactionField = iota
	TxHash
	TxFrom
	TxTo
	TxData
	TxValue
	TxGasPrice
	TxGas
	TxStatus
	TxChainID
	TxV
	TxR
	TxS
	TxMaxFeePerBlobGas
	TxMaxFeePerGas
	TxMaxPriorityFeePerGas
	TxYParity
	TxChain
)

var transactionFieldNames = [...]string{
	TxType:                 "type",
	TxHash:                 "hash",
	TxFrom:                 "from",
	TxTo:                   "to",
	TxData:                 "data",
	TxValue:                "value",
	TxGasPrice:             "gas_price",
	TxGas:                  "gas",
	TxStatus:               "status",
	TxChainID:              "chain_id",
	TxV:                    "v",
	TxR:                    "r",
	TxS:                    "s",
	TxMaxFeePerBlobGas:     "max_fee_per_blob_gas",
	TxMaxFeePerGas:         "max_fee_per_gas",
	TxMaxPriorityFeePerGas: "max_priority_fee_per_gas",
	TxYParity:              "y_parity",
	TxChain:                "chain",
}

// AllTransactionFields returns every transaction field in declaration order
func AllTransactionFields() []TransactionField {
	fields := make([]TransactionField, len(transactionFieldNames))
	for i := range transactionFieldNames {
		fields[i] = TransactionField(i)
	}
	return fields
}

func (f TransactionField) String() string {
	if int(f) < len(transactionFieldNames) {
		return transactionFieldNames[f]
	}
	return fmt.Sprintf("TransactionField(%d)", uint8(f))
}

// ParseTransactionField maps a field name to its TransactionField.
// camelCase spellings used by JSON-RPC (gasPrice, chainId) are accepted too.
func ParseTransactionField(s string) (TransactionField, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range transactionFieldNames {
		if n == name || strings.ReplaceAll(n, "_", "") == name {
			return TransactionField(i), nil
		}
	}
	switch name {
	case "input":
		return TxData, nil
	case "gas_limit", "gaslimit":
		return TxGas, nil
	}
	return 0, fmt.Errorf("%w: transaction field %q", ErrUnknownField, s)
}

// ParseTransactionFields parses a list of names. "all" expands to every field.
func ParseTransactionFields(names []string) ([]TransactionField, error) {
	var fields []TransactionField
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), "all") {
			return AllTransactionFields(), nil
		}
		f, err := ParseTransactionField(n)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// MarshalText implements encoding.TextMarshaler
func (f TransactionField) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *TransactionField) UnmarshalText(text []byte) error {
	parsed, err := ParseTransactionField(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
