package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidNameOrAddress is returned when a string is neither a hex address nor an ENS name
var ErrInvalidNameOrAddress = errors.New("invalid name or address")

// NameOrAddress identifies an account either by its 20-byte address or by an ENS name
type NameOrAddress struct {
	address common.Address
	name    string
}

// NewAddress wraps a concrete address
func NewAddress(addr common.Address) NameOrAddress {
	return NameOrAddress{address: addr}
}

// NewName wraps an ENS name. The name is not validated here.
func NewName(name string) NameOrAddress {
	return NameOrAddress{name: name}
}

// ParseNameOrAddress accepts a 0x-prefixed hex address or a dotted ENS name
func ParseNameOrAddress(s string) (NameOrAddress, error) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) && strings.HasPrefix(strings.ToLower(s), "0x") {
		return NewAddress(common.HexToAddress(s)), nil
	}
	if strings.Contains(s, ".") && !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".") {
		return NewName(s), nil
	}
	return NameOrAddress{}, fmt.Errorf("%w: %q", ErrInvalidNameOrAddress, s)
}

// Address returns the wrapped address and true when no resolution is needed
func (n NameOrAddress) Address() (common.Address, bool) {
	return n.address, n.name == ""
}

// Name returns the ENS name and true when the value must be resolved
func (n NameOrAddress) Name() (string, bool) {
	return n.name, n.name != ""
}

// IsName reports whether the value is an ENS name
func (n NameOrAddress) IsName() bool {
	return n.name != ""
}

func (n NameOrAddress) String() string {
	if n.name != "" {
		return n.name
	}
	return n.address.Hex()
}

// MarshalText implements encoding.TextMarshaler
func (n NameOrAddress) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (n *NameOrAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseNameOrAddress(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// EntityKind discriminates the variants of EntityID
type EntityKind uint8

const (
	// AccountEntity identifies an externally owned account or contract
	AccountEntity EntityKind = iota + 1
	// TransactionEntity identifies a transaction by hash
	TransactionEntity
	// BlockEntity identifies a block or a block range
	BlockEntity
)

func (k EntityKind) String() string {
	switch k {
	case AccountEntity:
		return "account"
	case TransactionEntity:
		return "transaction"
	case BlockEntity:
		return "block"
	default:
		return "unknown"
	}
}

// EntityID names one queryable on-chain entity. It is immutable once built.
type EntityID struct {
	kind    EntityKind
	account NameOrAddress
	tx      common.Hash
	block   BlockID
}

// NewAccountID builds an account entity id
func NewAccountID(account NameOrAddress) EntityID {
	return EntityID{kind: AccountEntity, account: account}
}

// NewTransactionID builds a transaction entity id
func NewTransactionID(hash common.Hash) EntityID {
	return EntityID{kind: TransactionEntity, tx: hash}
}

// NewBlockEntityID builds a block entity id
func NewBlockEntityID(id BlockID) EntityID {
	return EntityID{kind: BlockEntity, block: id}
}

// Kind returns the variant of the id
func (e EntityID) Kind() EntityKind {
	return e.kind
}

// Account returns the account identifier when the id is an account
func (e EntityID) Account() (NameOrAddress, bool) {
	return e.account, e.kind == AccountEntity
}

// Transaction returns the transaction hash when the id is a transaction
func (e EntityID) Transaction() (common.Hash, bool) {
	return e.tx, e.kind == TransactionEntity
}

// Block returns the block id when the id is a block
func (e EntityID) Block() (BlockID, bool) {
	return e.block, e.kind == BlockEntity
}

func (e EntityID) String() string {
	switch e.kind {
	case AccountEntity:
		return "account:" + e.account.String()
	case TransactionEntity:
		return "transaction:" + e.tx.Hex()
	case BlockEntity:
		return "block:" + e.block.String()
	default:
		return "unknown"
	}
}

// AccountIDs parses a list of addresses or ENS names into account entity ids
func AccountIDs(values []string) ([]EntityID, error) {
	ids := make([]EntityID, 0, len(values))
	for _, v := range values {
		account, err := ParseNameOrAddress(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, NewAccountID(account))
	}
	return ids, nil
}
