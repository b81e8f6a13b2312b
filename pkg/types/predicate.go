package types

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrOperatorNotSupported is returned when an ordering operator is used on a field without an order
	ErrOperatorNotSupported = errors.New("operator not supported for field")
	// ErrInvalidOperator is returned for an unknown comparison symbol
	ErrInvalidOperator = errors.New("invalid operator")
	// ErrInvalidOperand is returned when a predicate value does not fit its field
	ErrInvalidOperand = errors.New("invalid operand")
)

// Operator is a comparison applied by a predicate
type Operator uint8

const (
	OpEq Operator = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
)

var operatorSymbols = [...]string{
	OpEq:  "=",
	OpNeq: "!=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func (o Operator) String() string {
	if int(o) < len(operatorSymbols) {
		return operatorSymbols[o]
	}
	return fmt.Sprintf("Operator(%d)", uint8(o))
}

// ParseOperator accepts the comparison symbols, "==" and the short words eq, neq, gt, gte, lt, lte
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "=", "==", "eq":
		return OpEq, nil
	case "!=", "<>", "neq", "ne":
		return OpNeq, nil
	case ">", "gt":
		return OpGt, nil
	case ">=", "gte", "ge":
		return OpGte, nil
	case "<", "lt":
		return OpLt, nil
	case "<=", "lte", "le":
		return OpLte, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOperator, s)
}

// ordered reports whether the operator needs a total order on its operands
func (o Operator) ordered() bool {
	return o != OpEq && o != OpNeq
}

// valueKind groups fields by how their operands are typed and compared
type valueKind uint8

const (
	kindNumeric valueKind = iota
	kindAddress
	kindHash
	kindBytes
	kindBool
	kindString
)

func fieldKind(f TransactionField) valueKind {
	switch f {
	case TxFrom, TxTo:
		return kindAddress
	case TxHash:
		return kindHash
	case TxData:
		return kindBytes
	case TxStatus, TxYParity:
		return kindBool
	case TxChain:
		return kindString
	default:
		return kindNumeric
	}
}

// Predicate constrains one transaction field. Operand holds a *big.Int for
// numeric fields, common.Address, common.Hash, []byte, bool, or a chain name string.
type Predicate struct {
	Field   TransactionField
	Op      Operator
	Operand any
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Operand)
}

// NewPredicate builds a predicate, normalising Go numeric operands to *big.Int
// and rejecting operand types or operators that do not fit the field.
func NewPredicate(field TransactionField, op Operator, operand any) (Predicate, error) {
	if int(op) >= len(operatorSymbols) {
		return Predicate{}, fmt.Errorf("%w: %d", ErrInvalidOperator, op)
	}
	kind := fieldKind(field)
	if kind != kindNumeric && op.ordered() {
		return Predicate{}, fmt.Errorf("%w: %s %s", ErrOperatorNotSupported, field, op)
	}

	var normalised any
	switch kind {
	case kindNumeric:
		n, ok := toBig(operand)
		if !ok {
			return Predicate{}, fmt.Errorf("%w: %s expects a number, got %T", ErrInvalidOperand, field, operand)
		}
		normalised = n
	case kindAddress:
		addr, ok := operand.(common.Address)
		if !ok {
			return Predicate{}, fmt.Errorf("%w: %s expects an address, got %T", ErrInvalidOperand, field, operand)
		}
		normalised = addr
	case kindHash:
		hash, ok := operand.(common.Hash)
		if !ok {
			return Predicate{}, fmt.Errorf("%w: %s expects a hash, got %T", ErrInvalidOperand, field, operand)
		}
		normalised = hash
	case kindBytes:
		switch b := operand.(type) {
		case []byte:
			normalised = b
		case hexutil.Bytes:
			normalised = []byte(b)
		default:
			return Predicate{}, fmt.Errorf("%w: %s expects bytes, got %T", ErrInvalidOperand, field, operand)
		}
	case kindBool:
		b, ok := operand.(bool)
		if !ok {
			return Predicate{}, fmt.Errorf("%w: %s expects a bool, got %T", ErrInvalidOperand, field, operand)
		}
		normalised = b
	case kindString:
		s, ok := operand.(string)
		if !ok {
			return Predicate{}, fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidOperand, field, operand)
		}
		normalised = strings.ToLower(s)
	}
	return Predicate{Field: field, Op: op, Operand: normalised}, nil
}

// ParsePredicate builds a predicate from textual field, operator and value
func ParsePredicate(field, op, value string) (Predicate, error) {
	f, err := ParseTransactionField(field)
	if err != nil {
		return Predicate{}, err
	}
	o, err := ParseOperator(op)
	if err != nil {
		return Predicate{}, err
	}
	value = strings.TrimSpace(value)

	var operand any
	switch fieldKind(f) {
	case kindNumeric:
		n, ok := parseBig(value)
		if !ok {
			return Predicate{}, fmt.Errorf("%w: %s expects a number, got %q", ErrInvalidOperand, f, value)
		}
		operand = n
	case kindAddress:
		if !common.IsHexAddress(value) {
			return Predicate{}, fmt.Errorf("%w: %s expects an address, got %q", ErrInvalidOperand, f, value)
		}
		operand = common.HexToAddress(value)
	case kindHash:
		b, err := hexutil.Decode(value)
		if err != nil || len(b) != common.HashLength {
			return Predicate{}, fmt.Errorf("%w: %s expects a 32-byte hash, got %q", ErrInvalidOperand, f, value)
		}
		operand = common.BytesToHash(b)
	case kindBytes:
		b, err := hexutil.Decode(value)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %s expects hex bytes: %v", ErrInvalidOperand, f, err)
		}
		operand = b
	case kindBool:
		b, err := parseBool(value)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %s expects a bool, got %q", ErrInvalidOperand, f, value)
		}
		operand = b
	case kindString:
		operand = value
	}
	return NewPredicate(f, o, operand)
}

// ParsePredicateExpr parses a compact expression such as "gas<=22000" or "status = true"
func ParsePredicateExpr(expr string) (Predicate, error) {
	for i := 0; i < len(expr); i++ {
		if !strings.ContainsRune("=!<>", rune(expr[i])) {
			continue
		}
		j := i + 1
		for j < len(expr) && strings.ContainsRune("=<>", rune(expr[j])) {
			j++
		}
		return ParsePredicate(expr[:i], expr[i:j], expr[j:])
	}
	return Predicate{}, fmt.Errorf("%w: no operator in %q", ErrInvalidOperator, expr)
}

// Match reports whether the row satisfies the predicate. An unset slot never matches.
func (p Predicate) Match(r *TransactionResult) bool {
	v, ok := r.Get(p.Field)
	if !ok {
		return false
	}

	switch want := p.Operand.(type) {
	case *big.Int:
		got, ok := v.(*big.Int)
		if !ok {
			return false
		}
		return compare(got.Cmp(want), p.Op)
	case common.Address:
		got, ok := v.(common.Address)
		return ok && equality(got == want, p.Op)
	case common.Hash:
		got, ok := v.(common.Hash)
		return ok && equality(got == want, p.Op)
	case []byte:
		got, ok := v.([]byte)
		return ok && equality(bytes.Equal(got, want), p.Op)
	case bool:
		got, ok := v.(bool)
		return ok && equality(got == want, p.Op)
	case string:
		got, ok := v.(string)
		return ok && equality(strings.EqualFold(got, want), p.Op)
	}
	return false
}

// MatchAll reports whether every predicate holds for the row
func MatchAll(r *TransactionResult, predicates []Predicate) bool {
	for _, p := range predicates {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

func compare(cmp int, op Operator) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNeq:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func equality(equal bool, op Operator) bool {
	switch op {
	case OpEq:
		return equal
	case OpNeq:
		return !equal
	}
	return false
}

func toBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Int).Set(n), true
	case *hexutil.Big:
		if n == nil {
			return nil, false
		}
		return new(big.Int).Set(n.ToInt()), true
	case int:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	}
	return nil, false
}

func parseBig(s string) (*big.Int, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "success":
		return true, nil
	case "failure", "failed":
		return false, nil
	}
	return strconv.ParseBool(s)
}
