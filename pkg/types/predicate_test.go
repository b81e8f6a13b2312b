package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/chainquery/pkg/types/chain"
)

func sampleRow() *TransactionResult {
	gas := uint64(21000)
	status := true
	from := common.HexToAddress("0xBF2EFaA8715d75AfC562Cde29f56B55aA0Fb219F")
	txType := uint8(2)
	data := hexutil.Bytes{0xde, 0xad}
	return &TransactionResult{
		Type:     &txType,
		From:     &from,
		Gas:      &gas,
		Status:   &status,
		Value:    big.NewInt(1_000_000_000_000_000),
		GasPrice: big.NewInt(5_000_000_000),
		Data:     &data,
		Chain:    &chain.Info{Name: "ethereum", ID: 1},
	}
}

func TestParseOperator(t *testing.T) {
	for input, want := range map[string]Operator{
		"=": OpEq, "==": OpEq, "!=": OpNeq, ">": OpGt, ">=": OpGte, "<": OpLt, "<=": OpLte, "lte": OpLte,
	} {
		got, err := ParseOperator(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseOperator("~")
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestParsePredicate_Errors(t *testing.T) {
	tests := []struct {
		name           string
		field, op, arg string
		wantErr        error
	}{
		{name: "ordering on address", field: "from", op: ">", arg: "0xBF2EFaA8715d75AfC562Cde29f56B55aA0Fb219F", wantErr: ErrOperatorNotSupported},
		{name: "ordering on bool", field: "status", op: "<=", arg: "true", wantErr: ErrOperatorNotSupported},
		{name: "bad number", field: "gas", op: "<", arg: "lots", wantErr: ErrInvalidOperand},
		{name: "bad address", field: "to", op: "=", arg: "0x1234", wantErr: ErrInvalidOperand},
		{name: "bad bool", field: "status", op: "=", arg: "maybe", wantErr: ErrInvalidOperand},
		{name: "short hash", field: "hash", op: "=", arg: "0x01", wantErr: ErrInvalidOperand},
		{name: "unknown field", field: "logs", op: "=", arg: "1", wantErr: ErrUnknownField},
		{name: "unknown operator", field: "gas", op: "~", arg: "1", wantErr: ErrInvalidOperator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePredicate(tt.field, tt.op, tt.arg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPredicate_Match(t *testing.T) {
	row := sampleRow()
	tests := []struct {
		expr string
		want bool
	}{
		{"gas<=22000", true},
		{"gas==21000", true},
		{"gas!=21000", false},
		{"gas>21000", false},
		{"gas_price<=5000000000", true},
		{"gas_price<5000000000", false},
		{"value<=1000000000000000", true},
		{"value>=0x38d7ea4c68000", true},
		{"type=2", true},
		{"status=true", true},
		{"status!=true", false},
		{"from=0xbf2efaa8715d75afc562cde29f56b55aa0fb219f", true},
		{"from!=0xbf2efaa8715d75afc562cde29f56b55aa0fb219f", false},
		{"data=0xdead", true},
		{"chain=Ethereum", true},
		{"to=0x3fE873889008521bf335E07CEAfdfd0D9a6864A8", false},
		{"max_fee_per_gas>0", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := ParsePredicateExpr(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(row))
		})
	}
}

func TestNewPredicate_Normalises(t *testing.T) {
	p, err := NewPredicate(TxGas, OpEq, uint64(21000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(21000), p.Operand)
	assert.True(t, p.Match(sampleRow()))

	_, err = NewPredicate(TxFrom, OpEq, "0xabc")
	assert.ErrorIs(t, err, ErrInvalidOperand)

	_, err = NewPredicate(TxGas, Operator(42), 1)
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestMatchAll(t *testing.T) {
	row := sampleRow()
	gas, err := ParsePredicateExpr("gas <= 22000")
	require.NoError(t, err)
	status, err := ParsePredicateExpr("status = true")
	require.NoError(t, err)
	value, err := ParsePredicateExpr("value > 1000000000000000")
	require.NoError(t, err)

	assert.True(t, MatchAll(row, nil))
	assert.True(t, MatchAll(row, []Predicate{gas, status}))
	assert.False(t, MatchAll(row, []Predicate{gas, status, value}))
}

func TestTransactionResult_Retain(t *testing.T) {
	row := sampleRow()
	row.Retain([]TransactionField{TxFrom, TxGas})

	assert.NotNil(t, row.From)
	assert.NotNil(t, row.Gas)
	assert.Nil(t, row.Type)
	assert.Nil(t, row.Status)
	assert.Nil(t, row.Value)
	assert.Nil(t, row.GasPrice)
	assert.Nil(t, row.Data)
	assert.Nil(t, row.Chain)

	_, ok := row.Get(TxStatus)
	assert.False(t, ok)
}
