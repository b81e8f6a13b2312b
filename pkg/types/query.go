package types

import "github.com/ethereum/go-ethereum/common"

// TransactionQuery selects transactions by hash, by block, or by both, then
// filters them with predicates and projects the requested fields.
type TransactionQuery struct {
	IDs        []common.Hash
	Block      *BlockID
	Predicates []Predicate
	Fields     []TransactionField
}

// HasSource reports whether the query names hashes or a block to enumerate.
// An empty hash list counts as absent.
func (q *TransactionQuery) HasSource() bool {
	return q != nil && (len(q.IDs) > 0 || q.Block != nil)
}

// FieldsForEvaluation returns the requested fields plus any field a predicate
// reads, in declaration order without duplicates.
func (q *TransactionQuery) FieldsForEvaluation() []TransactionField {
	need := make(map[TransactionField]struct{}, len(q.Fields)+len(q.Predicates))
	for _, f := range q.Fields {
		need[f] = struct{}{}
	}
	for _, p := range q.Predicates {
		need[p.Field] = struct{}{}
	}
	fields := make([]TransactionField, 0, len(need))
	for _, f := range AllTransactionFields() {
		if _, ok := need[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}
