package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrInvalidBlockID is returned when a block number, tag or range cannot be parsed
var ErrInvalidBlockID = errors.New("invalid block id")

// ParseBlockNumber parses a decimal number, a 0x-prefixed hex number or a tag
// (latest, pending, safe, finalized, earliest).
func ParseBlockNumber(s string) (rpc.BlockNumber, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "latest":
		return rpc.LatestBlockNumber, nil
	case "pending":
		return rpc.PendingBlockNumber, nil
	case "safe":
		return rpc.SafeBlockNumber, nil
	case "finalized":
		return rpc.FinalizedBlockNumber, nil
	case "earliest":
		return rpc.EarliestBlockNumber, nil
	}
	if strings.HasPrefix(s, "0x") {
		n, err := hexutil.DecodeUint64(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidBlockID, s, err)
		}
		return NumberToBlockNumber(n)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBlockID, s)
	}
	return NumberToBlockNumber(n)
}

// NumberToBlockNumber converts a height to rpc.BlockNumber, rejecting overflow
func NumberToBlockNumber(n uint64) (rpc.BlockNumber, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: block number %d out of range", ErrInvalidBlockID, n)
	}
	return rpc.BlockNumber(n), nil
}

// FormatBlockNumber renders tags by name and heights in decimal
func FormatBlockNumber(n rpc.BlockNumber) string {
	switch n {
	case rpc.LatestBlockNumber:
		return "latest"
	case rpc.PendingBlockNumber:
		return "pending"
	case rpc.SafeBlockNumber:
		return "safe"
	case rpc.FinalizedBlockNumber:
		return "finalized"
	}
	if n < 0 {
		return "earliest"
	}
	return strconv.FormatInt(n.Int64(), 10)
}

// BlockRange is an inclusive span of blocks. A nil End selects only Start.
type BlockRange struct {
	Start rpc.BlockNumber
	End   *rpc.BlockNumber
}

func (r BlockRange) String() string {
	if r.End == nil {
		return FormatBlockNumber(r.Start)
	}
	return FormatBlockNumber(r.Start) + ":" + FormatBlockNumber(*r.End)
}

// BlockID selects either a single block or a range of blocks
type BlockID struct {
	number rpc.BlockNumber
	rng    *BlockRange
}

// NewBlockNumberID selects a single block by number or tag
func NewBlockNumberID(n rpc.BlockNumber) BlockID {
	return BlockID{number: n}
}

// NewBlockRangeID selects a range of blocks
func NewBlockRangeID(r BlockRange) BlockID {
	return BlockID{rng: &r}
}

// ParseBlockID accepts "N", "tag", "N:M" or "tag:tag"
func ParseBlockID(s string) (BlockID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return BlockID{}, fmt.Errorf("%w: empty", ErrInvalidBlockID)
	}
	start, end, isRange := strings.Cut(s, ":")
	if !isRange {
		n, err := ParseBlockNumber(s)
		if err != nil {
			return BlockID{}, err
		}
		return NewBlockNumberID(n), nil
	}
	from, err := ParseBlockNumber(start)
	if err != nil {
		return BlockID{}, err
	}
	to, err := ParseBlockNumber(end)
	if err != nil {
		return BlockID{}, err
	}
	return NewBlockRangeID(BlockRange{Start: from, End: &to}), nil
}

// Number returns the single block selected, and false for ranges
func (b BlockID) Number() (rpc.BlockNumber, bool) {
	return b.number, b.rng == nil
}

// Range returns the range selected, and false for single blocks
func (b BlockID) Range() (BlockRange, bool) {
	if b.rng == nil {
		return BlockRange{}, false
	}
	return *b.rng, true
}

func (b BlockID) String() string {
	if b.rng != nil {
		return b.rng.String()
	}
	return FormatBlockNumber(b.number)
}

// MarshalText implements encoding.TextMarshaler
func (b BlockID) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *BlockID) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockID(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Block is the subset of an eth_getBlockByNumber response the resolvers use
type Block struct {
	Number       hexutil.Uint64    `json:"number"`
	Hash         common.Hash       `json:"hash"`
	ParentHash   common.Hash       `json:"parentHash"`
	Timestamp    hexutil.Uint64    `json:"timestamp"`
	Transactions BlockTransactions `json:"transactions"`
}

// BlockTransactions holds either the hash list or the full bodies of a block's
// transactions, depending on how the block was requested.
type BlockTransactions struct {
	Hashes []common.Hash
	Full   []*Transaction
}

// IsFull reports whether full transaction bodies are present
func (b BlockTransactions) IsFull() bool {
	return b.Hashes == nil
}

// Len returns the number of transactions regardless of representation
func (b BlockTransactions) Len() int {
	if b.Hashes != nil {
		return len(b.Hashes)
	}
	return len(b.Full)
}

// UnmarshalJSON detects hash-only and full representations
func (b *BlockTransactions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode block transactions: %w", err)
	}
	*b = BlockTransactions{}
	if len(raw) == 0 {
		b.Full = []*Transaction{}
		return nil
	}
	if first := bytes.TrimSpace(raw[0]); len(first) > 0 && first[0] == '"' {
		b.Hashes = make([]common.Hash, len(raw))
		for i, r := range raw {
			if err := json.Unmarshal(r, &b.Hashes[i]); err != nil {
				return fmt.Errorf("failed to decode transaction hash %d: %w", i, err)
			}
		}
		return nil
	}
	b.Full = make([]*Transaction, len(raw))
	for i, r := range raw {
		tx := new(Transaction)
		if err := json.Unmarshal(r, tx); err != nil {
			return fmt.Errorf("failed to decode transaction %d: %w", i, err)
		}
		b.Full[i] = tx
	}
	return nil
}

// MarshalJSON writes whichever representation is held
func (b BlockTransactions) MarshalJSON() ([]byte, error) {
	if b.Hashes != nil {
		return json.Marshal(b.Hashes)
	}
	if b.Full == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.Full)
}
