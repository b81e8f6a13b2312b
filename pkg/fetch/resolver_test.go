package fetch

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/chainquery/internal/constants"
	"github.com/0xmhha/chainquery/internal/testutil"
	"github.com/0xmhha/chainquery/pkg/client"
	"github.com/0xmhha/chainquery/pkg/types"
)

// stubProvider serves empty blocks up to head and records batch sizes
type stubProvider struct {
	mu       sync.Mutex
	head     uint64
	missing  map[uint64]bool
	batchErr error
	batches  [][]uint64
}

func (s *stubProvider) BlockByNumber(_ context.Context, number rpc.BlockNumber, _ bool) (*types.Block, error) {
	n := uint64(number)
	if number < 0 {
		n = s.head
	}
	if n > s.head || s.missing[n] {
		return nil, nil
	}
	return &types.Block{Number: hexutil.Uint64(n)}, nil
}

func (s *stubProvider) BatchBlocksByNumber(_ context.Context, numbers []uint64, _ bool) ([]*types.Block, error) {
	s.mu.Lock()
	s.batches = append(s.batches, append([]uint64(nil), numbers...))
	s.mu.Unlock()
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	blocks := make([]*types.Block, len(numbers))
	for i, n := range numbers {
		if n <= s.head && !s.missing[n] {
			blocks[i] = &types.Block{Number: hexutil.Uint64(n)}
		}
	}
	return blocks, nil
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{BatchSize: 0}).Validate())
	assert.Error(t, (&Config{BatchSize: 1, MaxConcurrentBatches: -1}).Validate())
}

func TestGetBlock(t *testing.T) {
	r := NewBlockResolver(nil, nil)
	p := &stubProvider{head: 10}

	block, err := r.GetBlock(context.Background(), p, 5, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), uint64(block.Number))

	_, err = r.GetBlock(context.Background(), p, 11, true)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestBatchGetBlocks_ChunksAndOrder(t *testing.T) {
	r := NewBlockResolver(&Config{BatchSize: 4, MaxConcurrentBatches: 2}, testutil.NewTestLogger(t))
	p := &stubProvider{head: 100}

	numbers := make([]uint64, 10)
	for i := range numbers {
		numbers[i] = uint64(50 + i)
	}

	blocks, err := r.BatchGetBlocks(context.Background(), p, numbers, true)
	require.NoError(t, err)
	require.Len(t, blocks, 10)
	for i, b := range blocks {
		assert.Equal(t, numbers[i], uint64(b.Number))
	}

	require.Len(t, p.batches, 3)
	sizes := map[int]int{}
	for _, b := range p.batches {
		sizes[len(b)]++
	}
	assert.Equal(t, map[int]int{4: 2, 2: 1}, sizes)
}

func TestBatchGetBlocks_Errors(t *testing.T) {
	r := NewBlockResolver(&Config{BatchSize: 2}, nil)

	t.Run("missing block", func(t *testing.T) {
		p := &stubProvider{head: 10, missing: map[uint64]bool{3: true}}
		_, err := r.BatchGetBlocks(context.Background(), p, []uint64{1, 2, 3, 4}, true)
		assert.ErrorIs(t, err, ErrBlockNotFound)
	})

	t.Run("transport failure", func(t *testing.T) {
		boom := errors.New("connection reset")
		p := &stubProvider{head: 10, batchErr: boom}
		_, err := r.BatchGetBlocks(context.Background(), p, []uint64{1, 2, 3}, true)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty", func(t *testing.T) {
		blocks, err := r.BatchGetBlocks(context.Background(), &stubProvider{}, nil, true)
		require.NoError(t, err)
		assert.Nil(t, blocks)
	})
}

func TestResolveBlockNumbers(t *testing.T) {
	r := NewBlockResolver(&Config{BatchSize: 10, MaxBlockRange: 100}, nil)
	p := &stubProvider{head: 1000}
	ctx := context.Background()

	end := rpc.BlockNumber(15)
	numbers, err := r.ResolveBlockNumbers(ctx, p, types.BlockRange{Start: 10, End: &end})
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11, 12, 13, 14, 15}, numbers)

	numbers, err = r.ResolveBlockNumbers(ctx, p, types.BlockRange{Start: 7})
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, numbers)

	latest := rpc.LatestBlockNumber
	numbers, err = r.ResolveBlockNumbers(ctx, p, types.BlockRange{Start: 998, End: &latest})
	require.NoError(t, err)
	assert.Equal(t, []uint64{998, 999, 1000}, numbers)

	numbers, err = r.ResolveBlockNumbers(ctx, p, types.BlockRange{Start: rpc.EarliestBlockNumber, End: &end})
	require.NoError(t, err)
	assert.Len(t, numbers, 16)
	assert.Equal(t, uint64(0), numbers[0])

	backwards := rpc.BlockNumber(5)
	_, err = r.ResolveBlockNumbers(ctx, p, types.BlockRange{Start: 10, End: &backwards})
	assert.ErrorIs(t, err, ErrInvalidBlockRange)

	wide := rpc.BlockNumber(500)
	_, err = r.ResolveBlockNumbers(ctx, p, types.BlockRange{Start: 0, End: &wide})
	assert.ErrorIs(t, err, ErrBlockRangeTooLarge)
}

func TestResolveBlockNumbers_DefaultLimit(t *testing.T) {
	r := NewBlockResolver(nil, nil)
	p := &stubProvider{head: 10}
	ctx := context.Background()

	for _, expr := range []string{"0:9223372036854775807", "1:latest", "0:10000"} {
		t.Run(expr, func(t *testing.T) {
			id, err := types.ParseBlockID(expr)
			require.NoError(t, err)
			rng, ok := id.Range()
			require.True(t, ok)

			if expr == "1:latest" {
				numbers, err := r.ResolveBlockNumbers(ctx, p, rng)
				require.NoError(t, err)
				assert.Len(t, numbers, 10)
				return
			}
			_, err = r.ResolveBlockNumbers(ctx, p, rng)
			assert.ErrorIs(t, err, ErrBlockRangeTooLarge)
		})
	}

	end := rpc.BlockNumber(constants.DefaultMaxBlockRange - 1)
	numbers, err := r.ResolveBlockNumbers(ctx, p, types.BlockRange{Start: 0, End: &end})
	require.NoError(t, err)
	assert.Len(t, numbers, constants.DefaultMaxBlockRange)
}

func TestResolveBounds(t *testing.T) {
	r := NewBlockResolver(nil, nil)
	p := &stubProvider{head: 42}
	ctx := context.Background()

	from, to, err := r.ResolveBounds(ctx, p, types.NewBlockNumberID(rpc.FinalizedBlockNumber))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), from)
	assert.Equal(t, uint64(42), to)

	id, err := types.ParseBlockID("10:20")
	require.NoError(t, err)
	from, to, err = r.ResolveBounds(ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), from)
	assert.Equal(t, uint64(20), to)

	id, err = types.ParseBlockID("20:10")
	require.NoError(t, err)
	_, _, err = r.ResolveBounds(ctx, p, id)
	assert.ErrorIs(t, err, ErrInvalidBlockRange)
}

func TestBlockResolver_WithClient(t *testing.T) {
	fake := testutil.NewFakeChain(1)
	for n := uint64(1); n <= 5; n++ {
		tx := testutil.SignTx(t, 1, 1, testutil.LegacyTransfer(n, testutil.KeyAddress(2), big.NewInt(1), big.NewInt(1), 21000))
		fake.AddBlock(n, tx)
	}
	m := fake.Serve(t)
	c, err := client.NewClient(&client.Config{Endpoint: m.URL(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	r := NewBlockResolver(&Config{BatchSize: 2, MaxConcurrentBatches: 2}, nil)
	ctx := context.Background()

	latest := rpc.LatestBlockNumber
	numbers, err := r.ResolveBlockNumbers(ctx, c, types.BlockRange{Start: 2, End: &latest})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 4, 5}, numbers)

	blocks, err := r.BatchGetBlocks(ctx, c, numbers, true)
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	for i, b := range blocks {
		assert.Equal(t, numbers[i], uint64(b.Number))
		assert.True(t, b.Transactions.IsFull())
		assert.Equal(t, 1, b.Transactions.Len())
	}
}
