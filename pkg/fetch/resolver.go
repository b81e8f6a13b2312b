// Package fetch resolves block numbers, tags and ranges and reads blocks in
// JSON-RPC batches.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xmhha/chainquery/internal/constants"
	"github.com/0xmhha/chainquery/pkg/types"
)

var (
	// ErrBlockNotFound is returned when the node has no block at the requested number
	ErrBlockNotFound = errors.New("block not found")
	// ErrInvalidBlockRange is returned when a range starts after it ends
	ErrInvalidBlockRange = errors.New("invalid block range")
	// ErrBlockRangeTooLarge is returned when a range exceeds Config.MaxBlockRange
	ErrBlockRangeTooLarge = errors.New("block range too large")
)

// BlockProvider is the subset of the RPC client the block resolver needs
type BlockProvider interface {
	BlockByNumber(ctx context.Context, number rpc.BlockNumber, full bool) (*types.Block, error)
	BatchBlocksByNumber(ctx context.Context, numbers []uint64, full bool) ([]*types.Block, error)
}

// Config holds block resolver configuration
type Config struct {
	// BatchSize is the number of blocks requested in one JSON-RPC batch
	BatchSize int

	// MaxConcurrentBatches bounds the batches in flight; 0 means unbounded
	MaxConcurrentBatches int

	// MaxBlockRange caps the number of blocks a range may span; 0 uses the default
	MaxBlockRange uint64
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{
		BatchSize:            constants.DefaultBatchSize,
		MaxConcurrentBatches: constants.DefaultMaxConcurrentBatches,
		MaxBlockRange:        constants.DefaultMaxBlockRange,
	}
}

// Validate validates the block resolver configuration
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxConcurrentBatches < 0 {
		return fmt.Errorf("max concurrent batches cannot be negative")
	}
	return nil
}

// BlockResolver turns block ids into blocks
type BlockResolver struct {
	config *Config
	logger *zap.Logger
}

// NewBlockResolver creates a block resolver. A nil config uses DefaultConfig.
func NewBlockResolver(config *Config, logger *zap.Logger) *BlockResolver {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = constants.DefaultBatchSize
	}
	if config.MaxBlockRange == 0 {
		config.MaxBlockRange = constants.DefaultMaxBlockRange
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlockResolver{
		config: config,
		logger: logger.Named("blocks"),
	}
}

// GetBlock fetches one block by number or tag
func (r *BlockResolver) GetBlock(ctx context.Context, p BlockProvider, number rpc.BlockNumber, full bool) (*types.Block, error) {
	block, err := p.BlockByNumber(ctx, number, full)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, types.FormatBlockNumber(number))
	}
	return block, nil
}

// BatchGetBlocks fetches blocks in batches of Config.BatchSize. Batches run
// concurrently; the result preserves the order of numbers.
func (r *BlockResolver) BatchGetBlocks(ctx context.Context, p BlockProvider, numbers []uint64, full bool) ([]*types.Block, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	blocks := make([]*types.Block, len(numbers))
	g, gctx := errgroup.WithContext(ctx)
	if r.config.MaxConcurrentBatches > 0 {
		g.SetLimit(r.config.MaxConcurrentBatches)
	}

	batches := 0
	for start := 0; start < len(numbers); start += r.config.BatchSize {
		end := min(start+r.config.BatchSize, len(numbers))
		batches++
		g.Go(func() error {
			chunk, err := p.BatchBlocksByNumber(gctx, numbers[start:end], full)
			if err != nil {
				return err
			}
			if len(chunk) != end-start {
				return fmt.Errorf("batch returned %d blocks, want %d", len(chunk), end-start)
			}
			for i, block := range chunk {
				if block == nil {
					return fmt.Errorf("%w: %d", ErrBlockNotFound, numbers[start+i])
				}
				blocks[start+i] = block
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("fetched blocks",
		zap.Int("blocks", len(numbers)),
		zap.Int("batches", batches),
		zap.Bool("full", full))

	return blocks, nil
}

// ResolveBlockNumbers expands a range into the concrete inclusive list of heights.
// Tags are resolved against the node; a nil End yields only Start.
func (r *BlockResolver) ResolveBlockNumbers(ctx context.Context, p BlockProvider, rng types.BlockRange) ([]uint64, error) {
	start, err := r.resolveNumber(ctx, p, rng.Start)
	if err != nil {
		return nil, err
	}
	if rng.End == nil {
		return []uint64{start}, nil
	}
	end, err := r.resolveNumber(ctx, p, *rng.End)
	if err != nil {
		return nil, err
	}
	if start > end {
		return nil, fmt.Errorf("%w: start %d is after end %d", ErrInvalidBlockRange, start, end)
	}
	// compare the span, end-start+1 overflows on the full range
	if span, limit := end-start, r.config.MaxBlockRange; span >= limit {
		return nil, fmt.Errorf("%w: blocks %d to %d exceed limit %d", ErrBlockRangeTooLarge, start, end, limit)
	}

	numbers := make([]uint64, 0, end-start+1)
	for n := start; n <= end; n++ {
		numbers = append(numbers, n)
	}
	return numbers, nil
}

// ResolveBounds returns the inclusive heights a block id covers
func (r *BlockResolver) ResolveBounds(ctx context.Context, p BlockProvider, id types.BlockID) (uint64, uint64, error) {
	if number, ok := id.Number(); ok {
		n, err := r.resolveNumber(ctx, p, number)
		if err != nil {
			return 0, 0, err
		}
		return n, n, nil
	}

	rng, _ := id.Range()
	from, err := r.resolveNumber(ctx, p, rng.Start)
	if err != nil {
		return 0, 0, err
	}
	if rng.End == nil {
		return from, from, nil
	}
	to, err := r.resolveNumber(ctx, p, *rng.End)
	if err != nil {
		return 0, 0, err
	}
	if from > to {
		return 0, 0, fmt.Errorf("%w: start %d is after end %d", ErrInvalidBlockRange, from, to)
	}
	return from, to, nil
}

// resolveNumber maps a tag to a height with a header-only block lookup
func (r *BlockResolver) resolveNumber(ctx context.Context, p BlockProvider, number rpc.BlockNumber) (uint64, error) {
	if number == rpc.EarliestBlockNumber {
		return 0, nil
	}
	if number >= 0 {
		return uint64(number), nil
	}
	block, err := r.GetBlock(ctx, p, number, false)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve block tag %s: %w", types.FormatBlockNumber(number), err)
	}
	return uint64(block.Number), nil
}
