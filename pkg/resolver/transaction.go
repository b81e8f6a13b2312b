package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xmhha/chainquery/pkg/fetch"
	"github.com/0xmhha/chainquery/pkg/metrics"
	"github.com/0xmhha/chainquery/pkg/multichain"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// txScope carries what projections of one chain share
type txScope struct {
	provider TransactionProvider
	info     *chain.Info
}

// txProjector fills one slot of a transaction row
type txProjector func(ctx context.Context, s *txScope, tx *types.Transaction, row *types.TransactionResult) error

var txProjectors = map[types.TransactionField]txProjector{
	types.TxType: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		t := tx.Type()
		row.Type = &t
		return nil
	},
	types.TxHash: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		h := tx.Hash()
		row.Hash = &h
		return nil
	},
	types.TxFrom: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		from := tx.From
		row.From = &from
		return nil
	},
	types.TxTo: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		row.To = tx.To()
		return nil
	},
	types.TxData: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		data := hexutil.Bytes(tx.Data())
		row.Data = &data
		return nil
	},
	types.TxValue: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		row.Value = tx.Value()
		return nil
	},
	types.TxGasPrice: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		row.GasPrice = tx.EffectiveGasPrice()
		return nil
	},
	types.TxGas: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		gas := tx.Gas()
		row.Gas = &gas
		return nil
	},
	types.TxStatus: func(ctx context.Context, s *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		receipt, err := s.provider.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			return fmt.Errorf("failed to get receipt of %s: %w", tx.Hash().Hex(), err)
		}
		// no receipt yet leaves status unset
		if receipt == nil {
			return nil
		}
		ok := receipt.Status == gethtypes.ReceiptStatusSuccessful
		row.Status = &ok
		return nil
	},
	types.TxChainID: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		row.ChainID = tx.ChainID()
		return nil
	},
	types.TxV: signatureProjector(func(row *types.TransactionResult, v, _, _ *big.Int) { row.V = v }),
	types.TxR: signatureProjector(func(row *types.TransactionResult, _, r, _ *big.Int) { row.R = r }),
	types.TxS: signatureProjector(func(row *types.TransactionResult, _, _, s *big.Int) { row.S = s }),
	types.TxMaxFeePerBlobGas: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		if tx.Tx != nil && tx.Tx.Type() == gethtypes.BlobTxType {
			row.MaxFeePerBlobGas = tx.Tx.BlobGasFeeCap()
		}
		return nil
	},
	types.TxMaxFeePerGas: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		if hasFeeMarket(tx) {
			row.MaxFeePerGas = tx.Tx.GasFeeCap()
		}
		return nil
	},
	types.TxMaxPriorityFeePerGas: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		if hasFeeMarket(tx) {
			row.MaxPriorityFeePerGas = tx.Tx.GasTipCap()
		}
		return nil
	},
	types.TxYParity: func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		// legacy signatures carry v, not a parity bit
		if tx.Tx == nil || tx.Tx.Type() == gethtypes.LegacyTxType {
			return nil
		}
		v, _, _ := tx.Tx.RawSignatureValues()
		parity := v.Sign() != 0
		row.YParity = &parity
		return nil
	},
	types.TxChain: func(_ context.Context, s *txScope, _ *types.Transaction, row *types.TransactionResult) error {
		if s.info != nil {
			info := *s.info
			row.Chain = &info
		}
		return nil
	},
}

func signatureProjector(set func(row *types.TransactionResult, v, r, s *big.Int)) txProjector {
	return func(_ context.Context, _ *txScope, tx *types.Transaction, row *types.TransactionResult) error {
		if tx.Tx == nil {
			return nil
		}
		v, r, s := tx.Tx.RawSignatureValues()
		set(row, v, r, s)
		return nil
	}
}

func hasFeeMarket(tx *types.Transaction) bool {
	if tx.Tx == nil {
		return false
	}
	switch tx.Tx.Type() {
	case gethtypes.DynamicFeeTxType, gethtypes.BlobTxType, gethtypes.SetCodeTxType:
		return true
	default:
		return false
	}
}

// TransactionResolver resolves transaction queries across chains
type TransactionResolver struct {
	dial    DialFunc
	blocks  *fetch.BlockResolver
	config  *Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewTransactionResolver creates a transaction resolver. dial is only needed
// by Resolve; ResolveProvider works on an already dialed provider.
func NewTransactionResolver(dial DialFunc, blocks *fetch.BlockResolver, config *Config, m *metrics.Metrics, logger *zap.Logger) *TransactionResolver {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if blocks == nil {
		blocks = fetch.NewBlockResolver(nil, logger)
	}
	return &TransactionResolver{
		dial:    dial,
		blocks:  blocks,
		config:  config,
		metrics: m,
		logger:  logger.Named("transactions"),
	}
}

// Resolve runs q on every target in order and concatenates the rows. A
// failure on any chain aborts the query.
func (r *TransactionResolver) Resolve(ctx context.Context, q *types.TransactionQuery, targets []chain.Target) (results []*types.TransactionResult, err error) {
	started := time.Now()
	defer func() {
		r.metrics.ObserveQuery(types.TransactionEntity.String(), len(results), err, started)
	}()

	if err := checkQuery(q); err != nil {
		return nil, err
	}
	if r.dial == nil {
		return nil, fmt.Errorf("no dialer configured")
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.transactions")
	span.SetAttributes(attribute.Int("chains", len(targets)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for _, target := range targets {
		rows, err := r.resolveTarget(ctx, q, target)
		if err != nil {
			return nil, chainError(target, err)
		}
		results = append(results, rows...)
	}

	r.logger.Info("transaction query resolved",
		zap.Int("chains", len(targets)),
		zap.Int("rows", len(results)),
		zap.Duration("elapsed", time.Since(started)))

	return results, nil
}

func (r *TransactionResolver) resolveTarget(ctx context.Context, q *types.TransactionQuery, target chain.Target) ([]*types.TransactionResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.transactions.chain")
	span.SetAttributes(attribute.String("chain", target.String()))
	defer span.End()

	p, err := r.dial(ctx, target)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rows, err := r.resolveOn(ctx, q, p)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

// ResolveProvider runs q against a single provider
func (r *TransactionResolver) ResolveProvider(ctx context.Context, q *types.TransactionQuery, p TransactionProvider) ([]*types.TransactionResult, error) {
	if err := checkQuery(q); err != nil {
		return nil, err
	}
	return r.resolveOn(ctx, q, p)
}

func (r *TransactionResolver) resolveOn(ctx context.Context, q *types.TransactionQuery, p TransactionProvider) ([]*types.TransactionResult, error) {
	txs, err := r.enumerate(ctx, q, p)
	if err != nil {
		return nil, err
	}

	fields := q.FieldsForEvaluation()
	scope := &txScope{provider: p}
	if slices.Contains(fields, types.TxChain) {
		info, err := p.ChainInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe chain: %w", err)
		}
		scope.info = &info
	}

	rows := make([]*types.TransactionResult, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.limit())
	for i, tx := range txs {
		g.Go(func() error {
			row, err := project(gctx, scope, tx, fields)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	filtered, err := r.filter(ctx, q, p, rows)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved chain",
		zap.Int("fetched", len(txs)),
		zap.Int("matched", len(filtered)))

	return filtered, nil
}

// enumerate fetches the transactions named by ids or contained in the block filter
func (r *TransactionResolver) enumerate(ctx context.Context, q *types.TransactionQuery, p TransactionProvider) ([]*types.Transaction, error) {
	if len(q.IDs) > 0 {
		return r.byHash(ctx, q.IDs, p)
	}

	if number, ok := q.Block.Number(); ok {
		block, err := r.blocks.GetBlock(ctx, p, number, true)
		if err != nil {
			return nil, err
		}
		return blockTransactions(block)
	}

	rng, _ := q.Block.Range()
	numbers, err := r.blocks.ResolveBlockNumbers(ctx, p, rng)
	if err != nil {
		return nil, err
	}
	blocks, err := r.blocks.BatchGetBlocks(ctx, p, numbers, true)
	if err != nil {
		return nil, err
	}
	var txs []*types.Transaction
	for _, block := range blocks {
		bt, err := blockTransactions(block)
		if err != nil {
			return nil, err
		}
		txs = append(txs, bt...)
	}
	return txs, nil
}

// byHash fetches ids concurrently and drops unknown hashes, keeping id order
func (r *TransactionResolver) byHash(ctx context.Context, ids []common.Hash, p TransactionProvider) ([]*types.Transaction, error) {
	found := make([]*types.Transaction, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.limit())
	for i, hash := range ids {
		g.Go(func() error {
			tx, err := p.TransactionByHash(gctx, hash)
			if err != nil {
				return fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
			}
			found[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	txs := found[:0]
	for i, tx := range found {
		if tx == nil {
			r.logger.Debug("transaction not found", zap.String("hash", ids[i].Hex()))
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// filter keeps rows matching every predicate. Rows fetched by hash must also
// fall inside the block filter when one is given.
func (r *TransactionResolver) filter(ctx context.Context, q *types.TransactionQuery, p TransactionProvider, rows []*types.TransactionResult) ([]*types.TransactionResult, error) {
	inBlock := func(*types.TransactionResult) bool { return true }
	if len(q.IDs) > 0 && q.Block != nil {
		from, to, err := r.blocks.ResolveBounds(ctx, p, *q.Block)
		if err != nil {
			return nil, err
		}
		inBlock = func(row *types.TransactionResult) bool {
			n, ok := row.BlockNumber()
			return ok && n >= from && n <= to
		}
	}

	out := make([]*types.TransactionResult, 0, len(rows))
	for _, row := range rows {
		if !inBlock(row) || !types.MatchAll(row, q.Predicates) {
			continue
		}
		row.Retain(q.Fields)
		out = append(out, row)
	}
	return out, nil
}

func project(ctx context.Context, s *txScope, tx *types.Transaction, fields []types.TransactionField) (*types.TransactionResult, error) {
	row := &types.TransactionResult{}
	if tx.BlockNumber != nil {
		row.SetBlockNumber(*tx.BlockNumber)
	}
	for _, f := range fields {
		projector, ok := txProjectors[f]
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrUnknownField, f)
		}
		if err := projector(ctx, s, tx, row); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// blockTransactions returns the bodies of a block, stamping the block number
// onto transactions that lack it
func blockTransactions(block *types.Block) ([]*types.Transaction, error) {
	if !block.Transactions.IsFull() {
		return nil, fmt.Errorf("%w: block %d", ErrBlockTransactionsNotFull, uint64(block.Number))
	}
	number := uint64(block.Number)
	for _, tx := range block.Transactions.Full {
		if tx.BlockNumber == nil {
			tx.BlockNumber = &number
		}
	}
	return block.Transactions.Full, nil
}

func checkQuery(q *types.TransactionQuery) error {
	if !q.HasSource() {
		return ErrMissingHashOrFilter
	}
	for _, f := range q.FieldsForEvaluation() {
		if _, ok := txProjectors[f]; !ok {
			return fmt.Errorf("%w: %s", types.ErrUnknownField, f)
		}
	}
	return nil
}

// chainError attaches the target to err unless the gateway already did
func chainError(target chain.Target, err error) error {
	var chainErr *multichain.ChainError
	if errors.As(err, &chainErr) {
		return err
	}
	return multichain.NewChainError(target.String(), multichain.ErrQueryFailed, err)
}
