package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/pkg/config"
	"github.com/steemit/hivemind-indexer/pkg/telemetry"
)

// ErrTestMaxBlock stops Run once the configured test block is reached
var ErrTestMaxBlock = errors.New("reached test max block")

// Sync manages the blockchain synchronization process
type Sync struct {
	cfg       *config.IndexerConfig
	source    BlockSource
	blocks    BlockStore
	processor *BlockProcessor
	votes     *VoteIndexer
	logger    *zap.Logger
}

// NewSync creates a new sync manager
func NewSync(cfg *config.IndexerConfig, source BlockSource, blocks BlockStore, processor *BlockProcessor, votes *VoteIndexer, logger *zap.Logger) *Sync {
	return &Sync{
		cfg:       cfg,
		source:    source,
		blocks:    blocks,
		processor: processor,
		votes:     votes,
		logger:    logger,
	}
}

// Run follows the last irreversible block until ctx is cancelled. A failed
// batch is retried after the sync interval; a reentrancy error stops the loop.
func (s *Sync) Run(ctx context.Context) error {
	s.logger.Info("Starting indexer sync", zap.Int64("initial_sync_gap", s.cfg.InitialSyncGap))

	for {
		err := s.step(ctx)
		switch {
		case errors.Is(err, ErrTestMaxBlock):
			s.logger.Info("Reached test max block", zap.Int64("block", s.cfg.TestMaxBlock))
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			var reentrancy *ReentrancyError
			if errors.As(err, &reentrancy) {
				return err
			}
			s.logger.Error("Sync step failed", zap.Error(err))
		}

		if !s.wait(ctx) {
			return ctx.Err()
		}
	}
}

// step syncs from the stored head to the last irreversible block
func (s *Sync) step(ctx context.Context) error {
	head, err := s.head(ctx)
	if err != nil {
		return err
	}
	if s.cfg.TestMaxBlock > 0 && head >= s.cfg.TestMaxBlock {
		return ErrTestMaxBlock
	}

	irreversible, err := s.source.LastIrreversible(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last irreversible block: %w", err)
	}
	if s.cfg.TestMaxBlock > 0 && irreversible > s.cfg.TestMaxBlock {
		irreversible = s.cfg.TestMaxBlock
	}

	if head >= irreversible {
		s.logger.Debug("Already synced to irreversible block",
			zap.Int64("current_head", head),
			zap.Int64("irreversible", irreversible))
		return nil
	}

	isInitialSync := irreversible-head > s.cfg.InitialSyncGap
	s.logger.Info("Syncing blocks",
		zap.Int64("current_head", head),
		zap.Int64("irreversible", irreversible),
		zap.Int64("blocks_to_sync", irreversible-head),
		zap.Bool("initial_sync", isInitialSync))

	return s.SyncRange(ctx, head+1, irreversible, isInitialSync)
}

func (s *Sync) head(ctx context.Context) (int64, error) {
	block, err := s.blocks.Head(ctx)
	if err != nil {
		return 0, storeErr("get head block", err)
	}
	if block == nil {
		return 0, nil
	}
	return block.Num, nil
}

// SyncRange processes blocks [from, to] in batches of MaxBatch. Each batch
// ends with a vote flush that commits the block headers in the same
// transaction, so a batch is either fully recorded or fetched again. A failed
// batch discards the buffered votes.
func (s *Sync) SyncRange(ctx context.Context, from, to int64, isInitialSync bool) error {
	batchSize := int64(s.cfg.MaxBatch)
	if batchSize <= 0 {
		batchSize = 1000
	}

	for start := from; start <= to; start += batchSize {
		end := start + batchSize - 1
		if end > to {
			end = to
		}

		if err := s.syncBatch(ctx, start, end, isInitialSync); err != nil {
			s.votes.Reset()
			return fmt.Errorf("failed to sync blocks %d-%d: %w", start, end, err)
		}
	}

	return nil
}

func (s *Sync) syncBatch(ctx context.Context, from, to int64, isInitialSync bool) error {
	ctx, span := telemetry.StartSpan(ctx, "indexer.sync_batch")
	defer span.End()

	started := time.Now()

	blocks, err := s.source.GetBlocks(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to fetch blocks: %w", err)
	}

	headers := make([]*models.Block, 0, len(blocks))
	for _, block := range blocks {
		header, err := s.processor.ProcessBlock(ctx, block, isInitialSync)
		if err != nil {
			return fmt.Errorf("failed to process block %d: %w", block.Num, err)
		}
		headers = append(headers, header)
	}

	votes, err := s.votes.Flush(ctx, headers)
	if err != nil {
		return err
	}

	s.logger.Info("Synced block batch",
		zap.Int64("from", from),
		zap.Int64("to", to),
		zap.Int("votes", votes),
		zap.Duration("elapsed", time.Since(started)))

	return nil
}

// wait waits for the sync interval. It returns false when ctx is done.
func (s *Sync) wait(ctx context.Context) bool {
	seconds := s.cfg.SyncInterval
	if seconds <= 0 {
		seconds = 3
	}
	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
