package indexer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/internal/steem"
	"github.com/steemit/hivemind-indexer/pkg/telemetry"
)

// BlockProcessor dispatches the operations of one block to the indexers
type BlockProcessor struct {
	accounts    *AccountIndexer
	communities *CommunityIndexer
	posts       *PostIndexer
	votes       *VoteIndexer
	logger      *zap.Logger

	skipped metric.Int64Counter
}

// NewBlockProcessor creates a new block processor
func NewBlockProcessor(accounts *AccountIndexer, communities *CommunityIndexer, posts *PostIndexer, votes *VoteIndexer, logger *zap.Logger) *BlockProcessor {
	return &BlockProcessor{
		accounts:    accounts,
		communities: communities,
		posts:       posts,
		votes:       votes,
		logger:      logger,
		skipped:     telemetry.Int64Counter("hivemind.indexer.skipped_ops", "Operations skipped because of a per-operation error"),
	}
}

// ProcessBlock applies a block: account registration first, then content and
// vote operations in chain order, then virtual operations. Votes stay buffered
// in the vote indexer until the caller flushes them. Errors that concern a
// single operation are logged and skipped; anything else is returned.
func (bp *BlockProcessor) ProcessBlock(ctx context.Context, block *steem.Block, isInitialSync bool) (*models.Block, error) {
	ops := bp.decode(block, block.Operations)

	var names []string
	for _, op := range ops {
		if create, ok := op.(*steem.AccountCreateOp); ok {
			names = append(names, create.NewAccountName)
		}
	}
	if len(names) > 0 {
		created, err := bp.accounts.Register(ctx, names, block.Timestamp)
		if err != nil {
			return nil, err
		}
		if block.Num >= CommunityStartBlock && len(created) > 0 {
			if err := bp.communities.Register(ctx, created, block.Timestamp); err != nil {
				return nil, err
			}
		}
	}

	for _, op := range ops {
		var opErr error
		switch v := op.(type) {
		case *steem.CommentOp:
			opErr = bp.posts.ProcessComment(ctx, v, block.Timestamp, isInitialSync)
		case *steem.DeleteCommentOp:
			opErr = bp.posts.ProcessDelete(ctx, v, isInitialSync)
		case *steem.CommentOptionsOp:
			opErr = bp.posts.ProcessOptions(ctx, v)
		case *steem.VoteOp:
			opErr = bp.votes.Vote(v, block.Num, block.Timestamp)
		}
		if err := bp.check(ctx, block.Num, op, opErr); err != nil {
			return nil, err
		}
	}

	var payouts []steem.Operation
	for _, op := range bp.decode(block, block.VirtualOps) {
		switch v := op.(type) {
		case *steem.EffectiveCommentVoteOp:
			if err := bp.check(ctx, block.Num, op, bp.votes.EffectiveVote(v, block.Num)); err != nil {
				return nil, err
			}
		case *steem.CurationRewardOp, *steem.AuthorRewardOp, *steem.CommentRewardOp, *steem.CommentPayoutUpdateOp:
			payouts = append(payouts, op)
		}
	}
	if len(payouts) > 0 {
		stats, err := bp.posts.ProcessPayouts(ctx, payouts, block.Timestamp)
		if err != nil {
			return nil, err
		}
		bp.logger.Debug("Processed payouts", zap.Int64("block", block.Num), zap.Any("ops", stats))
	}

	prev := block.Previous
	return &models.Block{
		Num:       block.Num,
		Hash:      block.ID,
		Prev:      &prev,
		TXs:       int16(block.Transactions),
		Ops:       int16(len(block.Operations)),
		CreatedAt: block.Timestamp,
	}, nil
}

// decode turns raw operations into typed ones, dropping kinds the indexer
// does not handle and logging malformed payloads
func (bp *BlockProcessor) decode(block *steem.Block, raw []interface{}) []steem.Operation {
	ops := make([]steem.Operation, 0, len(raw))
	for _, r := range raw {
		op, err := steem.DecodeOperation(r)
		if errors.Is(err, steem.ErrUnknownOperation) {
			continue
		}
		if err != nil {
			bp.logger.Warn("Skipping malformed operation", zap.Int64("block", block.Num), zap.Error(err))
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

// check logs and swallows per-operation errors
func (bp *BlockProcessor) check(ctx context.Context, blockNum int64, op steem.Operation, err error) error {
	if err == nil {
		return nil
	}
	if !IsSkippable(err) {
		return err
	}

	var policy *PolicyError
	if errors.As(err, &policy) {
		bp.logger.Info("Post violates community rules",
			zap.Int64("block", blockNum),
			zap.String("author", policy.Author),
			zap.String("permlink", policy.Permlink))
	} else {
		bp.logger.Warn("Skipping operation",
			zap.Int64("block", blockNum),
			zap.String("type", op.Kind()),
			zap.Error(err))
	}
	bp.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("type", op.Kind())))
	return nil
}
