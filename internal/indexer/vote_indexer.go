package indexer

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/internal/steem"
	"github.com/steemit/hivemind-indexer/pkg/telemetry"
)

const defaultVoteFlushBatch = 1000

// effective votes seen before their intent carry this last_update
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

type voteKey struct {
	voter    string
	author   string
	permlink string
}

type voteRecord struct {
	weight      int64
	rshares     int64
	votePercent int
	lastUpdate  time.Time
	numChanges  int
	blockNum    int64
	isEffective bool
}

// VoteIndexer coalesces vote and effective_comment_vote operations into one
// record per voter and post, and writes them in ordered batches on Flush.
// It is used by a single writer; Flush excludes every other call.
type VoteIndexer struct {
	store     VoteStore
	batchSize int
	logger    *zap.Logger

	records  map[voteKey]*voteRecord
	order    []voteKey
	flushing atomic.Bool

	flushed  metric.Int64Counter
	duration metric.Float64Histogram
}

// NewVoteIndexer creates a vote indexer writing batchSize rows per upsert
func NewVoteIndexer(store VoteStore, batchSize int, logger *zap.Logger) *VoteIndexer {
	if batchSize <= 0 {
		batchSize = defaultVoteFlushBatch
	}
	return &VoteIndexer{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
		records:   make(map[voteKey]*voteRecord),
		flushed:   telemetry.Int64Counter("hivemind.votes.flushed", "vote rows written"),
		duration:  telemetry.Float64Histogram("hivemind.votes.flush_duration", "vote flush duration", "s"),
	}
}

// Vote records the voter's declared percent. An existing record keeps its
// weight, rshares, effectiveness and change count.
func (vi *VoteIndexer) Vote(op *steem.VoteOp, blockNum int64, date time.Time) error {
	if vi.flushing.Load() {
		return &ReentrancyError{Op: "vote"}
	}

	key := voteKey{voter: op.Voter, author: op.Author, permlink: op.Permlink}
	if rec, ok := vi.records[key]; ok {
		rec.votePercent = op.Weight
		rec.lastUpdate = date
		return nil
	}

	vi.add(key, &voteRecord{
		votePercent: op.Weight,
		lastUpdate:  date,
		blockNum:    blockNum,
	})
	return nil
}

// EffectiveVote records the chain-computed weight and rshares of a vote
func (vi *VoteIndexer) EffectiveVote(op *steem.EffectiveCommentVoteOp, blockNum int64) error {
	if vi.flushing.Load() {
		return &ReentrancyError{Op: "effective vote"}
	}

	key := voteKey{voter: op.Voter, author: op.Author, permlink: op.Permlink}
	if rec, ok := vi.records[key]; ok {
		rec.weight = op.Weight
		rec.rshares = op.Rshares
		rec.isEffective = true
		rec.numChanges++
		rec.blockNum = blockNum
		return nil
	}

	vi.add(key, &voteRecord{
		weight:      op.Weight,
		rshares:     op.Rshares,
		lastUpdate:  epoch,
		blockNum:    blockNum,
		isEffective: true,
	})
	return nil
}

func (vi *VoteIndexer) add(key voteKey, rec *voteRecord) {
	vi.records[key] = rec
	vi.order = append(vi.order, key)
}

// Len returns the number of buffered records
func (vi *VoteIndexer) Len() int {
	return len(vi.records)
}

// Reset drops every buffered record
func (vi *VoteIndexer) Reset() {
	vi.records = make(map[voteKey]*voteRecord)
	vi.order = nil
}

// Flush writes all buffered records and the given block headers in one
// transaction and clears the buffer. On failure the transaction is rolled
// back and the buffer is kept, so the flush can be retried; neither the votes
// nor the headers are stored.
func (vi *VoteIndexer) Flush(ctx context.Context, headers []*models.Block) (int, error) {
	if !vi.flushing.CompareAndSwap(false, true) {
		return 0, &ReentrancyError{Op: "flush"}
	}
	defer vi.flushing.Store(false)

	if len(vi.order) == 0 && len(headers) == 0 {
		return 0, nil
	}

	start := time.Now()
	rows := vi.rows()

	tx, err := vi.store.Begin(ctx)
	if err != nil {
		return 0, storeErr("begin vote flush", err)
	}

	for from := 0; from < len(rows); from += vi.batchSize {
		to := from + vi.batchSize
		if to > len(rows) {
			to = len(rows)
		}
		if err := tx.UpsertVotes(ctx, rows[from:to]); err != nil {
			vi.rollback(tx)
			return 0, storeErr("upsert votes", err)
		}
	}

	if len(headers) > 0 {
		if err := tx.SaveBlocks(ctx, headers); err != nil {
			vi.rollback(tx)
			return 0, storeErr("save blocks", err)
		}
	}

	if err := tx.Commit(); err != nil {
		vi.rollback(tx)
		return 0, storeErr("commit vote flush", err)
	}

	n := len(rows)
	vi.Reset()

	elapsed := time.Since(start)
	vi.flushed.Add(ctx, int64(n))
	vi.duration.Record(ctx, elapsed.Seconds())
	vi.logger.Debug("Flushed votes", zap.Int("count", n), zap.Duration("elapsed", elapsed))

	return n, nil
}

func (vi *VoteIndexer) rollback(tx VoteTx) {
	if err := tx.Rollback(); err != nil {
		vi.logger.Warn("vote flush rollback failed", zap.Error(err))
	}
}

// rows numbers the records in insertion order
func (vi *VoteIndexer) rows() []models.VoteRow {
	rows := make([]models.VoteRow, 0, len(vi.order))
	for i, key := range vi.order {
		rec := vi.records[key]
		rows = append(rows, models.VoteRow{
			OrderID:     i + 1,
			Voter:       key.voter,
			Author:      key.author,
			Permlink:    key.permlink,
			Weight:      rec.weight,
			Rshares:     rec.rshares,
			VotePercent: rec.votePercent,
			LastUpdate:  rec.lastUpdate,
			NumChanges:  rec.numChanges,
			BlockNum:    rec.blockNum,
			IsEffective: rec.isEffective,
		})
	}
	return rows
}
