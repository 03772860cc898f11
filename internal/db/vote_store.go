package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/steemit/hivemind-indexer/internal/indexer"
	"github.com/steemit/hivemind-indexer/internal/models"
)

// VoteRepository writes buffered votes
type VoteRepository struct {
	*Repository
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(repo *Repository) *VoteRepository {
	return &VoteRepository{Repository: repo}
}

// Begin opens the transaction of a vote flush
func (r *VoteRepository) Begin(ctx context.Context) (indexer.VoteTx, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &voteTx{tx: tx}, nil
}

type voteTx struct {
	tx *gorm.DB
}

const voteValuesRow = "(?::integer, ?::varchar, ?::varchar, ?::varchar, ?::bigint, ?::bigint, ?::integer, ?::timestamp, ?::integer, ?::integer, ?::boolean)"

// Rows of votes on unknown or deleted posts join nothing and are dropped.
// An intent-only row keeps the stored weight and rshares.
const upsertVotesSQL = `INSERT INTO hive_votes
    (post_id, voter_id, author_id, permlink_id, weight, rshares, vote_percent, last_update, num_changes, block_num, is_effective)
SELECT hp.id, ha_v.id, ha_a.id, hpd_p.id,
    t.weight, t.rshares, t.vote_percent, t.last_update, t.num_changes, t.block_num, t.is_effective
FROM (VALUES %s) AS t(order_id, voter, author, permlink, weight, rshares, vote_percent, last_update, num_changes, block_num, is_effective)
INNER JOIN hive_accounts ha_v ON ha_v.name = t.voter
INNER JOIN hive_accounts ha_a ON ha_a.name = t.author
INNER JOIN hive_permlink_data hpd_p ON hpd_p.permlink = t.permlink
INNER JOIN hive_posts hp ON hp.author_id = ha_a.id AND hp.permlink_id = hpd_p.id
WHERE hp.counter_deleted = 0
ORDER BY t.order_id
ON CONFLICT ON CONSTRAINT hive_votes_ux1 DO UPDATE SET
    weight = CASE EXCLUDED.is_effective WHEN true THEN EXCLUDED.weight ELSE hive_votes.weight END,
    rshares = CASE EXCLUDED.is_effective WHEN true THEN EXCLUDED.rshares ELSE hive_votes.rshares END,
    vote_percent = EXCLUDED.vote_percent,
    last_update = EXCLUDED.last_update,
    num_changes = hive_votes.num_changes + EXCLUDED.num_changes + 1,
    block_num = EXCLUDED.block_num,
    is_effective = hive_votes.is_effective OR EXCLUDED.is_effective`

// UpsertVotes merges one ordered batch into hive_votes
func (t *voteTx) UpsertVotes(ctx context.Context, rows []models.VoteRow) error {
	if len(rows) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(rows)*11)
	for _, r := range rows {
		args = append(args,
			r.OrderID,
			r.Voter,
			r.Author,
			r.Permlink,
			r.Weight,
			r.Rshares,
			r.VotePercent,
			r.LastUpdate,
			r.NumChanges,
			r.BlockNum,
			r.IsEffective,
		)
	}

	sql := replaceValues(upsertVotesSQL, valuesList(voteValuesRow, len(rows)))
	return t.tx.WithContext(ctx).Exec(sql, args...).Error
}

// SaveBlocks records the batch's block headers in the flush transaction
func (t *voteTx) SaveBlocks(ctx context.Context, blocks []*models.Block) error {
	return NewBlockRepository(NewRepository(t.tx)).SaveBlocks(ctx, blocks)
}

func (t *voteTx) Commit() error {
	return t.tx.Commit().Error
}

func (t *voteTx) Rollback() error {
	return t.tx.Rollback().Error
}
