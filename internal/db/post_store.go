package db

import (
	"context"
	"strings"
	"time"

	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/internal/steem"
)

// PostStore persists the post lifecycle. Creation and deletion run through
// the process_hive_post_operation and delete_hive_post stored functions.
type PostStore struct {
	*Repository
}

// NewPostStore creates a new post store
func NewPostStore(repo *Repository) *PostStore {
	return &PostStore{Repository: repo}
}

// ProcessPost creates or edits the live post of op. It returns nil when the
// parent of a reply does not exist.
func (s *PostStore) ProcessPost(ctx context.Context, op *steem.CommentOp, date time.Time) (*models.PostResult, error) {
	var rows []models.PostResult
	err := s.db.WithContext(ctx).
		Raw("SELECT * FROM process_hive_post_operation(?, ?, ?, ?, ?::timestamp)",
			op.Author, op.Permlink, op.ParentAuthor, op.ParentPermlink, date).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// DeletePost soft-deletes the live post of author/permlink
func (s *PostStore) DeletePost(ctx context.Context, author, permlink string) (*models.DeleteResult, error) {
	var rows []models.DeleteResult
	err := s.db.WithContext(ctx).
		Raw("SELECT * FROM delete_hive_post(?, ?)", author, permlink).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

const adjustChildrenSQL = `UPDATE hive_posts
SET children = GREATEST(0, CASE WHEN children = ? THEN 0 ELSE children END + ?)
WHERE id = (SELECT parent_id FROM hive_posts WHERE id = ?)`

// AdjustChildren adds delta to the child count of childID's parent in one
// statement. The overflow sentinel reads as zero and the result never drops
// below zero.
func (s *PostStore) AdjustChildren(ctx context.Context, childID int64, delta int) error {
	return s.db.WithContext(ctx).Exec(adjustChildrenSQL, models.ChildrenOverflow, delta, childID).Error
}

// SetMuted sets the muted flag of a post
func (s *PostStore) SetMuted(ctx context.Context, postID int64, muted bool) error {
	return s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", postID).
		Update("is_muted", muted).Error
}

// UpdateOptions stores the payout options of a post
func (s *PostStore) UpdateOptions(ctx context.Context, opts *models.PostOptions) error {
	return s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", opts.PostID).
		Updates(map[string]interface{}{
			"max_accepted_payout":    opts.MaxAcceptedPayout,
			"percent_steem_dollars":  opts.PercentSteemDollars,
			"allow_votes":            opts.AllowVotes,
			"allow_curation_rewards": opts.AllowCurationRewards,
			"beneficiaries":          opts.Beneficiaries,
		}).Error
}

const payoutValuesRow = "(?::integer, ?::varchar, ?::varchar, ?::bigint, ?::bigint, ?::bigint, ?::bigint, ?::bigint, " +
	"?::numeric, ?::numeric, ?::timestamp, ?::timestamp, ?::timestamp, ?::boolean, ?::timestamp)"

const applyPayoutsSQL = `UPDATE hive_posts AS hp SET
    total_payout_value = COALESCE(v.total_payout_value, hp.total_payout_value),
    curator_payout_value = COALESCE(v.curator_payout_value, hp.curator_payout_value),
    curation_rewards_vests = COALESCE(v.curation_rewards_vests, hp.curation_rewards_vests),
    author_rewards = COALESCE(v.author_rewards, hp.author_rewards),
    author_rewards_steem = COALESCE(v.author_rewards_steem, hp.author_rewards_steem),
    author_rewards_sbd = COALESCE(v.author_rewards_sbd, hp.author_rewards_sbd),
    author_rewards_vests = COALESCE(v.author_rewards_vests, hp.author_rewards_vests),
    payout = COALESCE(v.payout, hp.payout),
    pending_payout = COALESCE(v.pending_payout, hp.pending_payout),
    payout_at = COALESCE(v.payout_at, hp.payout_at),
    last_payout = COALESCE(v.last_payout, hp.last_payout),
    cashout_time = COALESCE(v.cashout_time, hp.cashout_time),
    is_paidout = COALESCE(v.is_paidout, hp.is_paidout),
    updated_at = v.updated_at
FROM (VALUES %s) AS v(id, total_payout_value, curator_payout_value, curation_rewards_vests,
    author_rewards, author_rewards_steem, author_rewards_sbd, author_rewards_vests,
    payout, pending_payout, payout_at, last_payout, cashout_time, is_paidout, updated_at)
WHERE hp.id = v.id`

// ApplyPayouts writes sparse payout updates in one statement. Absent fields
// keep their stored value; updated_at is always written.
func (s *PostStore) ApplyPayouts(ctx context.Context, updates []models.PayoutUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(updates)*15)
	for _, u := range updates {
		args = append(args,
			u.PostID,
			u.TotalPayoutValue,
			u.CuratorPayoutValue,
			u.CurationRewardsVests,
			u.AuthorRewards,
			u.AuthorRewardsSteem,
			u.AuthorRewardsSbd,
			u.AuthorRewardsVests,
			u.Payout,
			u.PendingPayout,
			u.PayoutAt,
			u.LastPayout,
			u.CashoutTime,
			u.IsPaidout,
			u.UpdatedAt,
		)
	}

	sql := replaceValues(applyPayoutsSQL, valuesList(payoutValuesRow, len(updates)))
	return s.db.WithContext(ctx).Exec(sql, args...).Error
}

// replaceValues puts a VALUES list into a statement template
func replaceValues(template, values string) string {
	return strings.Replace(template, "%s", values, 1)
}

// valuesList repeats a VALUES row template n times
func valuesList(row string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString(row)
	}
	return b.String()
}
