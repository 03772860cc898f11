package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null"
	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/idcache"
	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/internal/steem"
	"github.com/steemit/hivemind-indexer/pkg/normalize"
)

const (
	maxTags      = 5
	maxTagLength = 32

	defaultMaxAcceptedPayout   = "1000000.000 SBD"
	defaultPercentSteemDollars = 10000

	defaultPayoutBatch = 1000
)

// PostIndexer drives the post lifecycle: create, edit, delete, options and
// payouts
type PostIndexer struct {
	store    PostStore
	data     PostDataWriter
	tags     TagWriter
	feed     FeedWriter
	policy   CommunityPolicy
	notifier Notifier
	ids      *idcache.Cache
	loader   PostIDLoader
	logger   *zap.Logger

	payoutBatch int
}

// PostIndexerDeps are the collaborators of a PostIndexer
type PostIndexerDeps struct {
	Store    PostStore
	Data     PostDataWriter
	Tags     TagWriter
	Feed     FeedWriter
	Policy   CommunityPolicy
	Notifier Notifier
	IDs      *idcache.Cache
	// Loader is optional. When set, payout targets missing from the id
	// cache are loaded in one query per block.
	Loader PostIDLoader
}

// NewPostIndexer creates a new post indexer. payoutBatch bounds the number of
// payout updates sent per store call.
func NewPostIndexer(deps PostIndexerDeps, payoutBatch int, logger *zap.Logger) *PostIndexer {
	if payoutBatch <= 0 {
		payoutBatch = defaultPayoutBatch
	}
	return &PostIndexer{
		store:       deps.Store,
		data:        deps.Data,
		tags:        deps.Tags,
		feed:        deps.Feed,
		policy:      deps.Policy,
		notifier:    deps.Notifier,
		ids:         deps.IDs,
		loader:      deps.Loader,
		logger:      logger,
		payoutBatch: payoutBatch,
	}
}

// ProcessComment registers a new, edited or re-created post. A community
// policy violation mutes the post and is returned as a *PolicyError after
// everything else was applied.
func (pi *PostIndexer) ProcessComment(ctx context.Context, op *steem.CommentOp, blockDate time.Time, isInitialSync bool) error {
	res, err := pi.store.ProcessPost(ctx, op, blockDate)
	if err != nil {
		return storeErr("process post "+op.Author+"/"+op.Permlink, err)
	}
	if res == nil {
		return &NotFoundError{What: "parent post", Key: idcache.Key(op.ParentAuthor, op.ParentPermlink)}
	}

	pi.ids.Seed(ctx, op.Author, op.Permlink, res.ID)

	md := parseMetadata(op.JSONMetadata)

	if err := pi.data.StoreData(ctx, postData(res.ID, op, md)); err != nil {
		return storeErr("store post data", err)
	}

	for _, tag := range extractTags(res.PostCategory, md) {
		if err := pi.tags.AddTag(ctx, res.ID, tag); err != nil {
			return storeErr("add tag "+tag, err)
		}
	}

	// structural count stays correct during initial sync
	if !res.IsEdited && res.ParentID.Valid {
		if err := pi.AdjustChildren(ctx, res.ID, 1); err != nil {
			return err
		}
	}

	if isInitialSync {
		return nil
	}

	var policyErr *PolicyError
	if res.CommunityID.Valid && res.IsValid {
		ok, err := pi.policy.IsPostValid(ctx, res.CommunityID.Int64, op)
		if err != nil {
			return storeErr("check community policy", err)
		}
		if !ok {
			policyErr = &PolicyError{Author: op.Author, Permlink: op.Permlink, Reason: "not authorized"}
			if !res.IsMuted {
				if err := pi.store.SetMuted(ctx, res.ID, true); err != nil {
					return storeErr("mute post", err)
				}
			}
		}
	}

	if policyErr != nil {
		payload := policyErr.Reason
		postID := res.ID
		authorID := res.AuthorID
		if err := pi.notifier.Write(ctx, models.NotifyTypeError, blockDate, nil, &authorID, nil, &postID, &payload, nil); err != nil {
			return err
		}
	}

	if res.Depth == 0 {
		if err := pi.feed.Insert(ctx, res.ID, res.AuthorID, blockDate); err != nil {
			return storeErr("insert feed entry", err)
		}
	}

	pi.logger.Debug("Processed post",
		zap.String("author", op.Author),
		zap.String("permlink", op.Permlink),
		zap.Int64("id", res.ID),
		zap.Int16("depth", res.Depth),
		zap.Bool("edited", res.IsEdited))

	if policyErr != nil {
		return policyErr
	}
	return nil
}

// ProcessDelete soft-deletes a post, drops its feed entry and decrements the
// parent's child count.
func (pi *PostIndexer) ProcessDelete(ctx context.Context, op *steem.DeleteCommentOp, isInitialSync bool) error {
	res, err := pi.store.DeletePost(ctx, op.Author, op.Permlink)
	if err != nil {
		return storeErr("delete post "+op.Author+"/"+op.Permlink, err)
	}
	if res == nil {
		return &NotFoundError{What: "post", Key: idcache.Key(op.Author, op.Permlink)}
	}

	pi.ids.Forget(ctx, op.Author, op.Permlink)

	if !isInitialSync && res.Depth == 0 {
		if err := pi.feed.Delete(ctx, res.ID); err != nil {
			return storeErr("delete feed entry", err)
		}
	}

	if err := pi.AdjustChildren(ctx, res.ID, -1); err != nil {
		return err
	}

	pi.logger.Debug("Deleted post",
		zap.String("author", op.Author),
		zap.String("permlink", op.Permlink),
		zap.Int64("id", res.ID))

	return nil
}

// AdjustChildren adds delta to the child count of childID's parent. The store
// clamps at zero and reads the overflow sentinel as zero.
func (pi *PostIndexer) AdjustChildren(ctx context.Context, childID int64, delta int) error {
	if err := pi.store.AdjustChildren(ctx, childID, delta); err != nil {
		return storeErr(fmt.Sprintf("adjust children of parent of %d", childID), err)
	}
	return nil
}

// ProcessOptions applies comment_options. Absent fields take their defaults.
func (pi *PostIndexer) ProcessOptions(ctx context.Context, op *steem.CommentOptionsOp) error {
	id, err := pi.resolve(ctx, op.Author, op.Permlink)
	if err != nil {
		return err
	}

	bens, err := op.Beneficiaries()
	if err != nil {
		return err
	}
	if bens == nil {
		bens = []steem.Beneficiary{}
	}
	encoded, err := json.Marshal(bens)
	if err != nil {
		return fmt.Errorf("failed to encode beneficiaries: %w", err)
	}

	opts := &models.PostOptions{
		PostID:               id,
		MaxAcceptedPayout:    defaultMaxAcceptedPayout,
		PercentSteemDollars:  defaultPercentSteemDollars,
		AllowVotes:           true,
		AllowCurationRewards: true,
		Beneficiaries:        string(encoded),
	}
	if op.MaxAcceptedPayout != nil {
		opts.MaxAcceptedPayout = op.MaxAcceptedPayout.Legacy()
	}
	if op.PercentSteemDollars != nil {
		opts.PercentSteemDollars = *op.PercentSteemDollars
	}
	if op.AllowVotes != nil {
		opts.AllowVotes = *op.AllowVotes
	}
	if op.AllowCurationRewards != nil {
		opts.AllowCurationRewards = *op.AllowCurationRewards
	}

	if err := pi.store.UpdateOptions(ctx, opts); err != nil {
		return storeErr("update options", err)
	}
	return nil
}

// ProcessPayouts settles a block's payout operations. Operations are grouped
// per post in order of first appearance; each group becomes one sparse update.
// The returned map counts operations by kind.
func (pi *PostIndexer) ProcessPayouts(ctx context.Context, ops []steem.Operation, date time.Time) (map[string]int, error) {
	stats := make(map[string]int)

	type group struct {
		author, permlink string
		ops              []steem.Operation
	}
	var order []string
	groups := make(map[string]*group)

	for _, op := range ops {
		ref, ok := op.(steem.ContentRef)
		if !ok {
			continue
		}
		author, permlink := ref.ContentKey()
		key := idcache.Key(author, permlink)
		g, ok := groups[key]
		if !ok {
			g = &group{author: author, permlink: permlink}
			groups[key] = g
			order = append(order, key)
		}
		g.ops = append(g.ops, op)
	}

	refs := make([]idcache.Ref, 0, len(order))
	for _, key := range order {
		refs = append(refs, idcache.Ref{Author: groups[key].author, Permlink: groups[key].permlink})
	}
	pi.prefetch(ctx, refs)

	updates := make([]models.PayoutUpdate, 0, pi.payoutBatch)
	for _, key := range order {
		g := groups[key]
		for _, op := range g.ops {
			stats[op.Kind()]++
		}

		id, err := pi.resolve(ctx, g.author, g.permlink)
		if err != nil {
			if IsSkippable(err) {
				pi.logger.Error("payout for unknown post", zap.String("post", key), zap.Error(err))
				continue
			}
			return stats, err
		}

		updates = append(updates, payoutUpdate(id, g.ops, date))
		if len(updates) >= pi.payoutBatch {
			if err := pi.store.ApplyPayouts(ctx, updates); err != nil {
				return stats, storeErr("apply payouts", err)
			}
			updates = updates[:0]
		}
	}

	if len(updates) > 0 {
		if err := pi.store.ApplyPayouts(ctx, updates); err != nil {
			return stats, storeErr("apply payouts", err)
		}
	}

	return stats, nil
}

// prefetch seeds the id cache with the uncached refs. Failures are left to
// the per-post lookups in resolve.
func (pi *PostIndexer) prefetch(ctx context.Context, refs []idcache.Ref) {
	if pi.loader == nil {
		return
	}
	missing := pi.ids.Missing(refs)
	if len(missing) == 0 {
		return
	}
	found, err := pi.loader.PostIDs(ctx, missing)
	if err != nil {
		pi.logger.Warn("batch post id lookup failed", zap.Int("posts", len(missing)), zap.Error(err))
		return
	}
	pi.ids.SeedFromRefs(ctx, found)
}

func (pi *PostIndexer) resolve(ctx context.Context, author, permlink string) (int64, error) {
	id, ok, err := pi.ids.Resolve(ctx, author, permlink)
	if err != nil {
		return 0, storeErr("resolve post id", err)
	}
	if !ok {
		return 0, &NotFoundError{What: "post", Key: idcache.Key(author, permlink)}
	}
	return id, nil
}

// payoutUpdate derives the sparse update of one post from its operations
func payoutUpdate(postID int64, ops []steem.Operation, date time.Time) models.PayoutUpdate {
	u := models.PayoutUpdate{PostID: postID, UpdatedAt: date}

	var (
		curationSum  int64
		haveCuration bool
		total        *normalize.Asset
		curator      *normalize.Asset
	)

	for _, op := range ops {
		switch v := op.(type) {
		case *steem.CurationRewardOp:
			curationSum += v.Reward.Amount
			haveCuration = true
		case *steem.AuthorRewardOp:
			u.AuthorRewardsSteem = null.IntFrom(v.SteemPayout.Amount)
			u.AuthorRewardsSbd = null.IntFrom(v.SbdPayout.Amount)
			u.AuthorRewardsVests = null.IntFrom(v.VestingPayout.Amount)
		case *steem.CommentRewardOp:
			u.AuthorRewards = null.IntFrom(v.AuthorRewards)
			tp, cp := v.TotalPayoutValue, v.CuratorPayoutValue
			total, curator = &tp, &cp
		case *steem.CommentPayoutUpdateOp:
			u.IsPaidout = null.BoolFrom(v.Paidout())
		}
	}

	if haveCuration {
		u.CurationRewardsVests = null.IntFrom(curationSum)
	}
	if total != nil {
		u.TotalPayoutValue = null.StringFrom(total.Legacy())
		u.PayoutAt = null.TimeFrom(date)
		u.LastPayout = null.TimeFrom(date)
	}
	if curator != nil {
		u.CuratorPayoutValue = null.StringFrom(curator.Legacy())
	}
	if total != nil && curator != nil {
		u.Payout = null.FloatFrom(total.Float() + curator.Float())
		u.PendingPayout = null.FloatFrom(0)
	}
	if u.IsPaidout.Valid {
		u.CashoutTime = null.TimeFrom(date)
	}

	return u
}

func postData(id int64, op *steem.CommentOp, md map[string]interface{}) *models.PostData {
	preview := op.Preview
	if preview == "" {
		preview = op.Body
	}

	img, ok := normalize.SafeImgURL(op.ImgURL, normalize.DefaultImgURLSize)
	if !ok {
		if images, isList := md["image"].([]interface{}); isList && len(images) > 0 {
			img, _ = normalize.SafeImgURL(images[0], normalize.DefaultImgURLSize)
		}
	}

	jsonMeta := op.JSONMetadata
	if jsonMeta == "" {
		jsonMeta = "{}"
	}

	return &models.PostData{
		ID:      id,
		Title:   op.Title,
		Preview: normalize.Truncate(preview, 1024),
		ImgURL:  img,
		Body:    op.Body,
		JSON:    jsonMeta,
	}
}

// parseMetadata decodes json_metadata. Anything but a JSON object is empty.
func parseMetadata(raw string) map[string]interface{} {
	var md map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &md); err != nil || md == nil {
		return map[string]interface{}{}
	}
	return md
}

// extractTags returns up to five distinct normalized tags: the category
// followed by the metadata tag list.
func extractTags(category string, md map[string]interface{}) []string {
	candidates := []interface{}{category}
	if list, ok := md["tags"].([]interface{}); ok {
		candidates = append(candidates, list...)
	}

	seen := make(map[string]bool, len(candidates))
	tags := make([]string, 0, maxTags)
	for _, c := range candidates {
		tag := normalizeTag(c)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func normalizeTag(v interface{}) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case nil:
		return ""
	default:
		s = fmt.Sprint(t)
	}

	s = strings.ToLower(strings.Trim(s, "# "))
	if r := []rune(s); len(r) > maxTagLength {
		s = string(r[:maxTagLength])
	}
	return s
}
