package indexer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/idcache"
	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/internal/steem"
	"github.com/steemit/hivemind-indexer/pkg/normalize"
)

var blockDate = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

type postFixture struct {
	pi     *PostIndexer
	store  *fakePostStore
	data   *fakeDataWriter
	tags   *fakeTagWriter
	feed   *fakeFeed
	policy *fakePolicy
	notifs *fakeNotificationStore
	ids    *idcache.Cache
}

func newPostFixture(t *testing.T, payoutBatch int) *postFixture {
	t.Helper()
	f := &postFixture{
		store:  newFakePostStore(),
		data:   &fakeDataWriter{},
		tags:   &fakeTagWriter{},
		feed:   &fakeFeed{},
		policy: &fakePolicy{denied: map[string]bool{}},
		notifs: &fakeNotificationStore{},
	}
	ids, err := idcache.New(100, f.store)
	require.NoError(t, err)
	f.ids = ids

	f.pi = NewPostIndexer(PostIndexerDeps{
		Store:    f.store,
		Data:     f.data,
		Tags:     f.tags,
		Feed:     f.feed,
		Policy:   f.policy,
		Notifier: NewNotifyIndexer(f.notifs, zap.NewNop()),
		IDs:      ids,
		Loader:   f.store,
	}, payoutBatch, zap.NewNop())
	return f
}

func topLevel(author, permlink, category string) *steem.CommentOp {
	return &steem.CommentOp{
		ParentPermlink: category,
		Author:         author,
		Permlink:       permlink,
		Title:          "title",
		Body:           "body",
		JSONMetadata:   `{"tags":["steem"]}`,
	}
}

func reply(author, permlink, parentAuthor, parentPermlink string) *steem.CommentOp {
	return &steem.CommentOp{
		ParentAuthor:   parentAuthor,
		ParentPermlink: parentPermlink,
		Author:         author,
		Permlink:       permlink,
		Body:           "reply",
	}
}

func TestProcessCommentIdempotent(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	op := topLevel("alice", "hello", "life")

	require.NoError(t, f.pi.ProcessComment(ctx, op, blockDate, false))
	require.NoError(t, f.pi.ProcessComment(ctx, op, blockDate, false))

	assert.Equal(t, 1, f.store.liveCount("alice", "hello"))
	assert.Len(t, f.store.posts, 1)
	assert.Len(t, f.feed.entries, 1)
}

func TestProcessCommentSeedsCache(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "hello", "life"), blockDate, true))

	id, ok, err := f.ids.Resolve(ctx, "alice", "hello")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Zero(t, f.store.lookups, "seeded ids must not hit the store")
}

func TestProcessCommentStoresData(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()

	op := topLevel("alice", "hello", "life")
	op.Body = "  " + strings.Repeat("x", 2000)
	op.JSONMetadata = `{"image": ["https://img.example/a.png"], "tags": ["x"]}`
	require.NoError(t, f.pi.ProcessComment(ctx, op, blockDate, true))

	got := f.data.data[1]
	require.NotNil(t, got)
	assert.Equal(t, "title", got.Title)
	assert.Equal(t, op.Body, got.Body)
	assert.Len(t, []rune(got.Preview), 1024)
	assert.True(t, strings.HasSuffix(got.Preview, "..."))
	assert.Equal(t, "https://img.example/a.png", got.ImgURL)
	assert.Equal(t, op.JSONMetadata, got.JSON)

	op2 := topLevel("alice", "plain", "life")
	op2.JSONMetadata = ""
	op2.ImgURL = "javascript:alert(1)"
	require.NoError(t, f.pi.ProcessComment(ctx, op2, blockDate, true))
	assert.Equal(t, "{}", f.data.data[2].JSON)
	assert.Empty(t, f.data.data[2].ImgURL)
}

func TestExtractTags(t *testing.T) {
	tests := []struct {
		name     string
		category string
		meta     string
		expected []string
	}{
		{"category only", "life", `{}`, []string{"life"}},
		{"category plus tags", "life", `{"tags":["photo","#Travel"]}`, []string{"life", "photo", "travel"}},
		{"duplicates removed", "life", `{"tags":["life","LIFE","# life"]}`, []string{"life"}},
		{"at most five", "a", `{"tags":["b","c","d","e","f","g"]}`, []string{"a", "b", "c", "d", "e"}},
		{"empty dropped", "", `{"tags":["", "#", " x "]}`, []string{"x"}},
		{"truncated to 32", "c", `{"tags":["this-is-a-very-long-tag-name-that-should-be-truncated"]}`,
			[]string{"c", "this-is-a-very-long-tag-name-tha"}},
		{"non-list tags ignored", "life", `{"tags":"steem blockchain"}`, []string{"life"}},
		{"non-string tags stringified", "life", `{"tags":[123, null]}`, []string{"life", "123"}},
		{"invalid json", "life", `{"tags":["steem"`, []string{"life"}},
		{"non-object json", "life", `["steem"]`, []string{"life"}},
		{"double encoded json", "life", `"{\"tags\":[\"x\"]}"`, []string{"life"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractTags(tt.category, parseMetadata(tt.meta))
			assert.Equal(t, tt.expected, result, "extractTags(%q, %q)", tt.category, tt.meta)
		})
	}
}

func TestProcessCommentRegistersTags(t *testing.T) {
	f := newPostFixture(t, 10)
	op := topLevel("alice", "hello", "Life")
	op.JSONMetadata = `{"tags":["life","photo"]}`

	require.NoError(t, f.pi.ProcessComment(context.Background(), op, blockDate, true))
	assert.Equal(t, []string{"life", "photo"}, f.tags.tags[1])
}

func TestDeleteThenRecreate(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	op := topLevel("alice", "hello", "life")

	require.NoError(t, f.pi.ProcessComment(ctx, op, blockDate, false))
	assert.Contains(t, f.feed.entries, int64(1))

	require.NoError(t, f.pi.ProcessDelete(ctx, &steem.DeleteCommentOp{Author: "alice", Permlink: "hello"}, false))
	assert.NotContains(t, f.feed.entries, int64(1))
	assert.Zero(t, f.store.liveCount("alice", "hello"))

	require.NoError(t, f.pi.ProcessComment(ctx, op, blockDate.Add(time.Hour), false))
	assert.Equal(t, 1, f.store.liveCount("alice", "hello"))
	assert.Contains(t, f.feed.entries, int64(2))

	id, ok, err := f.ids.Resolve(ctx, "alice", "hello")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id, "cache must follow the re-created post")
}

func TestDeleteInitialSyncKeepsFeed(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	f.feed.entries = map[int64]int64{}

	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "hello", "life"), blockDate, true))
	assert.Empty(t, f.feed.entries, "no feed writes during initial sync")

	require.NoError(t, f.feed.Insert(ctx, 1, 100, blockDate))
	require.NoError(t, f.pi.ProcessDelete(ctx, &steem.DeleteCommentOp{Author: "alice", Permlink: "hello"}, true))
	assert.Contains(t, f.feed.entries, int64(1))
}

func TestDeleteMissingPost(t *testing.T) {
	f := newPostFixture(t, 10)

	err := f.pi.ProcessDelete(context.Background(), &steem.DeleteCommentOp{Author: "ghost", Permlink: "x"}, false)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.True(t, IsSkippable(err))
}

func TestChildCount(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "root", "life"), blockDate, true))
	parent := f.store.live("alice", "root")
	assert.Equal(t, 0, parent.children)

	child := reply("bob", "re-root", "alice", "root")
	require.NoError(t, f.pi.ProcessComment(ctx, child, blockDate, true))
	assert.Equal(t, 1, parent.children)

	// an edit is not a new child
	require.NoError(t, f.pi.ProcessComment(ctx, child, blockDate, true))
	assert.Equal(t, 1, parent.children)

	childID := f.store.live("bob", "re-root").id
	require.NoError(t, f.pi.ProcessDelete(ctx, &steem.DeleteCommentOp{Author: "bob", Permlink: "re-root"}, true))
	assert.Equal(t, 0, parent.children)

	// an erroneous second decrement must not go negative
	require.NoError(t, f.pi.AdjustChildren(ctx, childID, -1))
	assert.Equal(t, 0, parent.children)
}

func TestReplyToMissingParent(t *testing.T) {
	f := newPostFixture(t, 10)

	err := f.pi.ProcessComment(context.Background(), reply("bob", "orphan", "ghost", "gone"), blockDate, false)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost/gone", nf.Key)
	assert.Empty(t, f.store.posts)
}

func TestChildCountOverflowSentinel(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "root", "life"), blockDate, true))
	parent := f.store.live("alice", "root")
	parent.children = models.ChildrenOverflow

	require.NoError(t, f.pi.ProcessComment(ctx, reply("bob", "c", "alice", "root"), blockDate, true))
	assert.Equal(t, 1, parent.children)
}

func TestReplyHasNoFeedEntry(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "root", "life"), blockDate, false))
	require.NoError(t, f.pi.ProcessComment(ctx, reply("bob", "c", "alice", "root"), blockDate, false))

	assert.Len(t, f.feed.entries, 1)
	assert.Contains(t, f.feed.entries, int64(1))
}

func TestCommunityPolicyViolation(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	f.store.communities["hive-123456"] = 55
	f.policy.denied["mallory"] = true

	err := f.pi.ProcessComment(ctx, topLevel("mallory", "spam", "hive-123456"), blockDate, false)

	var pe *PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "not authorized", pe.Reason)
	assert.True(t, IsSkippable(err))

	post := f.store.live("mallory", "spam")
	assert.True(t, post.muted)
	require.Len(t, f.notifs.created, 1)
	n := f.notifs.created[0]
	assert.Equal(t, models.NotifyTypeError, n.Type)
	assert.Equal(t, f.store.accounts["mallory"], n.DstID.Int64)
	assert.Equal(t, post.id, n.PostID.Int64)
	assert.Equal(t, "not authorized", n.Payload.String)

	// still indexed as a top-level post
	assert.Contains(t, f.feed.entries, post.id)
	assert.NotEmpty(t, f.tags.tags[post.id])
}

func TestCommunityPolicyViolationReplayNotifiesOnce(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	f.store.communities["hive-123456"] = 55
	f.policy.denied["mallory"] = true

	op := topLevel("mallory", "spam", "hive-123456")
	for i := 0; i < 2; i++ {
		var pe *PolicyError
		require.ErrorAs(t, f.pi.ProcessComment(ctx, op, blockDate, false), &pe)
	}

	require.Len(t, f.notifs.created, 1)
	assert.Equal(t, f.store.live("mallory", "spam").id, f.notifs.created[0].PostID.Int64)
}

func TestCommunityPolicySkippedDuringInitialSync(t *testing.T) {
	f := newPostFixture(t, 10)
	f.store.communities["hive-123456"] = 55
	f.policy.denied["mallory"] = true

	require.NoError(t, f.pi.ProcessComment(context.Background(), topLevel("mallory", "spam", "hive-123456"), blockDate, true))
	assert.False(t, f.store.live("mallory", "spam").muted)
	assert.Empty(t, f.notifs.created)
}

func TestCommunityPolicyAllowed(t *testing.T) {
	f := newPostFixture(t, 10)
	f.store.communities["hive-123456"] = 55

	require.NoError(t, f.pi.ProcessComment(context.Background(), topLevel("alice", "ok", "hive-123456"), blockDate, false))
	assert.False(t, f.store.live("alice", "ok").muted)
	assert.Empty(t, f.notifs.created)
}

func TestProcessCommentStoreFailure(t *testing.T) {
	f := newPostFixture(t, 10)
	f.store.failProcess = true

	err := f.pi.ProcessComment(context.Background(), topLevel("alice", "hello", "life"), blockDate, false)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.False(t, IsSkippable(err))
}

func TestProcessOptionsDefaults(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "hello", "life"), blockDate, true))

	require.NoError(t, f.pi.ProcessOptions(ctx, &steem.CommentOptionsOp{Author: "alice", Permlink: "hello"}))

	got := f.store.byID(1).options
	require.NotNil(t, got)
	assert.Equal(t, "1000000.000 SBD", got.MaxAcceptedPayout)
	assert.Equal(t, 10000, got.PercentSteemDollars)
	assert.True(t, got.AllowVotes)
	assert.True(t, got.AllowCurationRewards)
	assert.Equal(t, "[]", got.Beneficiaries)
}

func TestProcessOptionsExplicit(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "hello", "life"), blockDate, true))

	pct := 0
	no := false
	payout := normalize.Asset{Amount: 0, Precision: 3, Symbol: "SBD"}
	op := &steem.CommentOptionsOp{
		Author:               "alice",
		Permlink:             "hello",
		MaxAcceptedPayout:    &payout,
		PercentSteemDollars:  &pct,
		AllowCurationRewards: &no,
		Extensions: []interface{}{
			[]interface{}{float64(0), map[string]interface{}{
				"beneficiaries": []interface{}{map[string]interface{}{"account": "carol", "weight": float64(1000)}},
			}},
		},
	}
	require.NoError(t, f.pi.ProcessOptions(ctx, op))

	got := f.store.byID(1).options
	assert.Equal(t, "0.000 SBD", got.MaxAcceptedPayout)
	assert.Equal(t, 0, got.PercentSteemDollars)
	assert.True(t, got.AllowVotes)
	assert.False(t, got.AllowCurationRewards)
	assert.JSONEq(t, `[{"account":"carol","weight":1000}]`, got.Beneficiaries)
}

func TestProcessOptionsUnknownPost(t *testing.T) {
	f := newPostFixture(t, 10)

	err := f.pi.ProcessOptions(context.Background(), &steem.CommentOptionsOp{Author: "ghost", Permlink: "x"})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func sbd(amount int64) normalize.Asset {
	return normalize.Asset{Amount: amount, Precision: 3, Symbol: "SBD"}
}

func vests(amount int64) normalize.Asset {
	return normalize.Asset{Amount: amount, Precision: 6, Symbol: "VESTS"}
}

func TestProcessPayoutsFullSettlement(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "hello", "life"), blockDate, true))
	settled := blockDate.Add(7 * 24 * time.Hour)

	ops := []steem.Operation{
		&steem.CurationRewardOp{Curator: "c1", Reward: vests(1000), CommentAuthor: "alice", CommentPermlink: "hello"},
		&steem.CurationRewardOp{Curator: "c2", Reward: vests(500), CommentAuthor: "alice", CommentPermlink: "hello"},
		&steem.AuthorRewardOp{Author: "alice", Permlink: "hello", SbdPayout: sbd(1250), SteemPayout: sbd(0), VestingPayout: vests(2000000)},
		&steem.CommentRewardOp{Author: "alice", Permlink: "hello", AuthorRewards: 3000,
			TotalPayoutValue: sbd(2500), CuratorPayoutValue: sbd(1000), Payout: sbd(2500)},
		&steem.CommentPayoutUpdateOp{Author: "alice", Permlink: "hello"},
	}

	stats, err := f.pi.ProcessPayouts(ctx, ops, settled)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		steem.KindCurationReward:      2,
		steem.KindAuthorReward:        1,
		steem.KindCommentReward:       1,
		steem.KindCommentPayoutUpdate: 1,
	}, stats)

	u := f.store.byID(1).payout
	assert.Equal(t, int64(1500), u.CurationRewardsVests.Int64)
	assert.Equal(t, int64(1250), u.AuthorRewardsSbd.Int64)
	assert.Equal(t, int64(0), u.AuthorRewardsSteem.Int64)
	assert.True(t, u.AuthorRewardsSteem.Valid)
	assert.Equal(t, int64(2000000), u.AuthorRewardsVests.Int64)
	assert.Equal(t, int64(3000), u.AuthorRewards.Int64)
	assert.Equal(t, "2.500 SBD", u.TotalPayoutValue.String)
	assert.Equal(t, "1.000 SBD", u.CuratorPayoutValue.String)
	assert.InDelta(t, 3.5, u.Payout.Float64, 1e-9)
	assert.True(t, u.PendingPayout.Valid)
	assert.Zero(t, u.PendingPayout.Float64)
	assert.Equal(t, settled, u.PayoutAt.Time)
	assert.Equal(t, settled, u.LastPayout.Time)
	assert.Equal(t, settled, u.CashoutTime.Time)
	assert.True(t, u.IsPaidout.Bool)
	assert.Equal(t, settled, u.UpdatedAt)
}

func TestProcessPayoutsCurationOnly(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()
	require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", "hello", "life"), blockDate, true))

	_, err := f.pi.ProcessPayouts(ctx, []steem.Operation{
		&steem.CurationRewardOp{Curator: "c1", Reward: vests(10), CommentAuthor: "alice", CommentPermlink: "hello"},
	}, blockDate)
	require.NoError(t, err)

	u := f.store.byID(1).payout
	assert.True(t, u.CurationRewardsVests.Valid)
	assert.False(t, u.TotalPayoutValue.Valid)
	assert.False(t, u.CuratorPayoutValue.Valid)
	assert.False(t, u.Payout.Valid)
	assert.False(t, u.PendingPayout.Valid, "no pending payout reset without both totals")
	assert.False(t, u.PayoutAt.Valid)
	assert.False(t, u.LastPayout.Valid)
	assert.False(t, u.CashoutTime.Valid)
	assert.False(t, u.IsPaidout.Valid)
}

func TestProcessPayoutsBatching(t *testing.T) {
	f := newPostFixture(t, 2)
	ctx := context.Background()

	var ops []steem.Operation
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", p, "life"), blockDate, true))
		ops = append(ops, &steem.CommentPayoutUpdateOp{Author: "alice", Permlink: p})
	}
	// a second op for the first post joins its group
	ops = append(ops, &steem.AuthorRewardOp{Author: "alice", Permlink: "a", SbdPayout: sbd(1)})
	ops = append(ops, &steem.CommentPayoutUpdateOp{Author: "ghost", Permlink: "missing"})

	stats, err := f.pi.ProcessPayouts(ctx, ops, blockDate)
	require.NoError(t, err)
	assert.Equal(t, 6, stats[steem.KindCommentPayoutUpdate])

	require.Len(t, f.store.payoutCalls, 3)
	assert.Len(t, f.store.payoutCalls[0], 2)
	assert.Len(t, f.store.payoutCalls[1], 2)
	assert.Len(t, f.store.payoutCalls[2], 1)
	assert.Equal(t, int64(1), f.store.payoutCalls[0][0].PostID)
	assert.True(t, f.store.payoutCalls[0][0].AuthorRewardsSbd.Valid)
}

func TestProcessPayoutsPrefetchesUncachedIDs(t *testing.T) {
	f := newPostFixture(t, 10)
	ctx := context.Background()

	var ops []steem.Operation
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, f.pi.ProcessComment(ctx, topLevel("alice", p, "life"), blockDate, true))
		ops = append(ops, &steem.CommentPayoutUpdateOp{Author: "alice", Permlink: p})
	}
	ops = append(ops, &steem.CommentPayoutUpdateOp{Author: "ghost", Permlink: "missing"})
	f.ids.Reset()
	f.store.lookups = 0

	_, err := f.pi.ProcessPayouts(ctx, ops, blockDate)
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.batchLookup)
	assert.Equal(t, 1, f.store.lookups, "only the unknown post falls back to a point lookup")
	assert.Equal(t, 3, f.ids.Len())
	require.Len(t, f.store.payoutCalls, 1)
	assert.Len(t, f.store.payoutCalls[0], 3)

	_, err = f.pi.ProcessPayouts(ctx, ops[:3], blockDate)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.batchLookup, "cached posts need no batch query")
}
