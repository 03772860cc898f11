package indexer

import (
	"context"
	"time"

	"github.com/steemit/hivemind-indexer/internal/idcache"
	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/internal/steem"
)

// PostStore is the persisted side of the post lifecycle
type PostStore interface {
	// ProcessPost creates or updates the live post of op's author/permlink.
	// It returns nil when the parent of a reply does not exist.
	ProcessPost(ctx context.Context, op *steem.CommentOp, date time.Time) (*models.PostResult, error)
	// DeletePost soft-deletes the live post. It returns nil when there is none.
	DeletePost(ctx context.Context, author, permlink string) (*models.DeleteResult, error)
	// AdjustChildren adds delta to the children count of childID's parent.
	AdjustChildren(ctx context.Context, childID int64, delta int) error
	SetMuted(ctx context.Context, postID int64, muted bool) error
	UpdateOptions(ctx context.Context, opts *models.PostOptions) error
	ApplyPayouts(ctx context.Context, updates []models.PayoutUpdate) error
}

// PostIDLoader resolves the live ids of many posts in one query. Posts that
// do not exist are left out of the result.
type PostIDLoader interface {
	PostIDs(ctx context.Context, refs []idcache.Ref) ([]idcache.Ref, error)
}

// PostDataWriter stores post bodies
type PostDataWriter interface {
	StoreData(ctx context.Context, data *models.PostData) error
}

// TagWriter registers post tags
type TagWriter interface {
	AddTag(ctx context.Context, postID int64, tag string) error
}

// FeedWriter maintains the feed cache
type FeedWriter interface {
	Insert(ctx context.Context, postID, accountID int64, at time.Time) error
	Delete(ctx context.Context, postID int64) error
}

// VoteStore opens the transaction a vote flush runs in
type VoteStore interface {
	Begin(ctx context.Context) (VoteTx, error)
}

// VoteTx applies ordered vote upserts and the headers of the blocks they
// came from inside one transaction
type VoteTx interface {
	UpsertVotes(ctx context.Context, rows []models.VoteRow) error
	SaveBlocks(ctx context.Context, blocks []*models.Block) error
	Commit() error
	Rollback() error
}

// Notifier records notifications
type Notifier interface {
	Write(ctx context.Context, typeID int16, when time.Time, srcID, dstID, communityID, postID *int64, payload *string, score *int16) error
}

// CommunityPolicy decides whether an author may post into a community
type CommunityPolicy interface {
	IsPostValid(ctx context.Context, communityID int64, op *steem.CommentOp) (bool, error)
}

// NotificationStore persists notifications
type NotificationStore interface {
	Create(ctx context.Context, notif *models.Notification) error
}

// AccountStore persists accounts
type AccountStore interface {
	GetByName(ctx context.Context, name string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
}

// CommunityStore persists communities and roles
type CommunityStore interface {
	GetByID(ctx context.Context, id int64) (*models.Community, error)
	// Role returns the role of account in the community, RoleGuest when unset.
	Role(ctx context.Context, communityID int64, account string) (int16, error)
	// Create inserts the community with its owner role. It reports false
	// when the community already existed.
	Create(ctx context.Context, community *models.Community, owner *models.Role) (bool, error)
}

// BlockStore reports the last processed block. Headers are written by the
// vote flush.
type BlockStore interface {
	Head(ctx context.Context) (*models.Block, error)
}

// BlockSource fetches irreversible blocks from the node
type BlockSource interface {
	GetBlocks(ctx context.Context, from, to int64) ([]*steem.Block, error)
	LastIrreversible(ctx context.Context) (int64, error)
}
