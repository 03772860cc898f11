package indexer

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/models"
	"github.com/steemit/hivemind-indexer/internal/steem"
)

const (
	// CommunityStartBlock is the block number when community features started
	CommunityStartBlock = 37500000
)

// hive-1xxxxx topics, hive-2xxxxx journals, hive-3xxxxx councils
var communityPattern = regexp.MustCompile(`^hive-[1-3]\d{4,6}$`)

// IsCommunityName reports whether an account name designates a community
func IsCommunityName(name string) bool {
	return communityPattern.MatchString(name)
}

// CommunityIndexer registers communities and decides who may post in them
type CommunityIndexer struct {
	accounts    AccountStore
	communities CommunityStore
	notifier    Notifier
	logger      *zap.Logger
}

// NewCommunityIndexer creates a new community indexer
func NewCommunityIndexer(accounts AccountStore, communities CommunityStore, notifier Notifier, logger *zap.Logger) *CommunityIndexer {
	return &CommunityIndexer{
		accounts:    accounts,
		communities: communities,
		notifier:    notifier,
		logger:      logger,
	}
}

// Register checks if newly registered accounts are communities and registers them
func (ci *CommunityIndexer) Register(ctx context.Context, accountNames []string, blockDate time.Time) error {
	for _, name := range accountNames {
		if !IsCommunityName(name) {
			continue
		}

		account, err := ci.accounts.GetByName(ctx, name)
		if err != nil {
			return storeErr("get community account "+name, err)
		}
		if account == nil {
			ci.logger.Warn("Community account not registered", zap.String("name", name))
			continue
		}

		community := &models.Community{
			ID:        account.ID,
			Name:      name,
			TypeID:    int16(name[len(models.CommunityNamePrefix)] - '0'),
			CreatedAt: blockDate,
		}
		owner := &models.Role{
			CommunityID: account.ID,
			AccountID:   account.ID,
			Role:        models.RoleOwner,
			CreatedAt:   blockDate,
		}

		created, err := ci.communities.Create(ctx, community, owner)
		if err != nil {
			return storeErr("create community "+name, err)
		}
		if !created {
			ci.logger.Debug("Community already exists", zap.String("name", name))
			continue
		}

		communityID := account.ID
		if err := ci.notifier.Write(ctx, models.NotifyTypeNewCommunity, blockDate, nil, &communityID, &communityID, nil, nil, nil); err != nil {
			return err
		}

		ci.logger.Info("Registered new community",
			zap.String("name", name),
			zap.Int64("id", account.ID),
			zap.Int16("type", community.TypeID))
	}

	return nil
}

// IsPostValid checks the author's role: muted accounts may not post, and
// only members may start threads in journals and councils.
func (ci *CommunityIndexer) IsPostValid(ctx context.Context, communityID int64, op *steem.CommentOp) (bool, error) {
	community, err := ci.communities.GetByID(ctx, communityID)
	if err != nil {
		return false, err
	}
	if community == nil {
		return false, nil
	}

	role, err := ci.communities.Role(ctx, communityID, op.Author)
	if err != nil {
		return false, err
	}

	if !op.IsReply() {
		switch community.TypeID {
		case models.CommunityTypeJournal, models.CommunityTypeCouncil:
			return role >= models.RoleMember, nil
		}
	}
	return role >= models.RoleGuest, nil
}
