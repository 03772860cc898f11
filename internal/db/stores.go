package db

import (
	"github.com/steemit/hivemind-indexer/internal/idcache"
	"github.com/steemit/hivemind-indexer/internal/indexer"
)

var (
	_ idcache.Lookup            = (*PostRepository)(nil)
	_ indexer.PostIDLoader      = (*PostRepository)(nil)
	_ indexer.PostStore         = (*PostStore)(nil)
	_ indexer.PostDataWriter    = (*PostDataRepository)(nil)
	_ indexer.TagWriter         = (*TagRepository)(nil)
	_ indexer.FeedWriter        = (*FeedCacheRepository)(nil)
	_ indexer.NotificationStore = (*NotificationRepository)(nil)
	_ indexer.AccountStore      = (*AccountRepository)(nil)
	_ indexer.CommunityStore    = (*CommunityRepository)(nil)
	_ indexer.BlockStore        = (*BlockRepository)(nil)
	_ indexer.VoteStore         = (*VoteRepository)(nil)
)
