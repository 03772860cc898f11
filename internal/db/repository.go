package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/steemit/hivemind-indexer/internal/idcache"
	"github.com/steemit/hivemind-indexer/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AccountRepository provides account-related database operations
type AccountRepository struct {
	*Repository
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(repo *Repository) *AccountRepository {
	return &AccountRepository{Repository: repo}
}

// GetByName retrieves an account by name
func (r *AccountRepository) GetByName(ctx context.Context, name string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Create creates a new account
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// BlockRepository provides block-related database operations
type BlockRepository struct {
	*Repository
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(repo *Repository) *BlockRepository {
	return &BlockRepository{Repository: repo}
}

// Head retrieves the head block (highest block number)
func (r *BlockRepository) Head(ctx context.Context) (*models.Block, error) {
	var block models.Block
	if err := r.db.WithContext(ctx).Order("num DESC").First(&block).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &block, nil
}

// SaveBlocks records processed block headers. Blocks already stored are
// left untouched.
func (r *BlockRepository) SaveBlocks(ctx context.Context, blocks []*models.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "num"}}, DoNothing: true}).
		CreateInBatches(blocks, 500).Error
}

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// PostID returns the id of the live post of author/permlink, 0 when there
// is none
func (r *PostRepository) PostID(ctx context.Context, author, permlink string) (int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("hive_posts hp").
		Joins("INNER JOIN hive_accounts ha ON ha.id = hp.author_id").
		Joins("INNER JOIN hive_permlink_data hpd ON hpd.id = hp.permlink_id").
		Where("ha.name = ? AND hpd.permlink = ? AND hp.counter_deleted = 0", author, permlink).
		Limit(1).
		Pluck("hp.id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

const postIDsSQL = `
SELECT v.author, v.permlink, hp.id
FROM (VALUES %s) AS v(author, permlink)
INNER JOIN hive_accounts ha ON ha.name = v.author
INNER JOIN hive_permlink_data hpd ON hpd.permlink = v.permlink
INNER JOIN hive_posts hp ON hp.author_id = ha.id AND hp.permlink_id = hpd.id AND hp.counter_deleted = 0`

// PostIDs resolves the live ids of refs in one query. Refs without a live
// post are left out.
func (r *PostRepository) PostIDs(ctx context.Context, refs []idcache.Ref) ([]idcache.Ref, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, 2*len(refs))
	for _, ref := range refs {
		args = append(args, ref.Author, ref.Permlink)
	}

	var found []idcache.Ref
	sql := replaceValues(postIDsSQL, valuesList("(?::varchar, ?::varchar)", len(refs)))
	if err := r.db.WithContext(ctx).Raw(sql, args...).Scan(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}
