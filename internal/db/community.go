package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/steemit/hivemind-indexer/internal/models"
)

// CommunityRepository provides community and role database operations
type CommunityRepository struct {
	*Repository
}

// NewCommunityRepository creates a new community repository
func NewCommunityRepository(repo *Repository) *CommunityRepository {
	return &CommunityRepository{Repository: repo}
}

// GetByID retrieves a community by ID
func (r *CommunityRepository) GetByID(ctx context.Context, id int64) (*models.Community, error) {
	var community models.Community
	if err := r.db.WithContext(ctx).First(&community, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &community, nil
}

// Role returns the role of account in the community, RoleGuest when unset
func (r *CommunityRepository) Role(ctx context.Context, communityID int64, account string) (int16, error) {
	var roles []int16
	err := r.db.WithContext(ctx).
		Table("hive_roles hr").
		Joins("INNER JOIN hive_accounts ha ON ha.id = hr.account_id").
		Where("hr.community_id = ? AND ha.name = ?", communityID, account).
		Limit(1).
		Pluck("hr.role", &roles).Error
	if err != nil {
		return 0, err
	}
	if len(roles) == 0 {
		return models.RoleGuest, nil
	}
	return roles[0], nil
}

// Create inserts the community and its owner role in one transaction. It
// reports false when the community already existed.
func (r *CommunityRepository) Create(ctx context.Context, community *models.Community, owner *models.Role) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(community)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(owner).Error
	})
	return created, err
}
