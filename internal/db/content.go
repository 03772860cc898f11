package db

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/steemit/hivemind-indexer/internal/models"
)

// PostDataRepository stores post bodies
type PostDataRepository struct {
	*Repository
}

// NewPostDataRepository creates a new post data repository
func NewPostDataRepository(repo *Repository) *PostDataRepository {
	return &PostDataRepository{Repository: repo}
}

// StoreData inserts or replaces the content of a post
func (r *PostDataRepository) StoreData(ctx context.Context, data *models.PostData) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "preview", "img_url", "body", "json"}),
		}).
		Create(data).Error
}

// TagRepository registers post tags
type TagRepository struct {
	*Repository
}

// NewTagRepository creates a new tag repository
func NewTagRepository(repo *Repository) *TagRepository {
	return &TagRepository{Repository: repo}
}

// AddTag links a tag to a post. Existing links are kept.
func (r *TagRepository) AddTag(ctx context.Context, postID int64, tag string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.PostTag{PostID: postID, Tag: tag}).Error
}

// FeedCacheRepository maintains hive_feed_cache
type FeedCacheRepository struct {
	*Repository
}

// NewFeedCacheRepository creates a new feed cache repository
func NewFeedCacheRepository(repo *Repository) *FeedCacheRepository {
	return &FeedCacheRepository{Repository: repo}
}

// Insert adds the feed entry of a top-level post
func (r *FeedCacheRepository) Insert(ctx context.Context, postID, accountID int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.FeedCache{PostID: postID, AccountID: accountID, CreatedAt: at}).Error
}

// Delete removes every feed entry of a post
func (r *FeedCacheRepository) Delete(ctx context.Context, postID int64) error {
	return r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Delete(&models.FeedCache{}).Error
}

// NotificationRepository persists notifications
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(repo *Repository) *NotificationRepository {
	return &NotificationRepository{Repository: repo}
}

// Create inserts a notification. A notification already recorded for the
// same event (hive_notifs_ux1) is left as is.
func (r *NotificationRepository) Create(ctx context.Context, notif *models.Notification) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(notif).Error
}
