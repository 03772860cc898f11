package models

import (
	"time"
)

// FeedCache is the feed entry of a top-level post
type FeedCache struct {
	PostID    int64     `gorm:"primaryKey;column:post_id"`
	AccountID int64     `gorm:"primaryKey;column:account_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for FeedCache
func (FeedCache) TableName() string {
	return "hive_feed_cache"
}
