package models

import (
	"time"

	"github.com/guregu/null"
)

// ChildrenOverflow is the children value the chain reports after a fixed-width
// counter wrapped. It is read as zero.
const ChildrenOverflow = 32762

// Post represents a post or comment. A live post has CounterDeleted 0;
// deleting it moves it to a fresh counter so the author/permlink pair is free
// to be created again.
type Post struct {
	ID             int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ParentID       null.Int  `gorm:"column:parent_id"`
	AuthorID       int64     `gorm:"not null;column:author_id;uniqueIndex:hive_posts_ux1,priority:1"`
	PermlinkID     int64     `gorm:"not null;column:permlink_id;uniqueIndex:hive_posts_ux1,priority:2"`
	CounterDeleted int32     `gorm:"not null;default:0;column:counter_deleted;uniqueIndex:hive_posts_ux1,priority:3"`
	Category       string    `gorm:"type:varchar(255);not null;default:'';column:category"`
	CommunityID    null.Int  `gorm:"column:community_id"`
	CreatedAt      time.Time `gorm:"not null;column:created_at"`
	UpdatedAt      time.Time `gorm:"not null;column:updated_at"`
	Depth          int16     `gorm:"type:smallint;not null;default:0;column:depth"`
	IsDeleted      bool      `gorm:"not null;default:false;column:is_deleted"`
	IsPinned       bool      `gorm:"not null;default:false;column:is_pinned"`
	IsMuted        bool      `gorm:"not null;default:false;column:is_muted"`
	IsValid        bool      `gorm:"not null;default:true;column:is_valid"`
	IsEdited       bool      `gorm:"not null;default:false;column:is_edited"`
	Children       int32     `gorm:"not null;default:0;column:children"`

	TotalPayoutValue     string    `gorm:"type:varchar(30);not null;default:'';column:total_payout_value"`
	CuratorPayoutValue   string    `gorm:"type:varchar(30);not null;default:'';column:curator_payout_value"`
	CurationRewardsVests int64     `gorm:"not null;default:0;column:curation_rewards_vests"`
	AuthorRewards        int64     `gorm:"not null;default:0;column:author_rewards"`
	AuthorRewardsSteem   int64     `gorm:"not null;default:0;column:author_rewards_steem"`
	AuthorRewardsSbd     int64     `gorm:"not null;default:0;column:author_rewards_sbd"`
	AuthorRewardsVests   int64     `gorm:"not null;default:0;column:author_rewards_vests"`
	Payout               float64   `gorm:"type:numeric(10,3);not null;default:0;column:payout"`
	PendingPayout        float64   `gorm:"type:numeric(10,3);not null;default:0;column:pending_payout"`
	PayoutAt             null.Time `gorm:"column:payout_at"`
	LastPayout           null.Time `gorm:"column:last_payout"`
	CashoutTime          null.Time `gorm:"column:cashout_time"`
	IsPaidout            bool      `gorm:"not null;default:false;column:is_paidout"`

	MaxAcceptedPayout    string `gorm:"type:varchar(30);not null;default:'1000000.000 SBD';column:max_accepted_payout"`
	PercentSteemDollars  int16  `gorm:"type:smallint;not null;default:10000;column:percent_steem_dollars"`
	AllowVotes           bool   `gorm:"not null;default:true;column:allow_votes"`
	AllowCurationRewards bool   `gorm:"not null;default:true;column:allow_curation_rewards"`
	Beneficiaries        string `gorm:"type:json;not null;default:'[]';column:beneficiaries"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "hive_posts"
}

// PostData holds the variable-size content of a post
type PostData struct {
	ID      int64  `gorm:"primaryKey;autoIncrement:false;column:id"`
	Title   string `gorm:"type:varchar(512);not null;default:'';column:title"`
	Preview string `gorm:"type:varchar(1024);not null;default:'';column:preview"`
	ImgURL  string `gorm:"type:varchar(1024);not null;default:'';column:img_url"`
	Body    string `gorm:"type:text;not null;default:'';column:body"`
	JSON    string `gorm:"type:text;not null;default:'{}';column:json"`
}

// TableName specifies the table name for PostData
func (PostData) TableName() string {
	return "hive_post_data"
}

// PostTag represents a post-to-tag mapping
type PostTag struct {
	PostID int64  `gorm:"primaryKey;column:post_id"`
	Tag    string `gorm:"type:varchar(32);primaryKey;column:tag"`
}

// TableName specifies the table name for PostTag
func (PostTag) TableName() string {
	return "hive_post_tags"
}

// PostResult is the row returned by process_hive_post_operation
type PostResult struct {
	ID           int64    `gorm:"column:id"`
	AuthorID     int64    `gorm:"column:author_id"`
	PermlinkID   int64    `gorm:"column:permlink_id"`
	PostCategory string   `gorm:"column:post_category"`
	ParentID     null.Int `gorm:"column:parent_id"`
	CommunityID  null.Int `gorm:"column:community_id"`
	IsValid      bool     `gorm:"column:is_valid"`
	IsMuted      bool     `gorm:"column:is_muted"`
	Depth        int16    `gorm:"column:depth"`
	IsEdited     bool     `gorm:"column:is_edited"`
}

// DeleteResult is the row returned by delete_hive_post
type DeleteResult struct {
	ID    int64 `gorm:"column:id"`
	Depth int16 `gorm:"column:depth"`
}

// PostOptions are the payout options of a post
type PostOptions struct {
	PostID               int64
	MaxAcceptedPayout    string
	PercentSteemDollars  int
	AllowVotes           bool
	AllowCurationRewards bool
	Beneficiaries        string
}

// PayoutUpdate is a sparse payout update. Invalid fields keep their stored
// value.
type PayoutUpdate struct {
	PostID               int64
	TotalPayoutValue     null.String
	CuratorPayoutValue   null.String
	CurationRewardsVests null.Int
	AuthorRewards        null.Int
	AuthorRewardsSteem   null.Int
	AuthorRewardsSbd     null.Int
	AuthorRewardsVests   null.Int
	Payout               null.Float
	PendingPayout        null.Float
	PayoutAt             null.Time
	LastPayout           null.Time
	CashoutTime          null.Time
	IsPaidout            null.Bool
	UpdatedAt            time.Time
}
