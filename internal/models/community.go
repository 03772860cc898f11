package models

import (
	"database/sql"
	"time"
)

// Community is a community account registered on chain. Its id is the id of
// the hive-NNNNNN account that owns it.
type Community struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false;column:id"`
	TypeID    int16     `gorm:"type:smallint;not null;column:type_id"`
	Lang      string    `gorm:"type:char(2);not null;default:'en';column:lang"`
	Name      string    `gorm:"type:varchar(16);not null;uniqueIndex:hive_communities_ux1;column:name"`
	Title     string    `gorm:"type:varchar(32);not null;default:'';column:title"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
	IsNSFW    bool      `gorm:"not null;default:false;column:is_nsfw"`
}

// TableName specifies the table name for Community
func (Community) TableName() string {
	return "hive_communities"
}

// Community type constants. Only members may start threads in journals
// and councils; anyone not muted may post in a topic.
const (
	CommunityTypeTopic   int16 = 1
	CommunityTypeJournal int16 = 2
	CommunityTypeCouncil int16 = 3
)

// CommunityNamePrefix marks account names that are communities
const CommunityNamePrefix = "hive-"

// Role represents a community role
type Role struct {
	CommunityID int64          `gorm:"primaryKey;column:community_id"`
	AccountID   int64          `gorm:"primaryKey;column:account_id"`
	Role        int16          `gorm:"type:smallint;not null;default:0;column:role"`
	Title       sql.NullString `gorm:"type:varchar(140);column:title"`
	CreatedAt   time.Time      `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Role
func (Role) TableName() string {
	return "hive_roles"
}

// Role constants
const (
	RoleMuted  int16 = -2 // Muted
	RoleGuest  int16 = 0  // Guest
	RoleMember int16 = 2  // Member
	RoleMod    int16 = 4  // Moderator
	RoleAdmin  int16 = 6  // Admin
	RoleOwner  int16 = 8  // Owner
)
