package models

import (
	"time"
)

// Account represents a Steem account
type Account struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Name       string    `gorm:"type:varchar(16);not null;uniqueIndex:hive_accounts_ux1;column:name"`
	CreatedAt  time.Time `gorm:"not null;column:created_at"`
	Reputation float64   `gorm:"type:float(6);not null;default:25;column:reputation"`
	PostCount  int64     `gorm:"not null;default:0;column:post_count"`
}

// TableName specifies the table name for Account
func (Account) TableName() string {
	return "hive_accounts"
}
