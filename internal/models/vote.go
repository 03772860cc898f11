package models

import "time"

// VoteRow is a buffered vote ready for an ordered upsert. OrderID fixes the
// order in which rows for the same key are applied.
type VoteRow struct {
	OrderID     int
	Voter       string
	Author      string
	Permlink    string
	Weight      int64
	Rshares     int64
	VotePercent int
	LastUpdate  time.Time
	NumChanges  int
	BlockNum    int64
	IsEffective bool
}
