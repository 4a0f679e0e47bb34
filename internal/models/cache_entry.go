package models

import "time"

// CacheEntry is one row of the SQL-backed cache. Parsed flow graphs live in
// Value while rate-limit windows only use Counter. A nil ExpiresAt never
// expires.
type CacheEntry struct {
	Key       string `gorm:"column:cache_key;primaryKey;size:191"`
	Value     []byte
	Counter   int64      `gorm:"not null;default:0"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (CacheEntry) TableName() string { return "cache_entries" }
