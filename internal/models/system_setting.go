package models

import "time"

// SystemSetting is an installation-wide value kept across restarts, such as
// the JWT signing secret and the vault master key. Generated marks values the
// server created itself on first boot.
type SystemSetting struct {
	Key       string `gorm:"column:setting_key;primaryKey;size:128"`
	Value     string `gorm:"not null"`
	Generated bool   `gorm:"not null;default:false"`
	UpdatedAt time.Time
}
