package models

import "time"

// User profiles.
const (
	ProfileAdmin = "admin"
	ProfileUser  = "user"
)

// User is an agent or administrator working inside a company.
type User struct {
	BaseModel

	CompanyID string `gorm:"type:uuid;not null;index" json:"company_id"`
	Name      string `gorm:"not null" json:"name"`
	Email     string `gorm:"uniqueIndex;not null" json:"email"`
	Password  string `gorm:"not null" json:"-"`
	Profile   string `gorm:"type:varchar(16);not null;default:'user'" json:"profile"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// IsAdmin reports whether the user carries the admin profile.
func (u *User) IsAdmin() bool {
	return u != nil && u.Profile == ProfileAdmin
}
