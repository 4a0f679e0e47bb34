package models

import "gorm.io/datatypes"

// Contact is a WhatsApp counterpart identified by number within a company.
type Contact struct {
	BaseModel

	CompanyID string         `gorm:"type:uuid;not null;uniqueIndex:idx_contact_company_number,priority:1" json:"company_id"`
	Number    string         `gorm:"type:varchar(32);not null;uniqueIndex:idx_contact_company_number,priority:2" json:"number"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	ExtraInfo datatypes.JSON `gorm:"type:json" json:"extra_info,omitempty"`
}
