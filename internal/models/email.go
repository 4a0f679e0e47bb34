package models

import "time"

// Email outbox statuses.
const (
	EmailPending    = "PENDING"
	EmailProcessing = "PROCESSING"
	EmailSent       = "SENT"
	EmailError      = "ERROR"
	EmailCancelled  = "CANCELLED"
)

// Email is an outbox entry delivered by the maintenance scheduler.
type Email struct {
	BaseModel

	CompanyID   string     `gorm:"type:uuid;not null;index" json:"company_id"`
	To          string     `gorm:"not null" json:"to"`
	Subject     string     `gorm:"not null" json:"subject"`
	Body        string     `gorm:"type:text" json:"body"`
	Status      string     `gorm:"type:varchar(16);not null;index" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	ScheduledAt time.Time  `gorm:"not null;index" json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}
