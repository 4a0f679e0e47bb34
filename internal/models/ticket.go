package models

import "time"

// Ticket statuses.
const (
	TicketStatusPending = "pending"
	TicketStatusOpen    = "open"
	TicketStatusClosed  = "closed"
)

// Ticket is a human-attended conversation with a contact.
type Ticket struct {
	BaseModel

	CompanyID   string     `gorm:"type:uuid;not null;index" json:"company_id"`
	ContactID   string     `gorm:"type:uuid;not null;index" json:"contact_id"`
	QueueID     *string    `gorm:"type:uuid;index" json:"queue_id,omitempty"`
	UserID      *string    `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Status      string     `gorm:"type:varchar(16);not null;index" json:"status"`
	LastMessage string     `gorm:"type:text" json:"last_message,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	Contact *Contact `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"contact,omitempty"`
	Queue   *Queue   `gorm:"foreignKey:QueueID;constraint:OnDelete:SET NULL" json:"queue,omitempty"`
	User    *User    `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`
}

// Attended reports whether the ticket sits with a human, either assigned to a
// user or waiting in a queue.
func (t *Ticket) Attended() bool {
	if t == nil || t.Status == TicketStatusClosed {
		return false
	}
	return t.UserID != nil || t.QueueID != nil
}
