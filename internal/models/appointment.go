package models

import "time"

// Appointment statuses.
const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)

// Appointment is a booked time slot for a contact.
type Appointment struct {
	BaseModel

	CompanyID   string     `gorm:"type:uuid;not null;index:idx_appointment_window,priority:1" json:"company_id"`
	ContactID   string     `gorm:"type:uuid;not null;index" json:"contact_id"`
	UserID      *string    `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ExecutionID *string    `gorm:"type:uuid" json:"execution_id,omitempty"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	StartsAt    time.Time  `gorm:"not null;index:idx_appointment_window,priority:2" json:"starts_at"`
	EndsAt      time.Time  `gorm:"not null" json:"ends_at"`
	Status      string     `gorm:"type:varchar(16);not null;index" json:"status"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Contact *Contact `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"contact,omitempty"`
}

// Blocking reports whether the appointment occupies its slot.
func (a *Appointment) Blocking() bool {
	return a != nil && (a.Status == AppointmentPending || a.Status == AppointmentConfirmed)
}
