package models

import "gorm.io/datatypes"

// Company is the tenant boundary. Every other business row carries its ID and
// is removed with it.
type Company struct {
	BaseModel

	Name         string         `gorm:"not null" json:"name"`
	Timezone     string         `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	WebhookToken string         `gorm:"type:varchar(128);uniqueIndex;not null" json:"-"`
	Settings     datatypes.JSON `gorm:"type:json" json:"settings,omitempty"`

	Users        []User                 `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Contacts     []Contact              `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Queues       []Queue                `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Tickets      []Ticket               `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Flows        []FlowBuilder          `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	FlowNodes    []FlowNode             `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Executions   []FlowBuilderExecution `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Appointments []Appointment          `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Messages     []Message              `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Emails       []Email                `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
}
