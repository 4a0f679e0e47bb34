package models

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message is a WhatsApp message exchanged with a contact.
type Message struct {
	BaseModel

	CompanyID   string  `gorm:"type:uuid;not null;index" json:"company_id"`
	ContactID   string  `gorm:"type:uuid;not null;index" json:"contact_id"`
	TicketID    *string `gorm:"type:uuid;index" json:"ticket_id,omitempty"`
	ExecutionID *string `gorm:"type:uuid;index" json:"execution_id,omitempty"`
	Direction   string  `gorm:"type:varchar(16);not null" json:"direction"`
	Body        string  `gorm:"type:text" json:"body"`
	MediaURL    string  `json:"media_url,omitempty"`
	MediaType   string  `gorm:"type:varchar(16)" json:"media_type,omitempty"`
	ExternalID  string  `gorm:"type:varchar(128);index" json:"external_id,omitempty"`

	Contact *Contact `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"-"`
}
