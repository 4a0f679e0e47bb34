package models

// Queue groups attendants; flows transfer tickets into queues.
type Queue struct {
	BaseModel

	CompanyID       string `gorm:"type:uuid;not null;uniqueIndex:idx_queue_company_name,priority:1" json:"company_id"`
	Name            string `gorm:"not null;uniqueIndex:idx_queue_company_name,priority:2" json:"name"`
	Color           string `gorm:"type:varchar(16)" json:"color"`
	GreetingMessage string `gorm:"type:text" json:"greeting_message,omitempty"`
}
