package models

import (
	"time"

	"gorm.io/datatypes"
)

// Trigger match modes for FlowBuilder keywords.
const (
	TriggerExact    = "exact"
	TriggerContains = "contains"
)

// FlowBuilder is a saved, versioned flow graph.
type FlowBuilder struct {
	BaseModel

	CompanyID   string `gorm:"type:uuid;not null;index" json:"company_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Version     int    `gorm:"not null;default:1" json:"version"`
	Active      bool   `gorm:"not null;default:false;index" json:"active"`
	IsDefault   bool   `gorm:"not null;default:false" json:"is_default"`

	TriggerType string                      `gorm:"type:varchar(16)" json:"trigger_type,omitempty"`
	Keywords    datatypes.JSONSlice[string] `gorm:"type:json" json:"keywords,omitempty"`

	Nodes datatypes.JSON `gorm:"type:json" json:"nodes"`
	Edges datatypes.JSON `gorm:"type:json" json:"edges"`

	InactivityTimeout         int     `gorm:"not null;default:0" json:"inactivity_timeout"`
	InactivityMaxWarnings     int     `gorm:"not null;default:0" json:"inactivity_max_warnings"`
	InactivityWarningMessage  string  `gorm:"type:text" json:"inactivity_warning_message,omitempty"`
	InactivityEndMessage      string  `gorm:"type:text" json:"inactivity_end_message,omitempty"`
	InactivityTransferQueueID *string `gorm:"type:uuid" json:"inactivity_transfer_queue_id,omitempty"`
}

// FlowNode stores the typed configuration of one node of a flow, keyed by
// company, flow and node id. Secret header values never appear in Config.
type FlowNode struct {
	BaseModel

	CompanyID        string         `gorm:"type:uuid;not null;uniqueIndex:idx_flow_node_key,priority:1" json:"company_id"`
	FlowID           string         `gorm:"type:uuid;not null;uniqueIndex:idx_flow_node_key,priority:2;index" json:"flow_id"`
	NodeID           string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_flow_node_key,priority:3" json:"node_id"`
	Type             string         `gorm:"type:varchar(32);not null;index" json:"type"`
	Config           datatypes.JSON `gorm:"type:json" json:"config"`
	EncryptedSecrets string         `gorm:"type:text" json:"-"`

	Flow *FlowBuilder `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE" json:"-"`
}

// Execution statuses.
const (
	ExecutionActive    = "active"
	ExecutionPaused    = "paused"
	ExecutionCompleted = "completed"
	ExecutionError     = "error"
	ExecutionInactive  = "inactive"
)

// FlowBuilderExecution is one contact's traversal of a flow.
type FlowBuilderExecution struct {
	BaseModel

	CompanyID     string         `gorm:"type:uuid;not null;index:idx_execution_live,priority:1" json:"company_id"`
	FlowID        string         `gorm:"type:uuid;not null;index" json:"flow_id"`
	FlowVersion   int            `gorm:"not null" json:"flow_version"`
	ContactID     string         `gorm:"type:uuid;not null;index:idx_execution_live,priority:2" json:"contact_id"`
	Status        string         `gorm:"type:varchar(16);not null;index:idx_execution_live,priority:3" json:"status"`
	CurrentNodeID string         `gorm:"type:varchar(128)" json:"current_node_id"`
	Waiting       bool           `gorm:"not null;default:false" json:"waiting"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	Variables     datatypes.JSON `gorm:"type:json" json:"variables"`
	Trigger       string         `gorm:"type:varchar(16)" json:"trigger"`
	Steps         int            `gorm:"not null;default:0" json:"steps"`

	EndReason    string `gorm:"type:varchar(32)" json:"end_reason,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	Inactivity        datatypes.JSON `gorm:"type:json" json:"inactivity,omitempty"`
	WarningsSent      int            `gorm:"not null;default:0" json:"warnings_sent"`
	LastInteractionAt time.Time      `gorm:"index" json:"last_interaction_at"`
	LastWarningAt     *time.Time     `json:"last_warning_at,omitempty"`
	ResumeAt          *time.Time     `gorm:"index" json:"resume_at,omitempty"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`

	Flow    *FlowBuilder   `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE" json:"flow,omitempty"`
	Contact *Contact       `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"contact,omitempty"`
	Logs    []ExecutionLog `gorm:"foreignKey:ExecutionID;constraint:OnDelete:CASCADE" json:"logs,omitempty"`
}

// Live reports whether the execution still owns the contact's conversation.
func (e *FlowBuilderExecution) Live() bool {
	return e != nil && (e.Status == ExecutionActive || e.Status == ExecutionPaused)
}

// ExecutionLog records a single node run of an execution.
type ExecutionLog struct {
	BaseModel

	CompanyID   string `gorm:"type:uuid;not null;index" json:"company_id"`
	ExecutionID string `gorm:"type:uuid;not null;index" json:"execution_id"`
	Step        int    `gorm:"not null" json:"step"`
	NodeID      string `gorm:"type:varchar(128);not null" json:"node_id"`
	NodeType    string `gorm:"type:varchar(32);not null" json:"node_type"`
	Handle      string `gorm:"type:varchar(64)" json:"handle,omitempty"`
	Result      string `gorm:"type:varchar(16);not null" json:"result"`
	Detail      string `gorm:"type:text" json:"detail,omitempty"`
}
