package model

import (
	"time"

	"github.com/inmobium/crm-messaging/pkg/pg"
)

type OpportunityStatus string

const (
	OpportunityOpen    OpportunityStatus = "1-open"
	OpportunityVisit   OpportunityStatus = "2-visit"
	OpportunityQuote   OpportunityStatus = "3-quote"
	OpportunityReserve OpportunityStatus = "4-reserve"
	OpportunityWon     OpportunityStatus = "5-won"
	OpportunityLost    OpportunityStatus = "6-lost"
)

// Closed reports whether the opportunity can no longer receive inbound
// conversation traffic.
func (s OpportunityStatus) Closed() bool {
	return s == OpportunityWon || s == OpportunityLost
}

// Opportunity is the CRM engagement a conversation hangs off. A contact has
// at most one non-deleted opportunity in a non-closed state at any time.
type Opportunity struct {
	pg.Model
	ContactID       int64             `json:"contact_id"        gorm:"column:contact_id;not null;index"`
	Contact         *Contact          `json:"-"                 gorm:"foreignKey:ContactID;references:ID"`
	OperationTypeID *int64            `json:"operation_type_id" gorm:"column:operation_type_id"`
	OperationType   *OperationType    `json:"-"                 gorm:"foreignKey:OperationTypeID;references:ID"`
	Status          OpportunityStatus `json:"status"            gorm:"column:status;not null;default:'1-open'"`
	StatusDate      time.Time         `json:"status_date"       gorm:"column:status_date"`
	Active          bool              `json:"active"            gorm:"column:active;not null;default:true"`
	UserID          *int64            `json:"user_id"           gorm:"column:user_id"`
	Note            string            `json:"note"              gorm:"column:note"`
}

func (Opportunity) TableName() string { return "opportunities" }
