package model

import "github.com/inmobium/crm-messaging/pkg/pg"

// Operation-type codes. Rows are tenant data; code is the stable handle, ids
// are never hardcoded.
const (
	OperationCodeSale        = "sale"
	OperationCodeRental      = "rental"
	OperationCodeMaintenance = "maintenance"
)

type OperationType struct {
	pg.Model
	Code string `json:"code" gorm:"column:code;not null;uniqueIndex"`
	Name string `json:"name" gorm:"column:name;not null"`
}

func (OperationType) TableName() string { return "operation_types" }

// Property lifecycle states. Only the three operative states count for
// operation-type inference.
const (
	PropertyStatusAvailable = "disponible"
	PropertyStatusOccupied  = "alquilada"
	PropertyStatusInRepair  = "en_reparacion"
)

// Property is external to this core; it is only read to infer the operation
// type of auto-created opportunities.
type Property struct {
	pg.Model
	ContactID       int64          `json:"contact_id"        gorm:"column:contact_id;not null;index"`
	Contact         *Contact       `json:"-"                 gorm:"foreignKey:ContactID;references:ID"`
	OperationTypeID int64          `json:"operation_type_id" gorm:"column:operation_type_id;not null"`
	OperationType   *OperationType `json:"-"                 gorm:"foreignKey:OperationTypeID;references:ID"`
	Active          bool           `json:"active"            gorm:"column:active;not null;default:true"`
	Status          string         `json:"status"            gorm:"column:status;not null"`
}

func (Property) TableName() string { return "properties" }

// Operative reports whether the property is in one of the states that keep a
// rental engagement alive.
func (p Property) Operative() bool {
	switch p.Status {
	case PropertyStatusAvailable, PropertyStatusOccupied, PropertyStatusInRepair:
		return true
	}
	return false
}
