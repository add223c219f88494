package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/inmobium/crm-messaging/pkg/pg"
)

// PhoneList is an ordered list of E.164 phone numbers stored as a JSON array.
// A phone belongs to at most one non-deleted contact; lookups use JSON
// containment rather than a join table.
type PhoneList []string

func (p PhoneList) Value() (driver.Value, error) {
	if p == nil {
		p = PhoneList{}
	}
	return json.Marshal(p)
}

func (p *PhoneList) Scan(value interface{}) error {
	if value == nil {
		*p = PhoneList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("unsupported type for PhoneList: %T", value)
}

func (p PhoneList) Contains(phone string) bool {
	for _, s := range p {
		if s == phone {
			return true
		}
	}
	return false
}

// Primary returns the first phone of the list, the number replies go to when
// the message being answered carries no phone snapshot.
func (p PhoneList) Primary() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

type Contact struct {
	pg.Model
	Name   string    `json:"name"   gorm:"column:name;not null"`
	Phones PhoneList `json:"phones" gorm:"column:phones;type:jsonb;not null"`
	Email  *string   `json:"email"  gorm:"column:email"`
	Origin *string   `json:"origin" gorm:"column:origin"`
	UserID int64     `json:"user_id" gorm:"column:user_id;not null;index"`
	User   *User     `json:"-"      gorm:"foreignKey:UserID;references:ID"`
}

func (Contact) TableName() string { return "contacts" }

// OriginWhatsApp tags contacts materialized from inbound WhatsApp traffic.
const OriginWhatsApp = "whatsapp"
