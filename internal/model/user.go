package model

import "github.com/inmobium/crm-messaging/pkg/pg"

// User is read-only to this service. The first non-deleted user is the
// default owner assigned to auto-created contacts.
type User struct {
	pg.Model
	Name   string `json:"name"   gorm:"column:name;not null"`
	Email  string `json:"email"  gorm:"column:email"`
	Active bool   `json:"active" gorm:"column:active;not null;default:true"`
}

func (User) TableName() string { return "users" }
