package model

import "github.com/inmobium/crm-messaging/pkg/pg"

// Channel is a logical WhatsApp sender bound to a provider phone-number id.
// Several may exist but outbound sends go through exactly one active channel.
type Channel struct {
	pg.Model
	ProviderChannelID string `json:"provider_channel_id" gorm:"column:provider_channel_id;not null;uniqueIndex"`
	Phone             string `json:"phone"               gorm:"column:phone;not null"`
	Alias             string `json:"alias"               gorm:"column:alias"`
	Active            bool   `json:"active"              gorm:"column:active;not null;default:true;index"`
}

func (Channel) TableName() string { return "channels" }
