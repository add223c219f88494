package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inmobium/crm-messaging/pkg/pg"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ChannelTypeWhatsApp is the only channel type this service materializes.
const ChannelTypeWhatsApp = "whatsapp"

// MessageState is the local lifecycle of a message. For outbound messages it
// records the send-attempt result and is never overwritten by provider
// status callbacks; those land in ProviderStatus.
type MessageState string

const (
	MessageStateNew       MessageState = "new"
	MessageStateSent      MessageState = "sent"
	MessageStateDelivered MessageState = "delivered"
	MessageStateRead      MessageState = "read"
	MessageStateFailed    MessageState = "failed"
)

// Attachment is one media item referenced by its provider media id. The
// binary itself is never pulled by this core.
type Attachment struct {
	Kind     string `json:"kind"`
	MediaID  string `json:"media_id"`
	Mime     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type AttachmentList []Attachment

func (a AttachmentList) Value() (driver.Value, error) {
	if a == nil {
		a = AttachmentList{}
	}
	return json.Marshal(a)
}

func (a *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*a = AttachmentList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return fmt.Errorf("unsupported type for AttachmentList: %T", value)
}

// ReplyContext points at the message a user replied to.
type ReplyContext struct {
	ID string `json:"id"`
}

// TemplateRef records which approved template was used for a fallback send.
type TemplateRef struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Metadata is the typed free-form bag attached to a message. Known fields
// are explicit; anything else goes through Extra.
type Metadata struct {
	Context    *ReplyContext              `json:"context,omitempty"`
	MetaErrors json.RawMessage            `json:"meta_errors,omitempty"`
	Template   *TemplateRef               `json:"template,omitempty"`
	Extra      map[string]json.RawMessage `json:"extra,omitempty"`
}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("unsupported type for Metadata: %T", value)
}

// Message is a single conversation artifact, inbound or outbound. The
// provider message id is the idempotency key for inbound materialization and
// the correlation key for status callbacks; the unique index tolerates NULLs
// so locally-failed outbound rows can coexist.
type Message struct {
	pg.Model
	Direction         Direction      `json:"direction"           gorm:"column:direction;not null;index"`
	ChannelType       string         `json:"channel_type"        gorm:"column:channel_type;not null;default:'whatsapp'"`
	ChannelID         int64          `json:"channel_id"          gorm:"column:channel_id;not null"`
	Channel           *Channel       `json:"-"                   gorm:"foreignKey:ChannelID;references:ID"`
	ContactID         int64          `json:"contact_id"          gorm:"column:contact_id;not null;index:idx_messages_contact_created"`
	Contact           *Contact       `json:"-"                   gorm:"foreignKey:ContactID;references:ID"`
	OpportunityID     *int64         `json:"opportunity_id"      gorm:"column:opportunity_id;index"`
	Opportunity       *Opportunity   `json:"-"                   gorm:"foreignKey:OpportunityID;references:ID"`
	ContactPhone      string         `json:"contact_phone"       gorm:"column:contact_phone"`
	Content           string         `json:"content"             gorm:"column:content"`
	Attachments       AttachmentList `json:"attachments"         gorm:"column:attachments;type:jsonb"`
	State             MessageState   `json:"state"               gorm:"column:state;not null;default:'new'"`
	ProviderMessageID *string        `json:"provider_message_id" gorm:"column:provider_message_id;uniqueIndex"`
	ProviderStatus    *string        `json:"provider_status"     gorm:"column:provider_status"`
	ProviderTimestamp *time.Time     `json:"provider_timestamp"  gorm:"column:provider_timestamp"`
	Metadata          Metadata       `json:"metadata"            gorm:"column:metadata;type:jsonb"`
}

func (Message) TableName() string { return "messages" }

// MessageFilter controls conversation listing queries.
type MessageFilter struct {
	ContactID     *int64
	OpportunityID *int64
	Direction     *Direction
	From          *time.Time
	To            *time.Time
	Limit         int  // default 50
	Offset        int  // for pagination
	Desc          bool // order by created_at
}
