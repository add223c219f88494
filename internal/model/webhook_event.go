package model

import (
	"time"

	"github.com/inmobium/crm-messaging/pkg/pg"
)

// WebhookEvent is one append-only audit row per received webhook: the
// verbatim payload plus the processing outcome. Rows are written even when
// processing fails so the batch can be replayed.
type WebhookEvent struct {
	pg.Model
	Event          string    `json:"event"           gorm:"column:event;not null"`
	Payload        string    `json:"payload"         gorm:"column:payload;type:jsonb;not null"`
	Processed      bool      `json:"processed"       gorm:"column:processed;not null;default:false"`
	Error          *string   `json:"error"           gorm:"column:error"`
	ResponseStatus *int      `json:"response_status" gorm:"column:response_status"`
	ReceivedAt     time.Time `json:"received_at"     gorm:"column:received_at;not null"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
