package repository

import (
	"context"
	"time"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
)

type WebhookEventRepository struct {
	*pg.DB
}

func NewWebhookEventRepository(db *pg.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db}
}

// Begin persists the verbatim payload before any processing happens, so the
// audit row survives whatever the pipeline does next.
func (r *WebhookEventRepository) Begin(ctx context.Context, event string, payload []byte) (*model.WebhookEvent, error) {
	e := &model.WebhookEvent{
		Event:      event,
		Payload:    string(payload),
		Processed:  false,
		ReceivedAt: time.Now(),
	}
	if err := r.Write(ctx).WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// Finish records the processing outcome on the row Begin created.
func (r *WebhookEventRepository) Finish(ctx context.Context, id int64, processed bool, responseStatus int, errMsg *string) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":       processed,
			"response_status": responseStatus,
			"error":           errMsg,
		}).Error
}

// List returns audit rows newest first, for operational replay.
func (r *WebhookEventRepository) List(ctx context.Context, limit, offset int) ([]*model.WebhookEvent, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&model.WebhookEvent{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var events []*model.WebhookEvent
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
