package repository

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrMessageNotFound is returned when a message does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrDuplicateProviderMessageID signals that a row for the same wamid
	// already committed; callers treat it as "already materialized".
	ErrDuplicateProviderMessageID = errors.New("provider message id already exists")
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := r.Write(ctx).WithContext(ctx).Create(msg).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateProviderMessageID
		}
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	var m model.Message
	err := r.Read(ctx).WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	var m model.Message
	err := r.Read(ctx).WithContext(ctx).Where("provider_message_id = ?", providerMessageID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) ExistsByProviderMessageID(ctx context.Context, providerMessageID string) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&model.Message{}).
		Where("provider_message_id = ?", providerMessageID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update persists field changes on an already-loaded message.
func (r *MessageRepository) Update(ctx context.Context, msg *model.Message) error {
	return r.Write(ctx).WithContext(ctx).Save(msg).Error
}

func (r *MessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&model.Message{})

	if f.ContactID != nil {
		q = q.Where("contact_id = ?", *f.ContactID)
	}
	if f.OpportunityID != nil {
		q = q.Where("opportunity_id = ?", *f.OpportunityID)
	}
	if f.Direction != nil {
		q = q.Where("direction = ?", *f.Direction)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var messages []*model.Message
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&messages).Error; err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}
