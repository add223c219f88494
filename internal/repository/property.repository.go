package repository

import (
	"context"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
)

type PropertyRepository struct {
	*pg.DB
}

func NewPropertyRepository(db *pg.DB) *PropertyRepository {
	return &PropertyRepository{db}
}

// ListActiveByContact returns the contact's non-deleted active properties
// with their operation type loaded, the input of operation-type inference.
func (r *PropertyRepository) ListActiveByContact(ctx context.Context, contactID int64) ([]*model.Property, error) {
	var props []*model.Property
	err := r.Read(ctx).WithContext(ctx).
		Preload("OperationType").
		Where("contact_id = ? AND active = ?", contactID, true).
		Find(&props).Error
	if err != nil {
		return nil, err
	}
	return props, nil
}
