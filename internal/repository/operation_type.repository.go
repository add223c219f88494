package repository

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrOperationTypeNotFound = errors.New("operation type not found")
)

type OperationTypeRepository struct {
	*pg.DB
}

func NewOperationTypeRepository(db *pg.DB) *OperationTypeRepository {
	return &OperationTypeRepository{db}
}

// GetByCode resolves an operation type by its stable code. Ids are tenant
// data and never hardcoded.
func (r *OperationTypeRepository) GetByCode(ctx context.Context, code string) (*model.OperationType, error) {
	var ot model.OperationType
	err := r.Read(ctx).WithContext(ctx).Where("code = ?", code).First(&ot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOperationTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ot, nil
}
