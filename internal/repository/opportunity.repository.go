package repository

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrOpportunityNotFound = errors.New("opportunity not found")
)

type OpportunityRepository struct {
	*pg.DB
}

func NewOpportunityRepository(db *pg.DB) *OpportunityRepository {
	return &OpportunityRepository{db}
}

// FindActive returns the contact's current open opportunity: non-deleted,
// active, not won or lost, most recent by status_date then id.
func (r *OpportunityRepository) FindActive(ctx context.Context, contactID int64) (*model.Opportunity, error) {
	var o model.Opportunity
	err := r.Read(ctx).WithContext(ctx).
		Where("contact_id = ? AND active = ?", contactID, true).
		Where("status NOT IN ?", []model.OpportunityStatus{model.OpportunityWon, model.OpportunityLost}).
		Order("status_date DESC").
		Order("id DESC").
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOpportunityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OpportunityRepository) GetByID(ctx context.Context, id int64) (*model.Opportunity, error) {
	var o model.Opportunity
	err := r.Read(ctx).WithContext(ctx).First(&o, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOpportunityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OpportunityRepository) Create(ctx context.Context, o *model.Opportunity) (*model.Opportunity, error) {
	if err := r.Write(ctx).WithContext(ctx).Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}
