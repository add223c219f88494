package repository

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
)

type ChannelRepository struct {
	*pg.DB
}

func NewChannelRepository(db *pg.DB) *ChannelRepository {
	return &ChannelRepository{db}
}

func (r *ChannelRepository) GetByProviderID(ctx context.Context, providerChannelID string) (*model.Channel, error) {
	var c model.Channel
	err := r.Read(ctx).WithContext(ctx).Where("provider_channel_id = ?", providerChannelID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChannelRepository) Create(ctx context.Context, c *model.Channel) (*model.Channel, error) {
	if err := r.Write(ctx).WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListActive returns every active channel. Outbound policy is a single
// active channel per deployment; callers enforce it on the result.
func (r *ChannelRepository) ListActive(ctx context.Context) ([]*model.Channel, error) {
	var channels []*model.Channel
	if err := r.Read(ctx).WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}
