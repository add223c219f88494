package repository

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"gorm.io/gorm"
)

type SettingRepository struct {
	*pg.DB
}

func NewSettingRepository(db *pg.DB) *SettingRepository {
	return &SettingRepository{db}
}

// Get returns the configured value for key. The second return reports
// whether the key exists at all.
func (r *SettingRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var s model.Setting
	err := r.Read(ctx).WithContext(ctx).Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s.Value, true, nil
}

// GetBool reads a boolean setting. Missing keys and anything that is not the
// string "true" read as false.
func (r *SettingRepository) GetBool(ctx context.Context, key string) (bool, error) {
	v, ok, err := r.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

// Set upserts a setting value. Only used by seeds and tests; the service
// itself never writes settings.
func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	var s model.Setting
	err := r.Write(ctx).WithContext(ctx).Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.Write(ctx).WithContext(ctx).Create(&model.Setting{Key: key, Value: value}).Error
	}
	if err != nil {
		return err
	}
	s.Value = value
	return r.Write(ctx).WithContext(ctx).Save(&s).Error
}
