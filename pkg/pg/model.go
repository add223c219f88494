package pg

import (
	"time"

	"gorm.io/gorm"
)

// Model is the embedded base for every persisted row: surrogate id, audit
// timestamps, soft-delete marker and an optimistic-lock version. Soft-deleted
// rows are invisible to every query unless Unscoped is used explicitly.
type Model struct {
	ID        int64          `json:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"column:deleted_at;index"`
	Version   int            `json:"-"          gorm:"column:version;not null;default:1"`
}

// BeforeUpdate bumps the optimistic-lock version on every update.
func (m *Model) BeforeUpdate(tx *gorm.DB) error {
	tx.Statement.SetColumn("version", m.Version+1)
	return nil
}
