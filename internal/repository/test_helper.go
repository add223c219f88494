package repository

import (
	"testing"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&model.User{},
		&model.Setting{},
		&model.Channel{},
		&model.Contact{},
		&model.OperationType{},
		&model.Property{},
		&model.Opportunity{},
		&model.Message{},
		&model.WebhookEvent{},
	)
	require.NoError(t, err)

	return pg.NewWithConnections(db, db)
}
