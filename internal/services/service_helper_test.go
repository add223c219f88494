package services

import (
	"context"
	"testing"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/repository"
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

// seedOperationTypes mirrors the seed migration.
func seedOperationTypes(t *testing.T, db *pg.DB) map[string]int64 {
	ctx := context.Background()
	ids := make(map[string]int64)
	for code, name := range map[string]string{
		model.OperationCodeSale:        "Venta",
		model.OperationCodeRental:      "Alquiler",
		model.OperationCodeMaintenance: "Mantenimiento",
	} {
		ot := &model.OperationType{Code: code, Name: name}
		require.NoError(t, db.Write(ctx).Create(ot).Error)
		ids[code] = ot.ID
	}
	return ids
}

func seedUser(t *testing.T, db *pg.DB, name string) *model.User {
	u := &model.User{Name: name, Active: true}
	require.NoError(t, db.Write(context.Background()).Create(u).Error)
	return u
}

func seedSetting(t *testing.T, db *pg.DB, key, value string) {
	repo := repository.NewSettingRepository(db)
	require.NoError(t, repo.Set(context.Background(), key, value))
}
