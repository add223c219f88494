package repository

import (
	"context"
	"testing"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_FirstOwner(t *testing.T) {
	ctx := context.Background()

	t.Run("no users", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)

		_, err := repo.FirstOwner(ctx)
		assert.ErrorIs(t, err, ErrNoUsers)
	})

	t.Run("oldest user wins regardless of the active flag", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)

		require.NoError(t, db.Write(ctx).Create(&model.User{Name: "Agente Uno", Active: false}).Error)
		require.NoError(t, db.Write(ctx).Create(&model.User{Name: "Agente Dos", Active: true}).Error)

		owner, err := repo.FirstOwner(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Agente Uno", owner.Name)
	})

	t.Run("soft-deleted users are skipped", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)

		deleted := &model.User{Name: "Agente Baja", Active: true}
		require.NoError(t, db.Write(ctx).Create(deleted).Error)
		require.NoError(t, db.Write(ctx).Delete(deleted).Error)
		require.NoError(t, db.Write(ctx).Create(&model.User{Name: "Agente Alta", Active: true}).Error)

		owner, err := repo.FirstOwner(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Agente Alta", owner.Name)
	})
}
