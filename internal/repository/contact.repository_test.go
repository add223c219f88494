package repository

import (
	"context"
	"testing"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactRepository_FindByPhone(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.Contact{
		Name:   "Ana Morales",
		Phones: model.PhoneList{"5491122334455", "5491199887766"},
		UserID: 1,
	})
	require.NoError(t, err)

	t.Run("matches primary phone", func(t *testing.T) {
		c, err := repo.FindByPhone(ctx, "5491122334455")
		require.NoError(t, err)
		assert.Equal(t, "Ana Morales", c.Name)
	})

	t.Run("matches secondary phone", func(t *testing.T) {
		c, err := repo.FindByPhone(ctx, "5491199887766")
		require.NoError(t, err)
		assert.Equal(t, "Ana Morales", c.Name)
	})

	t.Run("no match returns not found", func(t *testing.T) {
		_, err := repo.FindByPhone(ctx, "5491100000000")
		assert.ErrorIs(t, err, ErrContactNotFound)
	})

	t.Run("partial numbers do not match", func(t *testing.T) {
		_, err := repo.FindByPhone(ctx, "1122334455")
		assert.ErrorIs(t, err, ErrContactNotFound)
	})

	t.Run("soft-deleted contact is invisible", func(t *testing.T) {
		c, err := repo.Create(ctx, &model.Contact{
			Name:   "Gone",
			Phones: model.PhoneList{"5491155555555"},
			UserID: 1,
		})
		require.NoError(t, err)
		require.NoError(t, db.Write(ctx).Delete(&model.Contact{}, c.ID).Error)

		_, err = repo.FindByPhone(ctx, "5491155555555")
		assert.ErrorIs(t, err, ErrContactNotFound)
	})
}

func TestContactRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.Contact{
		Name:   "Bruno Paz",
		Phones: model.PhoneList{"5491144443333"},
		UserID: 1,
	})
	require.NoError(t, err)

	c, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, c.ID)
	assert.Equal(t, model.PhoneList{"5491144443333"}, c.Phones)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrContactNotFound)
}
