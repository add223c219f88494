package repository

import (
	"context"
	"testing"
	"time"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestMessageRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	t.Run("create inbound message", func(t *testing.T) {
		msg := &model.Message{
			Direction:         model.DirectionIn,
			ChannelType:       model.ChannelTypeWhatsApp,
			ChannelID:         1,
			ContactID:         1,
			ContactPhone:      "5491122334455",
			Content:           "hola, quiero consultar por el departamento",
			State:             model.MessageStateNew,
			ProviderMessageID: strPtr("wamid.create.1"),
		}
		created, err := repo.Create(ctx, msg)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.NotZero(t, created.CreatedAt)
	})

	t.Run("duplicate provider message id is rejected", func(t *testing.T) {
		first := &model.Message{
			Direction:         model.DirectionIn,
			ChannelID:         1,
			ContactID:         1,
			State:             model.MessageStateNew,
			ProviderMessageID: strPtr("wamid.dup.1"),
		}
		_, err := repo.Create(ctx, first)
		require.NoError(t, err)

		second := &model.Message{
			Direction:         model.DirectionIn,
			ChannelID:         1,
			ContactID:         1,
			State:             model.MessageStateNew,
			ProviderMessageID: strPtr("wamid.dup.1"),
		}
		_, err = repo.Create(ctx, second)
		assert.ErrorIs(t, err, ErrDuplicateProviderMessageID)
	})

	t.Run("multiple rows without provider id coexist", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			msg := &model.Message{
				Direction: model.DirectionOut,
				ChannelID: 1,
				ContactID: 1,
				State:     model.MessageStateFailed,
			}
			_, err := repo.Create(ctx, msg)
			require.NoError(t, err)
		}
	})
}

func TestMessageRepository_GetByProviderMessageID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.Message{
		Direction:         model.DirectionOut,
		ChannelID:         1,
		ContactID:         1,
		State:             model.MessageStateSent,
		ProviderMessageID: strPtr("wamid.lookup.1"),
	})
	require.NoError(t, err)

	msg, err := repo.GetByProviderMessageID(ctx, "wamid.lookup.1")
	require.NoError(t, err)
	assert.Equal(t, model.MessageStateSent, msg.State)

	_, err = repo.GetByProviderMessageID(ctx, "wamid.missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	exists, err := repo.ExistsByProviderMessageID(ctx, "wamid.lookup.1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByProviderMessageID(ctx, "wamid.missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMessageRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.Message{
		Direction:         model.DirectionOut,
		ChannelID:         1,
		ContactID:         1,
		State:             model.MessageStateSent,
		ProviderMessageID: strPtr("wamid.update.1"),
	})
	require.NoError(t, err)

	status := "delivered"
	created.ProviderStatus = &status
	require.NoError(t, repo.Update(ctx, created))

	reloaded, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ProviderStatus)
	assert.Equal(t, "delivered", *reloaded.ProviderStatus)
	assert.Equal(t, model.MessageStateSent, reloaded.State)
	assert.Greater(t, reloaded.Version, 1)
}

func TestMessageRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	contactID := int64(77)
	opportunityID := int64(500)
	for i := 0; i < 5; i++ {
		direction := model.DirectionIn
		if i%2 == 1 {
			direction = model.DirectionOut
		}
		wamid := "wamid.list." + string(rune('a'+i))
		_, err := repo.Create(ctx, &model.Message{
			Direction:         direction,
			ChannelID:         1,
			ContactID:         contactID,
			OpportunityID:     &opportunityID,
			State:             model.MessageStateNew,
			ProviderMessageID: &wamid,
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	// Another contact's traffic must not leak into the filter.
	_, err := repo.Create(ctx, &model.Message{
		Direction: model.DirectionIn,
		ChannelID: 1,
		ContactID: 88,
		State:     model.MessageStateNew,
	})
	require.NoError(t, err)

	t.Run("filter by contact", func(t *testing.T) {
		items, total, err := repo.List(ctx, model.MessageFilter{ContactID: &contactID})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		assert.Len(t, items, 5)
	})

	t.Run("filter by direction", func(t *testing.T) {
		in := model.DirectionIn
		items, total, err := repo.List(ctx, model.MessageFilter{ContactID: &contactID, Direction: &in})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		for _, m := range items {
			assert.Equal(t, model.DirectionIn, m.Direction)
		}
	})

	t.Run("filter by opportunity", func(t *testing.T) {
		_, total, err := repo.List(ctx, model.MessageFilter{OpportunityID: &opportunityID})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
	})

	t.Run("pagination keeps the total", func(t *testing.T) {
		items, total, err := repo.List(ctx, model.MessageFilter{ContactID: &contactID, Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		assert.Len(t, items, 1)
	})

	t.Run("descending order returns newest first", func(t *testing.T) {
		items, _, err := repo.List(ctx, model.MessageFilter{ContactID: &contactID, Desc: true})
		require.NoError(t, err)
		require.NotEmpty(t, items)
		for i := 1; i < len(items); i++ {
			assert.False(t, items[i].CreatedAt.After(items[i-1].CreatedAt))
		}
	})
}
