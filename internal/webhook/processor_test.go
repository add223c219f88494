package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/inmobium/crm-messaging/internal/dedup"
	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/repository"
	"github.com/inmobium/crm-messaging/internal/services"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testBusinessID    = "103000000000001"
	testPhoneNumberID = "555000555000"
	testDisplayPhone  = "+54 9 11 4444-0000"
)

type fixture struct {
	db        *pg.DB
	processor *Processor
	settings  *repository.SettingRepository
	events    *repository.WebhookEventRepository
	messages  *repository.MessageRepository
	contacts  *repository.ContactRepository
	channels  *repository.ChannelRepository
}

func setup(t *testing.T) *fixture {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.User{}, &model.Setting{}, &model.Channel{}, &model.Contact{},
		&model.OperationType{}, &model.Property{}, &model.Opportunity{},
		&model.Message{}, &model.WebhookEvent{},
	))
	db := pg.NewWithConnections(gdb, gdb)

	settings := repository.NewSettingRepository(db)
	events := repository.NewWebhookEventRepository(db)
	messages := repository.NewMessageRepository(db)
	contacts := repository.NewContactRepository(db)
	channels := repository.NewChannelRepository(db)
	users := repository.NewUserRepository(db)
	opportunities := repository.NewOpportunityRepository(db)

	channelResolver := services.NewChannelResolver(settings, channels)
	contactResolver := services.NewContactResolver(settings, contacts, users)
	opportunityResolver := services.NewOpportunityResolver(
		opportunities,
		services.NewOperationInferer(
			repository.NewPropertyRepository(db),
			repository.NewOperationTypeRepository(db),
		),
	)

	processor := NewProcessor(
		settings, events, messages,
		channelResolver, contactResolver, opportunityResolver,
		dedup.New(nil, dedup.DefaultConfig()),
		time.UTC,
	)

	ctx := context.Background()
	require.NoError(t, settings.Set(ctx, model.SettingBusinessAccountID, testBusinessID))
	require.NoError(t, settings.Set(ctx, model.SettingVerifyToken, "verify-me"))
	require.NoError(t, settings.Set(ctx, model.SettingAutoCreateContact, "true"))
	require.NoError(t, db.Write(ctx).Create(&model.User{Name: "Agente Uno", Active: true}).Error)

	_, err = channels.Create(ctx, &model.Channel{
		ProviderChannelID: testPhoneNumberID,
		Phone:             testDisplayPhone,
		Active:            true,
	})
	require.NoError(t, err)

	return &fixture{
		db: db, processor: processor, settings: settings, events: events,
		messages: messages, contacts: contacts, channels: channels,
	}
}

func textPayload(wamid, from, name, body, timestamp string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": %q,
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": %q, "phone_number_id": %q},
					"contacts": [{"wa_id": %q, "profile": {"name": %q}}],
					"messages": [{
						"id": %q, "from": %q, "timestamp": %q,
						"type": "text", "text": {"body": %q}
					}]
				}
			}]
		}]
	}`, testBusinessID, testDisplayPhone, testPhoneNumberID, from, name, wamid, from, timestamp, body))
}

func statusPayload(wamid, status, extra string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": %q,
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": %q, "phone_number_id": %q},
					"statuses": [{
						"id": %q, "status": %q, "timestamp": "1756500000",
						"recipient_id": "5491166667777"%s
					}]
				}
			}]
		}]
	}`, testBusinessID, testDisplayPhone, testPhoneNumberID, wamid, status, extra))
}

func lastEvent(t *testing.T, f *fixture) *model.WebhookEvent {
	events, _, err := f.events.List(context.Background(), 1, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	return events[0]
}

func TestProcessor_Verify(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("valid handshake echoes the challenge", func(t *testing.T) {
		echo, ok := f.processor.Verify(ctx, "subscribe", "verify-me", "challenge-123")
		assert.True(t, ok)
		assert.Equal(t, "challenge-123", echo)
	})

	t.Run("wrong token", func(t *testing.T) {
		_, ok := f.processor.Verify(ctx, "subscribe", "guess", "challenge-123")
		assert.False(t, ok)
	})

	t.Run("wrong mode", func(t *testing.T) {
		_, ok := f.processor.Verify(ctx, "unsubscribe", "verify-me", "challenge-123")
		assert.False(t, ok)
	})

	t.Run("unconfigured token never verifies", func(t *testing.T) {
		empty := setup(t)
		require.NoError(t, empty.db.Write(ctx).Where("key = ?", model.SettingVerifyToken).Delete(&model.Setting{}).Error)
		_, ok := empty.processor.Verify(ctx, "subscribe", "", "challenge-123")
		assert.False(t, ok)
	})
}

func TestProcessor_Process_Inbound(t *testing.T) {
	ctx := context.Background()

	t.Run("materializes a text message from a new contact", func(t *testing.T) {
		f := setup(t)
		res := f.processor.Process(ctx, textPayload("wamid.in.1", "5491166667777", "Lucia Prado", "hola, consulto por el 2 ambientes", "1756500000"))
		assert.Equal(t, 200, res.Status)

		e := lastEvent(t, f)
		assert.True(t, e.Processed)
		require.NotNil(t, e.ResponseStatus)
		assert.Equal(t, 200, *e.ResponseStatus)

		contact, err := f.contacts.FindByPhone(ctx, "5491166667777")
		require.NoError(t, err)
		assert.Equal(t, "Lucia Prado", contact.Name)

		msg, err := f.messages.GetByProviderMessageID(ctx, "wamid.in.1")
		require.NoError(t, err)
		assert.Equal(t, model.DirectionIn, msg.Direction)
		assert.Equal(t, model.MessageStateNew, msg.State)
		assert.Equal(t, contact.ID, msg.ContactID)
		assert.NotNil(t, msg.OpportunityID)
		assert.Equal(t, "hola, consulto por el 2 ambientes", msg.Content)
		require.NotNil(t, msg.ProviderTimestamp)
		assert.Equal(t, int64(1756500000), msg.ProviderTimestamp.Unix())
	})

	t.Run("reuses the contact and opportunity on the second message", func(t *testing.T) {
		f := setup(t)
		f.processor.Process(ctx, textPayload("wamid.in.2a", "5491166667777", "Lucia", "primer mensaje", "1756500000"))
		f.processor.Process(ctx, textPayload("wamid.in.2b", "5491166667777", "Lucia", "segundo mensaje", "1756500060"))

		contactID := mustContactID(t, f, "5491166667777")
		items, total, err := f.messages.List(ctx, model.MessageFilter{ContactID: &contactID})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, items, 2)
		assert.Equal(t, items[0].OpportunityID, items[1].OpportunityID)
	})

	t.Run("duplicate delivery materializes once", func(t *testing.T) {
		f := setup(t)
		payload := textPayload("wamid.in.3", "5491166667777", "Lucia", "hola", "1756500000")
		res1 := f.processor.Process(ctx, payload)
		res2 := f.processor.Process(ctx, payload)
		assert.Equal(t, 200, res1.Status)
		assert.Equal(t, 200, res2.Status)
		assert.True(t, lastEvent(t, f).Processed)

		contactID := mustContactID(t, f, "5491166667777")
		_, total, err := f.messages.List(ctx, model.MessageFilter{ContactID: &contactID})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})

	t.Run("media message records an attachment", func(t *testing.T) {
		f := setup(t)
		payload := []byte(fmt.Sprintf(`{
			"object": "whatsapp_business_account",
			"entry": [{
				"id": %q,
				"changes": [{
					"field": "messages",
					"value": {
						"metadata": {"display_phone_number": %q, "phone_number_id": %q},
						"contacts": [{"wa_id": "5491166667777", "profile": {"name": "Lucia"}}],
						"messages": [{
							"id": "wamid.in.4", "from": "5491166667777", "timestamp": "1756500000",
							"type": "image",
							"image": {"id": "media-1", "mime_type": "image/jpeg", "caption": "frente de la casa"}
						}]
					}
				}]
			}]
		}`, testBusinessID, testDisplayPhone, testPhoneNumberID))

		res := f.processor.Process(ctx, payload)
		assert.Equal(t, 200, res.Status)

		msg, err := f.messages.GetByProviderMessageID(ctx, "wamid.in.4")
		require.NoError(t, err)
		assert.Equal(t, "frente de la casa", msg.Content)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "image", msg.Attachments[0].Kind)
		assert.Equal(t, "media-1", msg.Attachments[0].MediaID)
		assert.Equal(t, "image/jpeg", msg.Attachments[0].Mime)
	})

	t.Run("reply context is preserved", func(t *testing.T) {
		f := setup(t)
		payload := []byte(fmt.Sprintf(`{
			"object": "whatsapp_business_account",
			"entry": [{
				"id": %q,
				"changes": [{
					"field": "messages",
					"value": {
						"metadata": {"display_phone_number": %q, "phone_number_id": %q},
						"contacts": [{"wa_id": "5491166667777", "profile": {"name": "Lucia"}}],
						"messages": [{
							"id": "wamid.in.5", "from": "5491166667777", "timestamp": "1756500000",
							"type": "text", "text": {"body": "si, esa"},
							"context": {"id": "wamid.quoted.1"}
						}]
					}
				}]
			}]
		}`, testBusinessID, testDisplayPhone, testPhoneNumberID))

		res := f.processor.Process(ctx, payload)
		assert.Equal(t, 200, res.Status)

		msg, err := f.messages.GetByProviderMessageID(ctx, "wamid.in.5")
		require.NoError(t, err)
		require.NotNil(t, msg.Metadata.Context)
		assert.Equal(t, "wamid.quoted.1", msg.Metadata.Context.ID)
	})

	t.Run("unknown contact with auto-create disabled is a soft error", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.settings.Set(ctx, model.SettingAutoCreateContact, "false"))

		res := f.processor.Process(ctx, textPayload("wamid.in.6", "5491100009999", "Desconocido", "hola", "1756500000"))
		assert.Equal(t, 200, res.Status)

		e := lastEvent(t, f)
		assert.False(t, e.Processed)
		require.NotNil(t, e.Error)
		assert.Contains(t, *e.Error, "contact unknown")

		_, err := f.messages.GetByProviderMessageID(ctx, "wamid.in.6")
		assert.ErrorIs(t, err, repository.ErrMessageNotFound)
	})
}

func TestProcessor_Process_Statuses(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered status updates provider status only", func(t *testing.T) {
		f := setup(t)
		wamid := "wamid.out.10"
		_, err := f.messages.Create(ctx, &model.Message{
			Direction: model.DirectionOut, ChannelID: 1, ContactID: 1,
			State: model.MessageStateSent, ProviderMessageID: &wamid,
		})
		require.NoError(t, err)

		res := f.processor.Process(ctx, statusPayload(wamid, "delivered", ""))
		assert.Equal(t, 200, res.Status)
		assert.True(t, lastEvent(t, f).Processed)

		msg, err := f.messages.GetByProviderMessageID(ctx, wamid)
		require.NoError(t, err)
		require.NotNil(t, msg.ProviderStatus)
		assert.Equal(t, "delivered", *msg.ProviderStatus)
		assert.Equal(t, model.MessageStateSent, msg.State, "local state never follows provider status")
	})

	t.Run("failed status captures the provider errors", func(t *testing.T) {
		f := setup(t)
		wamid := "wamid.out.11"
		_, err := f.messages.Create(ctx, &model.Message{
			Direction: model.DirectionOut, ChannelID: 1, ContactID: 1,
			State: model.MessageStateSent, ProviderMessageID: &wamid,
		})
		require.NoError(t, err)

		extra := `, "errors": [{"code": 131026, "title": "Message undeliverable"}]`
		res := f.processor.Process(ctx, statusPayload(wamid, "failed", extra))
		assert.Equal(t, 200, res.Status)

		msg, err := f.messages.GetByProviderMessageID(ctx, wamid)
		require.NoError(t, err)
		require.NotNil(t, msg.ProviderStatus)
		assert.Equal(t, "failed", *msg.ProviderStatus)
		assert.Contains(t, string(msg.Metadata.MetaErrors), "131026")
	})

	t.Run("status for an unknown wamid is skipped", func(t *testing.T) {
		f := setup(t)
		res := f.processor.Process(ctx, statusPayload("wamid.never.seen", "read", ""))
		assert.Equal(t, 200, res.Status)
		assert.True(t, lastEvent(t, f).Processed)
	})
}

func TestProcessor_Process_Envelope(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed payload answers 400 without an audit row", func(t *testing.T) {
		f := setup(t)
		res := f.processor.Process(ctx, []byte(`{"object": `))
		assert.Equal(t, 400, res.Status)

		_, total, err := f.events.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
	})

	t.Run("foreign business account answers 403", func(t *testing.T) {
		f := setup(t)
		payload := []byte(`{
			"object": "whatsapp_business_account",
			"entry": [{"id": "999999999", "changes": []}]
		}`)
		res := f.processor.Process(ctx, payload)
		assert.Equal(t, 403, res.Status)

		e := lastEvent(t, f)
		assert.False(t, e.Processed)
		require.NotNil(t, e.ResponseStatus)
		assert.Equal(t, 403, *e.ResponseStatus)
	})

	t.Run("unconfigured channel is audited and acked", func(t *testing.T) {
		f := setup(t)
		payload := []byte(fmt.Sprintf(`{
			"object": "whatsapp_business_account",
			"entry": [{
				"id": %q,
				"changes": [{
					"field": "messages",
					"value": {
						"metadata": {"display_phone_number": "+54 11 0000-0000", "phone_number_id": "000111222333"},
						"messages": [{
							"id": "wamid.in.20", "from": "5491166667777", "timestamp": "1756500000",
							"type": "text", "text": {"body": "hola"}
						}]
					}
				}]
			}]
		}`, testBusinessID))

		res := f.processor.Process(ctx, payload)
		assert.Equal(t, 200, res.Status)

		e := lastEvent(t, f)
		assert.False(t, e.Processed)
		require.NotNil(t, e.Error)
		assert.Contains(t, *e.Error, "channel not configured")

		_, err := f.messages.GetByProviderMessageID(ctx, "wamid.in.20")
		assert.ErrorIs(t, err, repository.ErrMessageNotFound)
	})

	t.Run("non-message changes are ignored", func(t *testing.T) {
		f := setup(t)
		payload := []byte(fmt.Sprintf(`{
			"object": "whatsapp_business_account",
			"entry": [{
				"id": %q,
				"changes": [{"field": "account_alerts", "value": {}}]
			}]
		}`, testBusinessID))

		res := f.processor.Process(ctx, payload)
		assert.Equal(t, 200, res.Status)
		assert.True(t, lastEvent(t, f).Processed)
	})

	t.Run("empty entry list is a processed no-op", func(t *testing.T) {
		f := setup(t)
		res := f.processor.Process(ctx, []byte(`{"object": "whatsapp_business_account", "entry": []}`))
		assert.Equal(t, 200, res.Status)
		assert.True(t, lastEvent(t, f).Processed)
	})
}

func mustContactID(t *testing.T, f *fixture, phone string) int64 {
	c, err := f.contacts.FindByPhone(context.Background(), phone)
	require.NoError(t, err)
	return c.ID
}
