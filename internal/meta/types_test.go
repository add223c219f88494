package meta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeDecoding(t *testing.T) {
	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "103000000000001",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "+54 9 11 4444-0000", "phone_number_id": "555000555000"},
					"contacts": [{"wa_id": "5491166667777", "profile": {"name": "Lucia Prado"}}],
					"messages": [{
						"id": "wamid.x1",
						"from": "5491166667777",
						"timestamp": "1756500000",
						"type": "text",
						"text": {"body": "hola"}
					}]
				}
			}]
		}]
	}`)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	require.Len(t, env.Entry, 1)
	assert.Equal(t, "103000000000001", env.Entry[0].ID)

	value := env.Entry[0].Changes[0].Value
	assert.Equal(t, "555000555000", value.Metadata.PhoneNumberID)
	require.Len(t, value.Messages, 1)

	msg := value.Messages[0]
	assert.Equal(t, "wamid.x1", msg.ID)
	require.NotNil(t, msg.Text)
	assert.Equal(t, "hola", msg.Text.Body)
	assert.NotEmpty(t, msg.Raw, "verbatim bytes are preserved")
	assert.Contains(t, string(msg.Raw), "wamid.x1")
}

func TestIncomingMessage_Media(t *testing.T) {
	t.Run("returns the block matching the type", func(t *testing.T) {
		raw := []byte(`{
			"id": "wamid.m1", "from": "5491166667777", "timestamp": "1756500000",
			"type": "document",
			"document": {"id": "media-9", "mime_type": "application/pdf", "filename": "reserva.pdf"}
		}`)
		var msg IncomingMessage
		require.NoError(t, json.Unmarshal(raw, &msg))

		media := msg.Media()
		require.NotNil(t, media)
		assert.Equal(t, "media-9", media.ID)
		assert.Equal(t, "reserva.pdf", media.Filename)
	})

	t.Run("unmodeled type has no media", func(t *testing.T) {
		raw := []byte(`{
			"id": "wamid.m2", "from": "5491166667777", "timestamp": "1756500000",
			"type": "location",
			"location": {"latitude": -34.6, "longitude": -58.4}
		}`)
		var msg IncomingMessage
		require.NoError(t, json.Unmarshal(raw, &msg))

		assert.Nil(t, msg.Media())
		assert.Contains(t, string(msg.Raw), "latitude", "raw payload survives for triage")
	})
}

func TestStatusDecoding(t *testing.T) {
	payload := []byte(`{
		"id": "wamid.s1",
		"status": "failed",
		"timestamp": "1756500000",
		"recipient_id": "5491166667777",
		"errors": [{"code": 131026, "title": "Message undeliverable", "error_data": {"details": "no session"}}]
	}`)

	var st MessageStatus
	require.NoError(t, json.Unmarshal(payload, &st))
	assert.Equal(t, "failed", st.Status)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, 131026, st.Errors[0].Code)
	require.NotNil(t, st.Errors[0].ErrorData)
	assert.Equal(t, "no session", st.Errors[0].ErrorData.Details)
}
