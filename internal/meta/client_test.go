package meta

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/inmobium/crm-messaging/pkg/prom"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("non-api errors are transient", func(t *testing.T) {
		assert.Equal(t, KindTransient, Classify(errors.New("connection reset")))
	})

	t.Run("5xx is transient", func(t *testing.T) {
		assert.Equal(t, KindTransient, Classify(&APIError{StatusCode: 503, Code: 1}))
	})

	t.Run("out-of-session codes", func(t *testing.T) {
		for _, code := range []int{131047, 131026, 131051, 470} {
			err := &APIError{StatusCode: 400, Code: code}
			assert.Equal(t, KindOutOfSession, Classify(err), "code %d", code)
		}
	})

	t.Run("other 4xx codes are permanent", func(t *testing.T) {
		for _, code := range []int{100, 131000, 132001, 368} {
			err := &APIError{StatusCode: 400, Code: code}
			assert.Equal(t, KindPermanent, Classify(err), "code %d", code)
		}
	})

	t.Run("wrapped api errors classify the same", func(t *testing.T) {
		wrapped := errors.Join(errors.New("send failed"), &APIError{StatusCode: 400, Code: 131047})
		assert.Equal(t, KindOutOfSession, Classify(wrapped))
	})
}

func TestSendPayloadShapes(t *testing.T) {
	t.Run("text request", func(t *testing.T) {
		payload := sendTextRequest{
			MessagingProduct: "whatsapp",
			RecipientType:    "individual",
			To:               "5491166667777",
			Type:             "text",
			Text:             TextBody{Body: "hola"},
		}
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"messaging_product": "whatsapp",
			"recipient_type": "individual",
			"to": "5491166667777",
			"type": "text",
			"text": {"body": "hola"}
		}`, string(b))
	})

	t.Run("template request", func(t *testing.T) {
		payload := sendTemplateRequest{
			MessagingProduct: "whatsapp",
			To:               "5491166667777",
			Type:             "template",
			Template: templatePayload{
				Name:     "reactivacion_visita",
				Language: templateLanguage{Code: "es_AR"},
			},
		}
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"messaging_product": "whatsapp",
			"to": "5491166667777",
			"type": "template",
			"template": {"name": "reactivacion_visita", "language": {"code": "es_AR"}}
		}`, string(b))
	})
}

func TestGraphErrorDecoding(t *testing.T) {
	body := []byte(`{
		"error": {
			"message": "Re-engagement message required",
			"type": "OAuthException",
			"code": 131047,
			"error_data": {"details": "Message failed to send because more than 24 hours have passed"},
			"fbtrace_id": "AbCdEf"
		}
	}`)

	var parsed errorResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, 131047, parsed.Error.Code)
	assert.Equal(t, "OAuthException", parsed.Error.Type)
	require.NotNil(t, parsed.Error.ErrorData)
	assert.Contains(t, parsed.Error.ErrorData.Details, "24 hours")
}

func TestSendObservesLatencyHistogram(t *testing.T) {
	require.NoError(t, prom.Create("test-host", "test", "crm_messaging"))

	// Nothing listens on port 1; the send fails fast but the duration of the
	// provider call is still observed.
	client := NewHTTPClient(ClientConfig{
		BaseURL:     "http://127.0.0.1:1",
		AccessToken: "token",
		Timeout:     200 * time.Millisecond,
	})

	_, err := client.SendText(context.Background(), "555000555000", "5491166667777", "hola")
	require.Error(t, err)

	hist := prom.MetricCollectionHistogramVec[prom.SystemMessages+prom.MetricProviderDuration]
	require.NotNil(t, hist)
	assert.Equal(t, 1, testutil.CollectAndCount(hist))
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{StatusCode: 400, Code: 131047, Message: "Re-engagement message required"}
	assert.Contains(t, err.Error(), "131047")
	assert.Contains(t, err.Error(), "Re-engagement message required")
}
