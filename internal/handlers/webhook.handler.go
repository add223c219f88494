package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/inmobium/crm-messaging/internal/webhook"
	xhttp "github.com/inmobium/crm-messaging/pkg/http"
)

type WebhookProcessor interface {
	Verify(ctx context.Context, mode, token, challenge string) (string, bool)
	Process(ctx context.Context, payload []byte) webhook.Result
}

type WebhookHandler struct {
	processor WebhookProcessor
}

func RegisterWebhookRoutes(e *router.Router, h *WebhookHandler) {
	e.GET("/webhooks/meta-whatsapp", h.VerifySubscription)
	e.POST("/webhooks/meta-whatsapp", h.ReceiveEvent)
}

func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// VerifySubscription handles the provider's GET handshake. The challenge is
// echoed as plain text, the way the provider expects it.
func (h *WebhookHandler) VerifySubscription(ctx *xhttp.RequestCtx) {
	mode := query(ctx, "hub.mode")
	token := query(ctx, "hub.verify_token")
	challenge := query(ctx, "hub.challenge")

	echo, ok := h.processor.Verify(ctx, mode, token, challenge)
	if !ok {
		writeError(ctx, xhttp.StatusForbidden, "verification failed")
		return
	}
	ctx.Response.Header.Set("Content-Type", "text/plain; charset=utf-8")
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyString(echo)
}

func (h *WebhookHandler) ReceiveEvent(ctx *xhttp.RequestCtx) {
	res := h.processor.Process(ctx, ctx.PostBody())
	switch res.Status {
	case xhttp.StatusBadRequest:
		writeError(ctx, res.Status, "malformed payload")
	case xhttp.StatusForbidden:
		writeError(ctx, res.Status, "unknown business account")
	default:
		ctx.Response.SetStatusCode(res.Status)
		if res.Body != "" {
			ctx.Response.SetBodyString(res.Body)
		}
	}
}
