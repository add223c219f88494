package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/services"
	xhttp "github.com/inmobium/crm-messaging/pkg/http"
)

type ReplyService interface {
	Reply(ctx context.Context, req services.ReplyRequest) (*services.ReplyResult, error)
}

type MessageLister interface {
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error)
}

type MessageHandler struct {
	replies  ReplyService
	messages MessageLister
}

func RegisterMessageRoutes(e *router.Group, h *MessageHandler) {
	e.POST("/messages/{id}/reply", h.Reply)
	e.GET("/messages", h.ListMessages)
}

func NewMessageHandler(replies ReplyService, messages MessageLister) *MessageHandler {
	return &MessageHandler{replies: replies, messages: messages}
}

type replyRequest struct {
	Text             string `json:"text"`
	TemplateName     string `json:"template_fallback_name"`
	TemplateLanguage string `json:"template_fallback_language"`
}

type replyResponse struct {
	MessageID    int64   `json:"message_id"`
	State        string  `json:"state"`
	ProviderID   *string `json:"provider_id,omitempty"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

type listResponse struct {
	Items []*model.Message `json:"items"`
	Total int64            `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *MessageHandler) Reply(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid message id")
		return
	}

	var req replyRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(ctx, xhttp.StatusBadRequest, "text is required")
		return
	}

	result, err := h.replies.Reply(ctx, services.ReplyRequest{
		InboundMessageID: id,
		Text:             req.Text,
		TemplateName:     req.TemplateName,
		TemplateLanguage: req.TemplateLanguage,
	})
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
		return
	case errors.Is(err, services.ErrNoActiveChannel), errors.Is(err, services.ErrAmbiguousChannel):
		writeError(ctx, xhttp.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}

	// Failed sends still answer 200: the attempt was recorded and the body
	// carries the provider's verdict.
	writeJSON(ctx, xhttp.StatusOK, replyResponse{
		MessageID:    result.Message.ID,
		State:        string(result.State),
		ProviderID:   result.ProviderID,
		ErrorCode:    result.ErrorCode,
		ErrorMessage: result.ErrorMessage,
	})
}

func (h *MessageHandler) ListMessages(ctx *xhttp.RequestCtx) {
	var f model.MessageFilter

	if v := query(ctx, "contact_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.ContactID = &id
		}
	}
	if v := query(ctx, "opportunity_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.OpportunityID = &id
		}
	}
	if v := query(ctx, "direction"); v != "" {
		d := model.Direction(v)
		f.Direction = &d
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.messages.List(ctx, f)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse{Items: items, Total: total})
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
