package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/inmobium/crm-messaging/internal/meta"
	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/repository"
	"github.com/inmobium/crm-messaging/pkg/logger"
	"github.com/inmobium/crm-messaging/pkg/prom"
)

var (
	// ErrMessageNotFound is returned when the inbound message being replied
	// to does not exist or is not inbound.
	ErrMessageNotFound = errors.New("inbound message not found")
	// ErrNoActiveChannel is returned when no channel is active for sending.
	ErrNoActiveChannel = errors.New("no active channel configured")
	// ErrAmbiguousChannel is returned when more than one channel is active;
	// policy is a single active channel per deployment.
	ErrAmbiguousChannel = errors.New("more than one active channel configured")
)

type ReplyRequest struct {
	InboundMessageID int64
	Text             string
	TemplateName     string
	TemplateLanguage string
}

// ReplyResult always carries a persisted message, including failed attempts,
// so the UI can surface the error and a retry affordance.
type ReplyResult struct {
	Message      *model.Message
	State        model.MessageState
	ProviderID   *string
	ErrorCode    *int
	ErrorMessage *string
}

type ReplyService struct {
	messages      *repository.MessageRepository
	contacts      *repository.ContactRepository
	channels      *repository.ChannelRepository
	settings      *repository.SettingRepository
	opportunities *OpportunityResolver
	client        meta.Client
}

func NewReplyService(
	messages *repository.MessageRepository,
	contacts *repository.ContactRepository,
	channels *repository.ChannelRepository,
	settings *repository.SettingRepository,
	opportunities *OpportunityResolver,
	client meta.Client,
) *ReplyService {
	return &ReplyService{
		messages:      messages,
		contacts:      contacts,
		channels:      channels,
		settings:      settings,
		opportunities: opportunities,
		client:        client,
	}
}

// Reply sends a free-form text answer to a prior inbound message, falling
// back to an approved template when the provider rejects the send for
// out-of-session reasons. Every attempt persists an outbound message row.
func (s *ReplyService) Reply(ctx context.Context, req ReplyRequest) (*ReplyResult, error) {
	inbound, err := s.messages.GetByID(ctx, req.InboundMessageID)
	if errors.Is(err, repository.ErrMessageNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if inbound.Direction != model.DirectionIn {
		return nil, ErrMessageNotFound
	}

	to := inbound.ContactPhone
	if to == "" {
		contact, err := s.contacts.GetByID(ctx, inbound.ContactID)
		if err != nil {
			return nil, err
		}
		to = contact.Phones.Primary()
	}

	channel, err := s.activeChannel(ctx)
	if err != nil {
		return nil, err
	}

	opportunityID, err := s.resolveOpportunityID(ctx, inbound)
	if err != nil {
		return nil, err
	}

	result, sendErr := s.client.SendText(ctx, channel.ProviderChannelID, to, req.Text)
	if sendErr == nil {
		return s.persistSent(ctx, inbound, channel, opportunityID, to, req.Text, result.ProviderID, nil)
	}

	if meta.Classify(sendErr) == meta.KindOutOfSession {
		name, language := s.fallbackTemplate(ctx, req)
		if name != "" {
			logger.Info("free-form send rejected out-of-session, trying template",
				"inbound_message_id", inbound.ID, "template", name, "language", language)
			result, tmplErr := s.client.SendTemplate(ctx, channel.ProviderChannelID, to, name, language)
			if tmplErr == nil {
				tmpl := &model.TemplateRef{Name: name, Language: language}
				return s.persistSent(ctx, inbound, channel, opportunityID, to, "[template:"+name+"]", result.ProviderID, tmpl)
			}
			sendErr = tmplErr
		}
	}

	return s.persistFailed(ctx, inbound, channel, opportunityID, to, req.Text, sendErr)
}

// activeChannel enforces the single-active-channel policy.
func (s *ReplyService) activeChannel(ctx context.Context) (*model.Channel, error) {
	channels, err := s.channels.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	switch len(channels) {
	case 0:
		return nil, ErrNoActiveChannel
	case 1:
		return channels[0], nil
	}
	return nil, ErrAmbiguousChannel
}

// resolveOpportunityID copies the inbound message's opportunity, resolving a
// fresh one only when the inbound had none.
func (s *ReplyService) resolveOpportunityID(ctx context.Context, inbound *model.Message) (*int64, error) {
	if inbound.OpportunityID != nil {
		return inbound.OpportunityID, nil
	}
	contact, err := s.contacts.GetByID(ctx, inbound.ContactID)
	if err != nil {
		return nil, err
	}
	opportunity, err := s.opportunities.ResolveForInbound(ctx, contact)
	if err != nil {
		return nil, err
	}
	return &opportunity.ID, nil
}

// fallbackTemplate prefers the request-supplied template and falls back to
// the configured defaults.
func (s *ReplyService) fallbackTemplate(ctx context.Context, req ReplyRequest) (name, language string) {
	name = req.TemplateName
	language = req.TemplateLanguage
	if name == "" {
		name, _, _ = s.settings.Get(ctx, model.SettingFallbackTemplateName)
	}
	if language == "" {
		language, _, _ = s.settings.Get(ctx, model.SettingFallbackTemplateLanguage)
	}
	return name, language
}

func (s *ReplyService) persistSent(ctx context.Context, inbound *model.Message, channel *model.Channel, opportunityID *int64, to, content, providerID string, tmpl *model.TemplateRef) (*ReplyResult, error) {
	status := string(model.MessageStateSent)
	out := &model.Message{
		Direction:         model.DirectionOut,
		ChannelType:       model.ChannelTypeWhatsApp,
		ChannelID:         channel.ID,
		ContactID:         inbound.ContactID,
		OpportunityID:     opportunityID,
		ContactPhone:      to,
		Content:           content,
		State:             model.MessageStateSent,
		ProviderMessageID: &providerID,
		ProviderStatus:    &status,
		Metadata:          model.Metadata{Template: tmpl},
	}
	created, err := s.messages.Create(ctx, out)
	if err != nil {
		return nil, err
	}
	result := "sent"
	if tmpl != nil {
		result = "fallback"
	}
	prom.IncCounterVec(prom.SystemMessages, prom.MetricOutboundSent, result)
	return &ReplyResult{
		Message:    created,
		State:      model.MessageStateSent,
		ProviderID: &providerID,
	}, nil
}

func (s *ReplyService) persistFailed(ctx context.Context, inbound *model.Message, channel *model.Channel, opportunityID *int64, to, content string, sendErr error) (*ReplyResult, error) {
	md := model.Metadata{MetaErrors: providerErrorJSON(sendErr)}

	out := &model.Message{
		Direction:     model.DirectionOut,
		ChannelType:   model.ChannelTypeWhatsApp,
		ChannelID:     channel.ID,
		ContactID:     inbound.ContactID,
		OpportunityID: opportunityID,
		ContactPhone:  to,
		Content:       content,
		State:         model.MessageStateFailed,
		Metadata:      md,
	}
	created, err := s.messages.Create(ctx, out)
	if err != nil {
		return nil, err
	}
	prom.IncCounterVec(prom.SystemMessages, prom.MetricOutboundSent, "failed")

	res := &ReplyResult{
		Message: created,
		State:   model.MessageStateFailed,
	}
	var apiErr *meta.APIError
	if errors.As(sendErr, &apiErr) {
		code := apiErr.Code
		msg := apiErr.Message
		res.ErrorCode = &code
		res.ErrorMessage = &msg
	} else {
		msg := sendErr.Error()
		res.ErrorMessage = &msg
	}
	logger.Warn("outbound send failed",
		"inbound_message_id", inbound.ID, "message_id", created.ID, "error", sendErr)
	return res, nil
}

// providerErrorJSON serializes whatever the provider said into the metadata
// bag, falling back to a minimal object for transport-level failures.
func providerErrorJSON(sendErr error) json.RawMessage {
	var apiErr *meta.APIError
	if errors.As(sendErr, &apiErr) && len(apiErr.Raw) > 0 {
		return apiErr.Raw
	}
	b, _ := json.Marshal(map[string]string{"message": sendErr.Error()})
	return b
}
