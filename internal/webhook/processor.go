package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/inmobium/crm-messaging/internal/dedup"
	"github.com/inmobium/crm-messaging/internal/meta"
	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/repository"
	"github.com/inmobium/crm-messaging/internal/services"
	xhttp "github.com/inmobium/crm-messaging/pkg/http"
	"github.com/inmobium/crm-messaging/pkg/logger"
	"github.com/inmobium/crm-messaging/pkg/prom"
)

const eventMetaWhatsApp = "meta-whatsapp"

// Result is what the transport layer sends back to the provider. Everything
// except parse errors and identity mismatches acks 200: retries would not
// help for faults the provider cannot fix.
type Result struct {
	Status int
	Body   string
}

// Processor drives one webhook batch end to end: audit, channel resolution,
// message materialization and status correlation. All collaborators are
// injected; tests swap in an sqlite store and a nil dedup cache.
type Processor struct {
	settings      *repository.SettingRepository
	events        *repository.WebhookEventRepository
	messages      *repository.MessageRepository
	channels      *services.ChannelResolver
	contacts      *services.ContactResolver
	opportunities *services.OpportunityResolver
	dedup         *dedup.Cache
	location      *time.Location
}

func NewProcessor(
	settings *repository.SettingRepository,
	events *repository.WebhookEventRepository,
	messages *repository.MessageRepository,
	channels *services.ChannelResolver,
	contacts *services.ContactResolver,
	opportunities *services.OpportunityResolver,
	dedupCache *dedup.Cache,
	location *time.Location,
) *Processor {
	if location == nil {
		location = time.UTC
	}
	return &Processor{
		settings:      settings,
		events:        events,
		messages:      messages,
		channels:      channels,
		contacts:      contacts,
		opportunities: opportunities,
		dedup:         dedupCache,
		location:      location,
	}
}

// Verify answers the provider's subscription handshake: echo the challenge
// when the mode is "subscribe" and the token matches the configured one.
func (p *Processor) Verify(ctx context.Context, mode, token, challenge string) (string, bool) {
	expected, ok, err := p.settings.Get(ctx, model.SettingVerifyToken)
	if err != nil {
		logger.Error("webhook verify: settings lookup failed", "error", err)
		return "", false
	}
	if !ok || expected == "" {
		return "", false
	}
	if mode != "subscribe" || token != expected {
		return "", false
	}
	return challenge, true
}

// Process handles one delivery. The audit row is written before any work and
// finalized on every path out.
func (p *Processor) Process(ctx context.Context, payload []byte) Result {
	var env meta.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		prom.IncCounterVec(prom.SystemWebhook, prom.MetricWebhookReceived, "parse_error")
		return Result{Status: xhttp.StatusBadRequest}
	}

	event, err := p.events.Begin(ctx, eventMetaWhatsApp, payload)
	if err != nil {
		// Nothing was audited; a provider retry is the recovery here.
		logger.Error("webhook audit begin failed", "error", err)
		return Result{Status: xhttp.StatusInternalServerError}
	}

	businessAccountID, _, err := p.settings.Get(ctx, model.SettingBusinessAccountID)
	if err != nil {
		return p.finishFailed(ctx, event, xhttp.StatusInternalServerError, err.Error())
	}

	for _, entry := range env.Entry {
		if entry.ID != businessAccountID {
			msg := "business account mismatch: " + entry.ID
			errMsg := msg
			if err := p.events.Finish(ctx, event.ID, false, xhttp.StatusForbidden, &errMsg); err != nil {
				logger.Error("webhook audit finish failed", "event_id", event.ID, "error", err)
			}
			prom.IncCounterVec(prom.SystemWebhook, prom.MetricWebhookReceived, "identity_mismatch")
			return Result{Status: xhttp.StatusForbidden}
		}
	}

	var softErrors []string
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			value := change.Value

			channel, err := p.channels.Resolve(ctx, value.Metadata.PhoneNumberID, value.Metadata.DisplayPhoneNumber)
			if errors.Is(err, services.ErrChannelNotConfigured) {
				logger.Warn("webhook change skipped: channel not configured",
					"phone_number_id", value.Metadata.PhoneNumberID)
				softErrors = append(softErrors, "channel not configured: "+value.Metadata.PhoneNumberID)
				continue
			}
			if err != nil {
				return p.finishFailed(ctx, event, xhttp.StatusInternalServerError, err.Error())
			}

			for i := range value.Messages {
				err := p.handleMessage(ctx, channel, &value, &value.Messages[i])
				if errors.Is(err, services.ErrContactUnknown) {
					softErrors = append(softErrors, "contact unknown: "+value.Messages[i].From)
					continue
				}
				if err != nil {
					return p.finishFailed(ctx, event, xhttp.StatusInternalServerError, err.Error())
				}
			}

			for i := range value.Statuses {
				if err := p.handleStatus(ctx, &value.Statuses[i]); err != nil {
					return p.finishFailed(ctx, event, xhttp.StatusInternalServerError, err.Error())
				}
			}
		}
	}

	if len(softErrors) > 0 {
		msg := strings.Join(softErrors, "; ")
		if err := p.events.Finish(ctx, event.ID, false, xhttp.StatusOK, &msg); err != nil {
			logger.Error("webhook audit finish failed", "event_id", event.ID, "error", err)
		}
		prom.IncCounterVec(prom.SystemWebhook, prom.MetricWebhookReceived, "partial")
		return Result{Status: xhttp.StatusOK}
	}

	if err := p.events.Finish(ctx, event.ID, true, xhttp.StatusOK, nil); err != nil {
		logger.Error("webhook audit finish failed", "event_id", event.ID, "error", err)
	}
	prom.IncCounterVec(prom.SystemWebhook, prom.MetricWebhookReceived, "processed")
	return Result{Status: xhttp.StatusOK}
}

// finishFailed captures the error on the audit row but still acks 200.
func (p *Processor) finishFailed(ctx context.Context, event *model.WebhookEvent, auditStatus int, errMsg string) Result {
	if err := p.events.Finish(ctx, event.ID, false, auditStatus, &errMsg); err != nil {
		logger.Error("webhook audit finish failed", "event_id", event.ID, "error", err)
	}
	prom.IncCounterVec(prom.SystemWebhook, prom.MetricWebhookReceived, "failed")
	logger.Error("webhook processing failed", "event_id", event.ID, "error", errMsg)
	return Result{Status: xhttp.StatusOK}
}

// handleMessage materializes one inbound user message. Duplicate deliveries
// are absorbed by the dedup marker, the existence check and ultimately the
// unique index on provider_message_id.
func (p *Processor) handleMessage(ctx context.Context, channel *model.Channel, value *meta.ChangeValue, msg *meta.IncomingMessage) error {
	if msg.ID != "" && !p.dedup.MarkIfFirst(msg.ID) {
		logger.Debug("inbound message already processed", "provider_message_id", msg.ID)
		return nil
	}

	contact, err := p.contacts.FindOrCreate(ctx, msg.From, profileName(value, msg.From))
	if err != nil {
		p.dedup.Forget(msg.ID)
		return err
	}

	opportunity, err := p.opportunities.ResolveForInbound(ctx, contact)
	if err != nil {
		p.dedup.Forget(msg.ID)
		return err
	}

	if msg.ID != "" {
		exists, err := p.messages.ExistsByProviderMessageID(ctx, msg.ID)
		if err != nil {
			p.dedup.Forget(msg.ID)
			return err
		}
		if exists {
			return nil
		}
	}

	content, attachments := extractContent(msg)

	var providerTS *time.Time
	if sec, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		ts := time.Unix(sec, 0).In(p.location)
		providerTS = &ts
	}

	var md model.Metadata
	if msg.Context != nil {
		md.Context = &model.ReplyContext{ID: msg.Context.ID}
	}

	providerID := msg.ID
	record := &model.Message{
		Direction:         model.DirectionIn,
		ChannelType:       model.ChannelTypeWhatsApp,
		ChannelID:         channel.ID,
		ContactID:         contact.ID,
		OpportunityID:     &opportunity.ID,
		ContactPhone:      msg.From,
		Content:           content,
		Attachments:       attachments,
		State:             model.MessageStateNew,
		ProviderMessageID: &providerID,
		ProviderTimestamp: providerTS,
		Metadata:          md,
	}

	if _, err := p.messages.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateProviderMessageID) {
			// Lost a race against a concurrent duplicate delivery.
			return nil
		}
		p.dedup.Forget(msg.ID)
		return err
	}

	prom.IncCounterVec(prom.SystemMessages, prom.MetricInboundMaterialized, msg.Type)
	logger.Info("inbound message materialized",
		"provider_message_id", msg.ID, "contact_id", contact.ID, "opportunity_id", opportunity.ID, "type", msg.Type)
	return nil
}

// handleStatus correlates one status callback with a previously recorded
// message. Unknown wamids are skipped: the provider also reports on traffic
// this system did not originate.
func (p *Processor) handleStatus(ctx context.Context, status *meta.MessageStatus) error {
	msg, err := p.messages.GetByProviderMessageID(ctx, status.ID)
	if errors.Is(err, repository.ErrMessageNotFound) {
		logger.Warn("status for unknown message", "provider_message_id", status.ID, "status", status.Status)
		return nil
	}
	if err != nil {
		return err
	}

	st := status.Status
	msg.ProviderStatus = &st
	if status.Status == "failed" && len(status.Errors) > 0 {
		if b, err := json.Marshal(status.Errors); err == nil {
			msg.Metadata.MetaErrors = b
		}
	}
	// Local state stays untouched: it records the send-attempt outcome, not
	// delivery visibility.
	if err := p.messages.Update(ctx, msg); err != nil {
		return err
	}

	prom.IncCounterVec(prom.SystemMessages, prom.MetricStatusCorrelated, status.Status)
	return nil
}

// profileName finds the display name the provider attached for a sender.
func profileName(value *meta.ChangeValue, waID string) string {
	for _, c := range value.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}

// extractContent maps a provider message onto text content plus attachment
// references. Unknown types keep the raw message as content for triage.
func extractContent(msg *meta.IncomingMessage) (string, model.AttachmentList) {
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return "", nil
		}
		return msg.Text.Body, nil
	case "image", "audio", "document", "video", "sticker":
		media := msg.Media()
		if media == nil {
			return string(msg.Raw), nil
		}
		att := model.Attachment{
			Kind:     msg.Type,
			MediaID:  media.ID,
			Mime:     media.MimeType,
			Filename: media.Filename,
			Caption:  media.Caption,
		}
		content := media.Caption
		if content == "" {
			content = "[" + msg.Type + " received]"
		}
		return content, model.AttachmentList{att}
	}
	return string(msg.Raw), nil
}
