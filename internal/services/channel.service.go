package services

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/repository"
	"github.com/inmobium/crm-messaging/pkg/logger"
)

var (
	// ErrChannelNotConfigured is returned when a webhook references a
	// provider phone-number id this deployment does not know and
	// auto-creation is disabled.
	ErrChannelNotConfigured = errors.New("channel not configured")
)

type ChannelResolver struct {
	settings *repository.SettingRepository
	channels *repository.ChannelRepository
}

func NewChannelResolver(settings *repository.SettingRepository, channels *repository.ChannelRepository) *ChannelResolver {
	return &ChannelResolver{settings: settings, channels: channels}
}

// Resolve looks up the logical channel behind a provider phone-number id,
// creating it on first sighting when the auto-create setting allows.
func (s *ChannelResolver) Resolve(ctx context.Context, providerChannelID, displayPhone string) (*model.Channel, error) {
	ch, err := s.channels.GetByProviderID(ctx, providerChannelID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, repository.ErrChannelNotFound) {
		return nil, err
	}

	autoCreate, err := s.settings.GetBool(ctx, model.SettingAutoCreateChannel)
	if err != nil {
		return nil, err
	}
	if !autoCreate {
		return nil, ErrChannelNotConfigured
	}

	created, err := s.channels.Create(ctx, &model.Channel{
		ProviderChannelID: providerChannelID,
		Phone:             displayPhone,
		Alias:             "Channel " + displayPhone,
		Active:            true,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("channel auto-created", "provider_channel_id", providerChannelID, "phone", displayPhone)
	return created, nil
}
