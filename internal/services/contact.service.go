package services

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/repository"
	"github.com/inmobium/crm-messaging/pkg/logger"
)

var (
	// ErrContactUnknown is returned for a phone with no contact when
	// auto-creation is disabled.
	ErrContactUnknown = errors.New("contact unknown and auto-create disabled")
	// ErrNoOwnerAvailable is returned when a contact should be created but
	// the system has no user to own it.
	ErrNoOwnerAvailable = errors.New("no owner available for new contact")
)

type ContactResolver struct {
	settings *repository.SettingRepository
	contacts *repository.ContactRepository
	users    *repository.UserRepository
}

func NewContactResolver(settings *repository.SettingRepository, contacts *repository.ContactRepository, users *repository.UserRepository) *ContactResolver {
	return &ContactResolver{settings: settings, contacts: contacts, users: users}
}

// FindOrCreate returns the contact owning the phone number, creating one
// when allowed. The creation is committed before returning; downstream
// inserts reference the id.
func (s *ContactResolver) FindOrCreate(ctx context.Context, phone, profileName string) (*model.Contact, error) {
	c, err := s.contacts.FindByPhone(ctx, phone)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrContactNotFound) {
		return nil, err
	}

	autoCreate, err := s.settings.GetBool(ctx, model.SettingAutoCreateContact)
	if err != nil {
		return nil, err
	}
	if !autoCreate {
		return nil, ErrContactUnknown
	}

	owner, err := s.users.FirstOwner(ctx)
	if errors.Is(err, repository.ErrNoUsers) {
		return nil, ErrNoOwnerAvailable
	}
	if err != nil {
		return nil, err
	}

	name := profileName
	if name == "" {
		name = "Contact " + phone
	}
	origin := model.OriginWhatsApp

	created, err := s.contacts.Create(ctx, &model.Contact{
		Name:   name,
		Phones: model.PhoneList{phone},
		Origin: &origin,
		UserID: owner.ID,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("contact auto-created", "contact_id", created.ID, "phone", phone)
	return created, nil
}
