package services

import (
	"context"
	"errors"
	"time"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/repository"
	"github.com/inmobium/crm-messaging/pkg/logger"
)

const autoOpportunityNote = "Opened automatically from an inbound WhatsApp message"

type OpportunityResolver struct {
	opportunities *repository.OpportunityRepository
	inferer       *OperationInferer
	now           func() time.Time
}

func NewOpportunityResolver(opportunities *repository.OpportunityRepository, inferer *OperationInferer) *OpportunityResolver {
	return &OpportunityResolver{
		opportunities: opportunities,
		inferer:       inferer,
		now:           time.Now,
	}
}

// ResolveForInbound returns the opportunity an inbound message from the
// contact belongs to. When the contact has no open opportunity a new one is
// created and committed before returning.
func (s *OpportunityResolver) ResolveForInbound(ctx context.Context, contact *model.Contact) (*model.Opportunity, error) {
	o, err := s.opportunities.FindActive(ctx, contact.ID)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, repository.ErrOpportunityNotFound) {
		return nil, err
	}

	operationTypeID, err := s.inferer.InferForContact(ctx, contact.ID)
	if err != nil {
		return nil, err
	}

	responsible := contact.UserID
	created, err := s.opportunities.Create(ctx, &model.Opportunity{
		ContactID:       contact.ID,
		OperationTypeID: operationTypeID,
		Status:          model.OpportunityOpen,
		StatusDate:      s.now(),
		Active:          true,
		UserID:          &responsible,
		Note:            autoOpportunityNote,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("opportunity auto-created", "opportunity_id", created.ID, "contact_id", contact.ID)
	return created, nil
}
