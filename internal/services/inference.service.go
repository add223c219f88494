package services

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/internal/repository"
	"github.com/inmobium/crm-messaging/pkg/logger"
)

// OperationInferer decides which operation type, if any, an auto-created
// opportunity should carry. The rule prioritizes maintenance over sales: an
// inbound WhatsApp from a contact with an operative rental is presumed to be
// about that rental.
type OperationInferer struct {
	properties     *repository.PropertyRepository
	operationTypes *repository.OperationTypeRepository
}

func NewOperationInferer(properties *repository.PropertyRepository, operationTypes *repository.OperationTypeRepository) *OperationInferer {
	return &OperationInferer{properties: properties, operationTypes: operationTypes}
}

// InferForContact returns the id of the maintenance operation type when the
// contact has at least one operative rental property, or nil to leave the
// opportunity untyped.
func (s *OperationInferer) InferForContact(ctx context.Context, contactID int64) (*int64, error) {
	props, err := s.properties.ListActiveByContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if !hasOperativeRental(props) {
		return nil, nil
	}

	ot, err := s.operationTypes.GetByCode(ctx, model.OperationCodeMaintenance)
	if errors.Is(err, repository.ErrOperationTypeNotFound) {
		logger.Warn("maintenance operation type not seeded; leaving opportunity untyped")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ot.ID, nil
}

// hasOperativeRental is the pure core of the rule: a non-deleted active
// property whose operation type is the rental code and whose lifecycle state
// is one of the three operative states.
func hasOperativeRental(props []*model.Property) bool {
	for _, p := range props {
		if p.OperationType == nil || p.OperationType.Code != model.OperationCodeRental {
			continue
		}
		if p.Operative() {
			return true
		}
	}
	return false
}
