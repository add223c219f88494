package repository

import (
	"context"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNoUsers is returned when the system has no user to own an
	// auto-created contact.
	ErrNoUsers = errors.New("no users available")
)

type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{db}
}

// FirstOwner returns the oldest non-deleted user, the default owner for
// contacts materialized from inbound traffic. The Active flag is not
// consulted: a deactivated agent still beats losing the lead.
func (r *UserRepository) FirstOwner(ctx context.Context) (*model.User, error) {
	var u model.User
	err := r.Read(ctx).WithContext(ctx).Order("id ASC").First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoUsers
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
