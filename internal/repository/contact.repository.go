package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/inmobium/crm-messaging/internal/model"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrContactNotFound = errors.New("contact not found")
)

type ContactRepository struct {
	*pg.DB
}

func NewContactRepository(db *pg.DB) *ContactRepository {
	return &ContactRepository{db}
}

// FindByPhone looks a contact up by JSON-array containment on its phone
// list. Soft-deleted contacts never match. On postgres the jsonb @> operator
// does the work; on sqlite (tests) a LIKE over the serialized array is
// equivalent because phones are stored as exact JSON strings.
func (r *ContactRepository) FindByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&model.Contact{})

	if q.Dialector.Name() == "postgres" {
		needle, err := json.Marshal([]string{phone})
		if err != nil {
			return nil, err
		}
		q = q.Where("phones @> ?", string(needle))
	} else {
		quoted, err := json.Marshal(phone)
		if err != nil {
			return nil, err
		}
		q = q.Where("phones LIKE ?", "%"+string(quoted)+"%")
	}

	var c model.Contact
	err := q.Order("id ASC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id int64) (*model.Contact, error) {
	var c model.Contact
	err := r.Read(ctx).WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	if err := r.Write(ctx).WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}
