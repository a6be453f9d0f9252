package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	"gorm.io/gorm"
)

type Repository interface {
	GetForTenant(ctx context.Context, tenantID, id string) (*domain.Contact, error)
	FindOrCreateByAddress(ctx context.Context, tenantID string, channel domain.Channel, address string) (contact *domain.Contact, created bool, err error)
	Touch(ctx context.Context, id string, at time.Time) error
}

type repo struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

// GetForTenant returns the contact only if tenantID owns it
func (r *repo) GetForTenant(ctx context.Context, tenantID, id string) (*domain.Contact, error) {
	var contact domain.Contact
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrContactNotFound
	} else if err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindOrCreateByAddress matches address against the phone and whatsapp numbers
// of the tenant's contacts, creating a contact when none matches. A new contact
// gets only the field of the given channel. When a concurrent call creates the
// same contact first, its row is returned.
func (r *repo) FindOrCreateByAddress(ctx context.Context, tenantID string, channel domain.Channel, address string) (*domain.Contact, bool, error) {
	if address == "" {
		return nil, false, fmt.Errorf("%w: empty contact address", domain.ErrInvalidRequest)
	}

	db := r.db.WithContext(ctx)

	contact, err := findByAddress(db, tenantID, address)
	if err == nil {
		return contact, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	contact = &domain.Contact{TenantID: tenantID, LastContactedAt: &now}
	if channel == domain.ChannelWhatsApp {
		contact.WhatsAppNumber = &address
	} else {
		contact.PhoneNumber = &address
	}

	err = db.Create(contact).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// the unique index decided the race, read the winner
		winner, err := findByAddress(db, tenantID, address)
		if err != nil {
			return nil, false, fmt.Errorf("reload contact after conflict: %w", err)
		}
		return winner, false, nil
	} else if err != nil {
		return nil, false, err
	}

	return contact, true, nil
}

func findByAddress(db *gorm.DB, tenantID, address string) (*domain.Contact, error) {
	var contact domain.Contact
	err := db.Where("tenant_id = ? AND (phone_number = ? OR whatsapp_number = ?)", tenantID, address, address).
		Order("created_at ASC").
		First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// Touch sets the contact's last contacted time
func (r *repo) Touch(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("id = ?", id).
		Update("last_contacted_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrContactNotFound
	}
	return nil
}
