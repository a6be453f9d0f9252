package repository

import (
	"context"
	"errors"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	"gorm.io/gorm"
)

// Repository reads tenant configuration. Tenants are never written through it.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Tenant, error)
	FindBySendingAddress(ctx context.Context, address string) (*domain.Tenant, error)
}

type repo struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindBySendingAddress returns the tenant whose SMS or WhatsApp number is address
func (r *repo) FindBySendingAddress(ctx context.Context, address string) (*domain.Tenant, error) {
	if address == "" {
		return nil, domain.ErrNotFound
	}

	var tenant domain.Tenant
	err := r.db.WithContext(ctx).
		Where("sms_number = ? OR whatsapp_number = ?", address, address).
		Order("created_at ASC").
		First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &tenant, nil
}
