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
	Create(ctx context.Context, msg *domain.Message) error
	Get(ctx context.Context, tenantID, id string) (*domain.Message, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Message, error)
	ListByContact(ctx context.Context, tenantID, contactID string) ([]domain.Message, error)
	MarkSent(ctx context.Context, msg *domain.Message, externalID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, msg *domain.Message, reason string) error
}

type repo struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

// Create inserts msg, filling in its identifier and timestamps. A second
// message with the same external id in a tenant yields ErrAlreadyExists.
func (r *repo) Create(ctx context.Context, msg *domain.Message) error {
	err := r.db.WithContext(ctx).Create(msg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: message with external id", domain.ErrAlreadyExists)
	}
	return err
}

func (r *repo) Get(ctx context.Context, tenantID, id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *repo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantID, externalID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByContact returns a contact's thread, oldest first
func (r *repo) ListByContact(ctx context.Context, tenantID, contactID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND contact_id = ?", tenantID, contactID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// MarkSent moves a pending message to sent
func (r *repo) MarkSent(ctx context.Context, msg *domain.Message, externalID string, sentAt time.Time) error {
	sentAt = sentAt.UTC()
	err := r.transition(ctx, msg, domain.StatusSent, map[string]any{
		"external_id": externalID,
		"sent_at":     sentAt,
	})
	if err != nil {
		return err
	}
	msg.ExternalID = &externalID
	msg.SentAt = &sentAt
	return nil
}

// MarkFailed moves a pending message to failed, recording reason
func (r *repo) MarkFailed(ctx context.Context, msg *domain.Message, reason string) error {
	err := r.transition(ctx, msg, domain.StatusFailed, map[string]any{
		"error_message": reason,
	})
	if err != nil {
		return err
	}
	msg.ErrorMessage = &reason
	return nil
}

// transition applies the update only while the row still holds msg's current
// status, so concurrent writers cannot move a message twice.
func (r *repo) transition(ctx context.Context, msg *domain.Message, to domain.MessageStatus, fields map[string]any) error {
	from := msg.Status
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	fields["status"] = to
	fields["updated_at"] = now

	res := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND status = ?", msg.ID, from).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: message %s is no longer %s", domain.ErrInvalidTransition, msg.ID, from)
	}

	msg.Status = to
	msg.UpdatedAt = now
	return nil
}
