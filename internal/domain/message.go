package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "PENDING"
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusFailed    MessageStatus = "FAILED"
	StatusScheduled MessageStatus = "SCHEDULED"
)

// transitions lists every status change a message may go through.
var transitions = map[MessageStatus][]MessageStatus{
	StatusPending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered},
	StatusScheduled: {StatusPending},
}

// CanTransition reports whether a message in status from may move to status to.
func CanTransition(from, to MessageStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "INBOUND"
	DirectionOutbound MessageDirection = "OUTBOUND"
)

type Message struct {
	ID           string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID     string           `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_messages_tenant_external,where:external_id IS NOT NULL" json:"tenantId"`
	ContactID    string           `gorm:"type:varchar(36);not null;index:idx_messages_contact_created,priority:1" json:"contactId"`
	Direction    MessageDirection `gorm:"type:varchar(16);not null" json:"direction"`
	Channel      Channel          `gorm:"type:varchar(16);not null" json:"channel"`
	Content      string           `gorm:"type:text;not null" json:"content"`
	Status       MessageStatus    `gorm:"type:varchar(16);not null;index" json:"status"`
	ExternalID   *string          `gorm:"type:varchar(64);uniqueIndex:idx_messages_tenant_external,where:external_id IS NOT NULL" json:"externalId"`
	UserID       *string          `gorm:"type:varchar(36)" json:"userId,omitempty"`
	ReplyToID    *string          `gorm:"type:varchar(36)" json:"replyToId,omitempty"`
	MediaURLs    []string         `gorm:"column:media_urls;serializer:json" json:"mediaUrls"`
	ErrorMessage *string          `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `gorm:"index:idx_messages_contact_created,priority:2" json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	SentAt       *time.Time       `json:"sentAt"`
	DeliveredAt  *time.Time       `json:"deliveredAt"`
}

// BeforeCreate assigns a random identifier to messages created without one.
func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.MediaURLs == nil {
		m.MediaURLs = []string{}
	}
	return nil
}

// FailureReason returns the recorded error text, or an empty string.
func (m *Message) FailureReason() string {
	if m.ErrorMessage == nil {
		return ""
	}
	return *m.ErrorMessage
}
