package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact belongs to exactly one tenant. A number identifies at most one
// contact per tenant and channel field.
type Contact struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID        string     `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_contacts_tenant_phone,where:phone_number IS NOT NULL;uniqueIndex:idx_contacts_tenant_whatsapp,where:whatsapp_number IS NOT NULL" json:"tenantId"`
	Name            *string    `gorm:"type:varchar(255)" json:"name"`
	Email           *string    `gorm:"type:varchar(255)" json:"email"`
	PhoneNumber     *string    `gorm:"type:varchar(32);index;uniqueIndex:idx_contacts_tenant_phone,where:phone_number IS NOT NULL" json:"phoneNumber"`
	WhatsAppNumber  *string    `gorm:"column:whatsapp_number;type:varchar(32);index;uniqueIndex:idx_contacts_tenant_whatsapp,where:whatsapp_number IS NOT NULL" json:"whatsappNumber"`
	LastContactedAt *time.Time `json:"lastContactedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (c *Contact) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Destination picks the address to reach the contact on channel.
// WhatsApp falls back to the phone number.
func (c *Contact) Destination(channel Channel) (string, bool) {
	switch channel {
	case ChannelWhatsApp:
		if c.WhatsAppNumber != nil && *c.WhatsAppNumber != "" {
			return *c.WhatsAppNumber, true
		}
		fallthrough
	case ChannelSMS:
		if c.PhoneNumber != nil && *c.PhoneNumber != "" {
			return *c.PhoneNumber, true
		}
	}
	return "", false
}
