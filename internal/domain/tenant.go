package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is an isolated customer organization with its own gateway account.
type Tenant struct {
	ID             string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name           string `gorm:"type:varchar(255);not null" json:"name"`
	SMSNumber      string `gorm:"column:sms_number;type:varchar(32);index" json:"smsNumber"`
	WhatsAppNumber string `gorm:"column:whatsapp_number;type:varchar(32);index" json:"whatsappNumber"`
	// GatewayAccountID and GatewayAuthToken authenticate against the gateway.
	// GatewaySecretRef names a Secrets Manager secret that holds the token
	// when it is not stored inline.
	GatewayAccountID string    `gorm:"type:varchar(64)" json:"-"`
	GatewayAuthToken string    `gorm:"type:varchar(128)" json:"-"`
	GatewaySecretRef string    `gorm:"type:varchar(255)" json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (t *Tenant) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// SendingAddress returns the tenant's configured number for channel.
func (t *Tenant) SendingAddress(channel Channel) string {
	switch channel {
	case ChannelSMS:
		return t.SMSNumber
	case ChannelWhatsApp:
		return t.WhatsAppNumber
	}
	return ""
}

// Credentials authenticate a tenant against the messaging gateway.
type Credentials struct {
	AccountID string
	AuthToken string
}

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{&Tenant{}, &Contact{}, &Message{}}
}
