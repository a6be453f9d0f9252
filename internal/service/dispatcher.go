package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/gateway"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/registry"
	contactRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/contact"
	messageRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/message"
)

const defaultSendTimeout = 15 * time.Second

// SendCommand is a request from a tenant user to message one of its contacts.
type SendCommand struct {
	TenantID     string
	ContactID    string
	SenderUserID string
	Channel      domain.Channel
	Content      string
}

func (c SendCommand) validate() error {
	switch {
	case c.TenantID == "":
		return fmt.Errorf("%w: tenant id is required", domain.ErrInvalidRequest)
	case c.ContactID == "":
		return fmt.Errorf("%w: contactId is required", domain.ErrInvalidRequest)
	case strings.TrimSpace(c.Content) == "":
		return fmt.Errorf("%w: content is required", domain.ErrInvalidRequest)
	case !c.Channel.Valid():
		return fmt.Errorf("%w: unsupported channel %q", domain.ErrInvalidRequest, c.Channel)
	}
	return nil
}

type Dispatcher interface {
	// SendMessage records an outbound message and attempts delivery. Once the
	// record exists the error is nil; the message status tells the outcome.
	SendMessage(ctx context.Context, cmd SendCommand) (*domain.Message, error)
	// ListThread returns a contact's messages, oldest first.
	ListThread(ctx context.Context, tenantID, contactID string) ([]domain.Message, error)
	// GetMessage re-reads one of the tenant's messages to follow its status.
	GetMessage(ctx context.Context, tenantID, id string) (*domain.Message, error)
}

type dispatcher struct {
	messages    messageRepo.Repository
	contacts    contactRepo.Repository
	registry    registry.Registry
	gateway     gateway.Client
	logger      *slog.Logger
	sendTimeout time.Duration
}

func NewDispatcher(
	messages messageRepo.Repository,
	contacts contactRepo.Repository,
	reg registry.Registry,
	gw gateway.Client,
	logger *slog.Logger,
	sendTimeout time.Duration,
) Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &dispatcher{
		messages:    messages,
		contacts:    contacts,
		registry:    reg,
		gateway:     gw,
		logger:      logger,
		sendTimeout: sendTimeout,
	}
}

func (d *dispatcher) SendMessage(ctx context.Context, cmd SendCommand) (*domain.Message, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	contact, err := d.contacts.GetForTenant(ctx, cmd.TenantID, cmd.ContactID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		TenantID:  cmd.TenantID,
		ContactID: contact.ID,
		Direction: domain.DirectionOutbound,
		Channel:   cmd.Channel,
		Content:   cmd.Content,
		Status:    domain.StatusPending,
	}
	if cmd.SenderUserID != "" {
		msg.UserID = &cmd.SenderUserID
	}
	if err := d.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	// the record exists, its outcome must be stored even if the caller goes away
	persistCtx := context.WithoutCancel(ctx)

	msgLogger := d.logger.With(
		slog.String("messageId", msg.ID),
		slog.String("tenantId", msg.TenantID),
		slog.String("channel", msg.Channel.String()),
	)

	d.deliver(ctx, persistCtx, msg, contact, msgLogger)

	if err := d.contacts.Touch(persistCtx, contact.ID, time.Now()); err != nil {
		msgLogger.Error("failed to update contact last contacted time", "contactId", contact.ID, "error", err.Error())
	}

	return msg, nil
}

func (d *dispatcher) deliver(ctx, persistCtx context.Context, msg *domain.Message, contact *domain.Contact, msgLogger *slog.Logger) {
	to, ok := contact.Destination(msg.Channel)
	if !ok {
		d.fail(persistCtx, msg, fmt.Errorf("%w: %s", domain.ErrNoAddress, msg.Channel), msgLogger)
		return
	}

	identity, err := d.registry.Resolve(ctx, msg.TenantID, msg.Channel)
	if err != nil {
		d.fail(persistCtx, msg, err, msgLogger)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	externalID, err := d.gateway.Send(sendCtx, gateway.SendRequest{
		Channel:     msg.Channel,
		From:        identity.Address,
		To:          to,
		Body:        msg.Content,
		Credentials: identity.Credentials,
	})
	if err != nil {
		var sendErr *domain.GatewaySendError
		if !errors.As(err, &sendErr) {
			err = &domain.GatewaySendError{Channel: msg.Channel, Err: err}
		}
		d.fail(persistCtx, msg, err, msgLogger)
		return
	}

	if err := d.messages.MarkSent(persistCtx, msg, externalID, time.Now()); err != nil {
		msgLogger.Error("failed to update message status to sent", "externalId", externalID, "error", err.Error())
		return
	}
	msgLogger.Info("message is successfully sent", "externalId", externalID)
}

func (d *dispatcher) fail(ctx context.Context, msg *domain.Message, cause error, msgLogger *slog.Logger) {
	msgLogger.Warn("message send failed", "error", cause.Error())
	if err := d.messages.MarkFailed(ctx, msg, cause.Error()); err != nil {
		msgLogger.Error("failed to update message status to failed", "error", err.Error())
	}
}

func (d *dispatcher) ListThread(ctx context.Context, tenantID, contactID string) ([]domain.Message, error) {
	if contactID == "" {
		return nil, fmt.Errorf("%w: contactId is required", domain.ErrInvalidRequest)
	}

	contact, err := d.contacts.GetForTenant(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}

	return d.messages.ListByContact(ctx, tenantID, contact.ID)
}

func (d *dispatcher) GetMessage(ctx context.Context, tenantID, id string) (*domain.Message, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrInvalidRequest)
	}
	return d.messages.Get(ctx, tenantID, id)
}
