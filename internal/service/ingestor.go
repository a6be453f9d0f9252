package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/cache"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/gateway"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/registry"
	contactRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/contact"
	messageRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/message"
	tenantRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/tenant"
)

const (
	defaultDedupeTTL = 24 * time.Hour

	// maxMedia is the gateway's attachment limit per message.
	maxMedia = 10
)

// InboundEvent is a gateway callback for one received message. Addresses are
// in wire form.
type InboundEvent struct {
	From       string
	To         string
	Body       string
	MessageSid string
	MediaURLs  []string

	// Signature, URL and Params are only needed for signature validation.
	Signature string
	URL       string
	Params    url.Values
}

// NewInboundEvent reads the callback fields from a form-encoded body.
func NewInboundEvent(form url.Values) InboundEvent {
	ev := InboundEvent{
		From:       form.Get("From"),
		To:         form.Get("To"),
		Body:       form.Get("Body"),
		MessageSid: form.Get("MessageSid"),
		MediaURLs:  []string{},
		Params:     form,
	}

	numMedia, err := strconv.Atoi(form.Get("NumMedia"))
	if err != nil || numMedia <= 0 {
		return ev
	}
	for i := range min(numMedia, maxMedia) {
		if u := form.Get(fmt.Sprintf("MediaUrl%d", i)); u != "" {
			ev.MediaURLs = append(ev.MediaURLs, u)
		}
	}
	return ev
}

type Ingestor interface {
	// Ingest stores an inbound message. An event for an unknown recipient
	// yields a nil message and ErrUnroutableInbound; a redelivered event
	// yields the message stored the first time.
	Ingest(ctx context.Context, ev InboundEvent) (*domain.Message, error)
}

type IngestorOptions struct {
	ValidateSignature bool
	DedupeTTL         time.Duration
}

type ingestor struct {
	messages messageRepo.Repository
	contacts contactRepo.Repository
	tenants  tenantRepo.Repository
	registry registry.Registry
	seen     cache.Cache
	logger   *slog.Logger
	opts     IngestorOptions
}

// NewIngestor creates the webhook processor. seen may be nil, in which case
// duplicates are detected by the repository alone.
func NewIngestor(
	messages messageRepo.Repository,
	contacts contactRepo.Repository,
	tenants tenantRepo.Repository,
	reg registry.Registry,
	seen cache.Cache,
	logger *slog.Logger,
	opts IngestorOptions,
) Ingestor {
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = defaultDedupeTTL
	}
	return &ingestor{
		messages: messages,
		contacts: contacts,
		tenants:  tenants,
		registry: reg,
		seen:     seen,
		logger:   logger,
		opts:     opts,
	}
}

func (i *ingestor) Ingest(ctx context.Context, ev InboundEvent) (*domain.Message, error) {
	if ev.From == "" || ev.To == "" {
		return nil, fmt.Errorf("%w: From and To are required", domain.ErrInvalidRequest)
	}

	channel, from := gateway.ParseAddress(ev.From)
	to := gateway.StripTag(ev.To)

	tenant, err := i.tenants.FindBySendingAddress(ctx, to)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnroutableInbound, to)
	} else if err != nil {
		return nil, fmt.Errorf("find tenant: %w", err)
	}

	evLogger := i.logger.With(
		slog.String("tenantId", tenant.ID),
		slog.String("channel", channel.String()),
		slog.String("externalId", ev.MessageSid),
	)

	if i.opts.ValidateSignature {
		creds, err := i.registry.TenantCredentials(ctx, tenant)
		if err != nil {
			return nil, err
		}
		if !gateway.ValidateSignature(creds.AuthToken, ev.URL, ev.Params, ev.Signature) {
			return nil, domain.ErrInvalidSignature
		}
	}

	if existing, err := i.findDuplicate(ctx, tenant.ID, ev.MessageSid); err != nil {
		return nil, err
	} else if existing != nil {
		evLogger.Info("duplicate inbound message ignored", "messageId", existing.ID)
		return existing, nil
	}

	msg, err := i.store(ctx, tenant, channel, from, ev)
	if err != nil {
		// lost a race against a concurrent delivery of the same event; the
		// dedupe key now belongs to the stored message
		if !errors.Is(err, domain.ErrAlreadyExists) {
			i.forget(ctx, tenant.ID, ev.MessageSid, evLogger)
		}

		if ev.MessageSid != "" {
			if existing, lookupErr := i.messages.GetByExternalID(ctx, tenant.ID, ev.MessageSid); lookupErr == nil {
				evLogger.Info("duplicate inbound message ignored", "messageId", existing.ID)
				return existing, nil
			}
		}
		return nil, err
	}

	evLogger.Info("inbound message stored", "messageId", msg.ID, "contactId", msg.ContactID)
	return msg, nil
}

// findDuplicate returns the message already stored for externalID, if any.
// The cache answers for recently seen ids; a cache failure falls back to the
// repository.
func (i *ingestor) findDuplicate(ctx context.Context, tenantID, externalID string) (*domain.Message, error) {
	if externalID == "" {
		return nil, nil
	}

	if i.seen != nil {
		fresh, err := i.seen.SetNX(ctx, seenKey(tenantID, externalID), "1", i.opts.DedupeTTL)
		if err == nil && fresh {
			return nil, nil
		}
		if err != nil {
			i.logger.Warn("dedupe cache unavailable", "error", err.Error())
		}
	}

	existing, err := i.messages.GetByExternalID(ctx, tenantID, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("lookup external id: %w", err)
	}
	return existing, nil
}

func (i *ingestor) forget(ctx context.Context, tenantID, externalID string, evLogger *slog.Logger) {
	if i.seen == nil || externalID == "" {
		return
	}
	if err := i.seen.Del(ctx, seenKey(tenantID, externalID)); err != nil {
		evLogger.Warn("failed to clear dedupe key", "error", err.Error())
	}
}

func (i *ingestor) store(ctx context.Context, tenant *domain.Tenant, channel domain.Channel, from string, ev InboundEvent) (*domain.Message, error) {
	contact, created, err := i.contacts.FindOrCreateByAddress(ctx, tenant.ID, channel, from)
	if err != nil {
		return nil, fmt.Errorf("resolve contact: %w", err)
	}
	if created {
		i.logger.Info("contact created from inbound message", "tenantId", tenant.ID, "contactId", contact.ID)
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		TenantID:    tenant.ID,
		ContactID:   contact.ID,
		Direction:   domain.DirectionInbound,
		Channel:     channel,
		Content:     ev.Body,
		Status:      domain.StatusDelivered,
		MediaURLs:   ev.MediaURLs,
		SentAt:      &now,
		DeliveredAt: &now,
	}
	if ev.MessageSid != "" {
		sid := ev.MessageSid
		msg.ExternalID = &sid
	}
	if msg.MediaURLs == nil {
		msg.MediaURLs = []string{}
	}

	if err := i.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create inbound message: %w", err)
	}

	if err := i.contacts.Touch(ctx, contact.ID, now); err != nil {
		i.logger.Error("failed to update contact last contacted time", "contactId", contact.ID, "error", err.Error())
	}

	return msg, nil
}

func seenKey(tenantID, externalID string) string {
	return fmt.Sprintf("inbound:%s:%s", tenantID, externalID)
}
