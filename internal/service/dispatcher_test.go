package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
)

func TestSendMessage_Sent(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", PhoneNumber: ptr("+1777")})

	msg, err := env.dispatcher(0).SendMessage(context.Background(), SendCommand{
		TenantID:     "tenant-1",
		ContactID:    contact.ID,
		SenderUserID: "user-1",
		Channel:      domain.ChannelSMS,
		Content:      "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Status != domain.StatusSent {
		t.Fatalf("expected SENT, got %s", msg.Status)
	}
	if msg.ExternalID == nil || *msg.ExternalID != "SM100" || msg.SentAt == nil {
		t.Fatalf("expected external id and sent time, got %+v", msg)
	}
	if msg.Direction != domain.DirectionOutbound || msg.UserID == nil || *msg.UserID != "user-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	calls := env.gateway.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(calls))
	}
	if calls[0].From != "+1555" || calls[0].To != "+1777" || calls[0].Body != "hello" {
		t.Fatalf("unexpected gateway request: %+v", calls[0])
	}
	if calls[0].Credentials.AccountID != "AC1" || calls[0].Credentials.AuthToken != "token-1" {
		t.Fatalf("unexpected credentials: %+v", calls[0].Credentials)
	}

	stored, err := env.messages.Get(context.Background(), "tenant-1", msg.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != domain.StatusSent {
		t.Fatalf("expected stored status SENT, got %s", stored.Status)
	}
	if env.reloadContact(t, contact.ID).LastContactedAt == nil {
		t.Fatalf("expected contact to be touched")
	}
}

func TestSendMessage_WhatsAppFallsBackToPhone(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", PhoneNumber: ptr("+1777")})

	msg, err := env.dispatcher(0).SendMessage(context.Background(), SendCommand{
		TenantID:  "tenant-1",
		ContactID: contact.ID,
		Channel:   domain.ChannelWhatsApp,
		Content:   "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Status != domain.StatusSent {
		t.Fatalf("expected SENT, got %s", msg.Status)
	}

	calls := env.gateway.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(calls))
	}
	// the gateway client owns the wire tag
	if calls[0].To != "+1777" || calls[0].Channel != domain.ChannelWhatsApp {
		t.Fatalf("unexpected gateway request: %+v", calls[0])
	}
}

func TestSendMessage_UnconfiguredChannel(t *testing.T) {
	env := newTestEnv(t)
	tenant := configuredTenant()
	tenant.WhatsAppNumber = ""
	env.seedTenant(t, tenant)
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", WhatsAppNumber: ptr("+1777")})

	msg, err := env.dispatcher(0).SendMessage(context.Background(), SendCommand{
		TenantID:  "tenant-1",
		ContactID: contact.ID,
		Channel:   domain.ChannelWhatsApp,
		Content:   "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", msg.Status)
	}
	if !strings.Contains(msg.FailureReason(), "not configured") {
		t.Fatalf("unexpected failure reason: %q", msg.FailureReason())
	}
	if len(env.gateway.calls()) != 0 {
		t.Fatalf("expected no gateway call")
	}
}

func TestSendMessage_MissingCredentials(t *testing.T) {
	env := newTestEnv(t)
	tenant := configuredTenant()
	tenant.GatewayAuthToken = ""
	env.seedTenant(t, tenant)
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", PhoneNumber: ptr("+1777")})

	msg, err := env.dispatcher(0).SendMessage(context.Background(), SendCommand{
		TenantID:  "tenant-1",
		ContactID: contact.ID,
		Channel:   domain.ChannelSMS,
		Content:   "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", msg.Status)
	}
	if len(env.gateway.calls()) != 0 {
		t.Fatalf("expected no gateway call")
	}
}

func TestSendMessage_NoAddress(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", Email: ptr("a@b.c")})

	msg, err := env.dispatcher(0).SendMessage(context.Background(), SendCommand{
		TenantID:  "tenant-1",
		ContactID: contact.ID,
		Channel:   domain.ChannelSMS,
		Content:   "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", msg.Status)
	}
	if !strings.Contains(msg.FailureReason(), "no address") {
		t.Fatalf("unexpected failure reason: %q", msg.FailureReason())
	}
	if len(env.gateway.calls()) != 0 {
		t.Fatalf("expected no gateway call")
	}
	if env.reloadContact(t, contact.ID).LastContactedAt == nil {
		t.Fatalf("expected contact to be touched on failure")
	}
}

func TestSendMessage_CrossTenantContact(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	other := configuredTenant()
	other.ID = "tenant-2"
	other.SMSNumber = "+1999"
	other.WhatsAppNumber = ""
	env.seedTenant(t, other)
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-2", PhoneNumber: ptr("+1777")})

	msg, err := env.dispatcher(0).SendMessage(context.Background(), SendCommand{
		TenantID:  "tenant-1",
		ContactID: contact.ID,
		Channel:   domain.ChannelSMS,
		Content:   "hi",
	})
	if !errors.Is(err, domain.ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound, got %v", err)
	}
	if msg != nil {
		t.Fatalf("expected no message, got %+v", msg)
	}
	if n := env.countMessages(t); n != 0 {
		t.Fatalf("expected no stored messages, got %d", n)
	}
	if len(env.gateway.calls()) != 0 {
		t.Fatalf("expected no gateway call")
	}
}

func TestSendMessage_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)
	d := env.dispatcher(0)

	cases := map[string]SendCommand{
		"missing contact": {TenantID: "tenant-1", Channel: domain.ChannelSMS, Content: "hi"},
		"blank content":   {TenantID: "tenant-1", ContactID: "c1", Channel: domain.ChannelSMS, Content: "  "},
		"bad channel":     {TenantID: "tenant-1", ContactID: "c1", Channel: domain.Channel("FAX"), Content: "hi"},
		"missing tenant":  {ContactID: "c1", Channel: domain.ChannelSMS, Content: "hi"},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := d.SendMessage(context.Background(), cmd); !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
	if n := env.countMessages(t); n != 0 {
		t.Fatalf("expected no stored messages, got %d", n)
	}
}

func TestSendMessage_GatewayRejects(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", PhoneNumber: ptr("+1777")})
	env.gateway.err = &domain.GatewaySendError{Channel: domain.ChannelSMS, StatusCode: 400, Code: 21211, Err: errors.New("invalid 'To' phone number")}

	msg, err := env.dispatcher(0).SendMessage(context.Background(), SendCommand{
		TenantID:  "tenant-1",
		ContactID: contact.ID,
		Channel:   domain.ChannelSMS,
		Content:   "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", msg.Status)
	}
	if !strings.Contains(msg.FailureReason(), "invalid 'To' phone number") {
		t.Fatalf("unexpected failure reason: %q", msg.FailureReason())
	}

	stored, _ := env.messages.Get(context.Background(), "tenant-1", msg.ID)
	if stored == nil || stored.Status != domain.StatusFailed || stored.ExternalID != nil {
		t.Fatalf("unexpected stored message: %+v", stored)
	}
}

func TestSendMessage_GatewayTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", PhoneNumber: ptr("+1777")})
	env.gateway.block = true

	start := time.Now()
	msg, err := env.dispatcher(50*time.Millisecond).SendMessage(context.Background(), SendCommand{
		TenantID:  "tenant-1",
		ContactID: contact.ID,
		Channel:   domain.ChannelSMS,
		Content:   "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("send was not bounded by the timeout")
	}
	if msg.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", msg.Status)
	}
}

func TestSendMessage_CanceledRequestStillRecordsOutcome(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", PhoneNumber: ptr("+1777")})
	env.gateway.block = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.gateway.onSend = cancel

	msg, err := env.dispatcher(time.Minute).SendMessage(ctx, SendCommand{
		TenantID:  "tenant-1",
		ContactID: contact.ID,
		Channel:   domain.ChannelSMS,
		Content:   "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}

	stored, err := env.messages.Get(context.Background(), "tenant-1", msg.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED after cancellation, got %s", stored.Status)
	}
}

func TestListThread(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", PhoneNumber: ptr("+1777")})
	d := env.dispatcher(0)
	ctx := context.Background()

	for _, content := range []string{"first", "second"} {
		if _, err := d.SendMessage(ctx, SendCommand{TenantID: "tenant-1", ContactID: contact.ID, Channel: domain.ChannelSMS, Content: content}); err != nil {
			t.Fatalf("SendMessage() error: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	thread, err := d.ListThread(ctx, "tenant-1", contact.ID)
	if err != nil {
		t.Fatalf("ListThread() error: %v", err)
	}
	if len(thread) != 2 || thread[0].Content != "first" || thread[1].Content != "second" {
		t.Fatalf("unexpected thread: %+v", thread)
	}

	if _, err := d.ListThread(ctx, "tenant-2", contact.ID); !errors.Is(err, domain.ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound for other tenant, got %v", err)
	}
	if _, err := d.ListThread(ctx, "tenant-1", ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestGetMessage(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, configuredTenant())
	contact := env.seedContact(t, domain.Contact{TenantID: "tenant-1", PhoneNumber: ptr("+1777")})
	d := env.dispatcher(0)
	ctx := context.Background()

	sent, err := d.SendMessage(ctx, SendCommand{TenantID: "tenant-1", ContactID: contact.ID, Channel: domain.ChannelSMS, Content: "hi"})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}

	got, err := d.GetMessage(ctx, "tenant-1", sent.ID)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	if got.Status != domain.StatusSent || got.ExternalID == nil || *got.ExternalID != "SM100" {
		t.Fatalf("unexpected message: %+v", got)
	}

	if _, err := d.GetMessage(ctx, "tenant-2", sent.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other tenant, got %v", err)
	}
	if _, err := d.GetMessage(ctx, "tenant-1", ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
