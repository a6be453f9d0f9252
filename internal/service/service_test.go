package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/gateway"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/persistant/sqlite"
	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/registry"
	contactRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/contact"
	messageRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/message"
	tenantRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/tenant"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []gateway.SendRequest
	sid      string
	err      error
	// block makes Send wait for the context to end.
	block  bool
	onSend func()
}

func (f *fakeGateway) Send(ctx context.Context, req gateway.SendRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.onSend != nil {
		f.onSend()
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.sid, nil
}

func (f *fakeGateway) calls() []gateway.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.SendRequest(nil), f.requests...)
}

type testEnv struct {
	db       *gorm.DB
	messages messageRepo.Repository
	contacts contactRepo.Repository
	tenants  tenantRepo.Repository
	registry registry.Registry
	gateway  *fakeGateway
	logger   *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Initialize(sqlite.Memory, domain.Models())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	tenants := tenantRepo.NewTenantRepository(db)
	return &testEnv{
		db:       db,
		messages: messageRepo.NewMessageRepository(db),
		contacts: contactRepo.NewContactRepository(db),
		tenants:  tenants,
		registry: registry.New(tenants, nil),
		gateway:  &fakeGateway{sid: "SM100"},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *testEnv) dispatcher(sendTimeout time.Duration) Dispatcher {
	return NewDispatcher(e.messages, e.contacts, e.registry, e.gateway, e.logger, sendTimeout)
}

func (e *testEnv) seedTenant(t *testing.T, tenant domain.Tenant) *domain.Tenant {
	t.Helper()
	if err := e.db.Create(&tenant).Error; err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}
	return &tenant
}

func (e *testEnv) seedContact(t *testing.T, contact domain.Contact) *domain.Contact {
	t.Helper()
	if err := e.db.Create(&contact).Error; err != nil {
		t.Fatalf("failed to seed contact: %v", err)
	}
	return &contact
}

func (e *testEnv) countMessages(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&domain.Message{}).Count(&n).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

func (e *testEnv) countContacts(t *testing.T, tenantID string) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&domain.Contact{}).Where("tenant_id = ?", tenantID).Count(&n).Error; err != nil {
		t.Fatalf("count contacts: %v", err)
	}
	return n
}

func (e *testEnv) reloadContact(t *testing.T, id string) *domain.Contact {
	t.Helper()
	var c domain.Contact
	if err := e.db.Where("id = ?", id).First(&c).Error; err != nil {
		t.Fatalf("reload contact: %v", err)
	}
	return &c
}

func configuredTenant() domain.Tenant {
	return domain.Tenant{
		ID:               "tenant-1",
		Name:             "Acme",
		SMSNumber:        "+1555",
		WhatsAppNumber:   "+1555",
		GatewayAccountID: "AC1",
		GatewayAuthToken: "token-1",
	}
}

func ptr(s string) *string { return &s }
