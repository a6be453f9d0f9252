// Package registry resolves the sending identity a tenant uses on each channel.
//
// Every lookup reads the tenant's current configuration; nothing is cached
// across calls, so a credential change is visible to the next request.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	tenantRepo "github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/repository/tenant"
)

// SecretResolver looks up auth tokens that tenants keep outside the database.
type SecretResolver interface {
	ResolveAuthToken(ctx context.Context, secretName string) (string, error)
}

// Identity is everything needed to send on behalf of a tenant on one channel.
type Identity struct {
	Address     string
	Credentials domain.Credentials
}

type Registry interface {
	ResolveSendingAddress(ctx context.Context, tenantID string, channel domain.Channel) (string, error)
	ResolveCredentials(ctx context.Context, tenantID string) (domain.Credentials, error)
	Resolve(ctx context.Context, tenantID string, channel domain.Channel) (Identity, error)
	TenantCredentials(ctx context.Context, tenant *domain.Tenant) (domain.Credentials, error)
}

type registry struct {
	tenants tenantRepo.Repository
	secrets SecretResolver
}

// New creates a registry. secrets may be nil when no tenant keeps its token
// in a secret store.
func New(tenants tenantRepo.Repository, secrets SecretResolver) Registry {
	return &registry{tenants: tenants, secrets: secrets}
}

func (r *registry) ResolveSendingAddress(ctx context.Context, tenantID string, channel domain.Channel) (string, error) {
	tenant, err := r.loadTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return sendingAddress(tenant, channel)
}

func (r *registry) ResolveCredentials(ctx context.Context, tenantID string) (domain.Credentials, error) {
	tenant, err := r.loadTenant(ctx, tenantID)
	if err != nil {
		return domain.Credentials{}, err
	}
	return r.TenantCredentials(ctx, tenant)
}

// Resolve returns the address and credentials from a single tenant read.
func (r *registry) Resolve(ctx context.Context, tenantID string, channel domain.Channel) (Identity, error) {
	tenant, err := r.loadTenant(ctx, tenantID)
	if err != nil {
		return Identity{}, err
	}

	addr, err := sendingAddress(tenant, channel)
	if err != nil {
		return Identity{}, err
	}

	creds, err := r.TenantCredentials(ctx, tenant)
	if err != nil {
		return Identity{}, err
	}

	return Identity{Address: addr, Credentials: creds}, nil
}

// TenantCredentials extracts the gateway credentials of an already loaded tenant.
func (r *registry) TenantCredentials(ctx context.Context, tenant *domain.Tenant) (domain.Credentials, error) {
	if tenant.GatewayAccountID == "" {
		return domain.Credentials{}, &domain.NotConfiguredError{TenantID: tenant.ID, Missing: "gateway account id"}
	}

	token := tenant.GatewayAuthToken
	if token == "" && tenant.GatewaySecretRef != "" {
		if r.secrets == nil {
			return domain.Credentials{}, &domain.NotConfiguredError{
				TenantID: tenant.ID,
				Missing:  "gateway secret",
				Err:      errors.New("no secret store available"),
			}
		}

		var err error
		token, err = r.secrets.ResolveAuthToken(ctx, tenant.GatewaySecretRef)
		if err != nil {
			return domain.Credentials{}, &domain.NotConfiguredError{TenantID: tenant.ID, Missing: "gateway secret", Err: err}
		}
	}
	if token == "" {
		return domain.Credentials{}, &domain.NotConfiguredError{TenantID: tenant.ID, Missing: "gateway secret"}
	}

	return domain.Credentials{AccountID: tenant.GatewayAccountID, AuthToken: token}, nil
}

func (r *registry) loadTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	tenant, err := r.tenants.Get(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.NotConfiguredError{TenantID: tenantID, Missing: "tenant", Err: err}
	} else if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	return tenant, nil
}

func sendingAddress(tenant *domain.Tenant, channel domain.Channel) (string, error) {
	addr := tenant.SendingAddress(channel)
	if addr == "" {
		return "", &domain.NotConfiguredError{TenantID: tenant.ID, Channel: channel, Missing: "sending address"}
	}
	return addr, nil
}
