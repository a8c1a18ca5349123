// Package authz provides the tenant-boundary authorizer used when the
// platform's access-control service is not wired in.
package authz

import (
	"context"
	"fmt"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure TenantAuthorizer implements the interface.
var _ driven.Authorizer = (*TenantAuthorizer)(nil)

// TenantAuthorizer grants access to materials of the principal's own
// tenant and to conversations the principal owns.
type TenantAuthorizer struct{}

// NewTenantAuthorizer creates a tenant authorizer.
func NewTenantAuthorizer() *TenantAuthorizer {
	return &TenantAuthorizer{}
}

// CanAccessMaterial returns nil if the material belongs to the principal's tenant.
func (a *TenantAuthorizer) CanAccessMaterial(_ context.Context, principal domain.Principal, material *domain.Material) error {
	if principal.TenantID == "" {
		return fmt.Errorf("%w: principal has no tenant", domain.ErrUnauthorized)
	}
	if material == nil || material.TenantID != principal.TenantID {
		return fmt.Errorf("%w: material is outside tenant %s", domain.ErrUnauthorized, principal.TenantID)
	}
	return nil
}

// CanAccessConversation returns nil if the principal owns the conversation.
func (a *TenantAuthorizer) CanAccessConversation(_ context.Context, principal domain.Principal, conv *domain.Conversation) error {
	if principal.UserID == "" || principal.TenantID == "" {
		return fmt.Errorf("%w: principal is incomplete", domain.ErrUnauthorized)
	}
	if conv == nil || conv.TenantID != principal.TenantID || conv.UserID != principal.UserID {
		return fmt.Errorf("%w: conversation belongs to another user", domain.ErrUnauthorized)
	}
	return nil
}
