package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Authorizer answers access questions for the platform's access-control
// service. A denial is returned as domain.ErrUnauthorized and never retried.
type Authorizer interface {
	// CanAccessMaterial returns nil if principal may read the material.
	CanAccessMaterial(ctx context.Context, principal domain.Principal, material *domain.Material) error

	// CanAccessConversation returns nil if principal may use the conversation.
	CanAccessConversation(ctx context.Context, principal domain.Principal, conv *domain.Conversation) error
}

// UsageLimiter tracks per-user and per-tenant quotas around chat turns.
type UsageLimiter interface {
	// Record accounts for one message exchange that used tokens.
	Record(ctx context.Context, principal domain.Principal, tokens int) error

	// Status returns the principal's current usage and whether a limit is hit.
	Status(ctx context.Context, principal domain.Principal) (*domain.UsageStatus, error)
}

// BlobStore holds the original uploaded document bytes.
type BlobStore interface {
	// Get returns the bytes stored under key.
	// Returns domain.ErrNotFound if nothing is stored there.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous content.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the blob under key. Missing blobs are not an error.
	Delete(ctx context.Context, key string) error
}
