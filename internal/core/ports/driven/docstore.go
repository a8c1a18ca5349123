package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// MaterialStore persists materials and their chunks.
// Backed by SQLite for metadata storage.
type MaterialStore interface {
	// SaveMaterial stores or updates a material.
	SaveMaterial(ctx context.Context, material *domain.Material) error

	// SaveChunks replaces the chunks of a material.
	SaveChunks(ctx context.Context, materialID string, chunks []domain.Chunk) error

	// GetMaterial retrieves a material by ID.
	GetMaterial(ctx context.Context, id string) (*domain.Material, error)

	// GetChunks retrieves all chunks for a material ordered by index.
	GetChunks(ctx context.Context, materialID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// DeleteMaterial removes a material and its chunks.
	DeleteMaterial(ctx context.Context, id string) error

	// ListMaterials returns the materials of a tenant.
	ListMaterials(ctx context.Context, tenantID string) ([]domain.Material, error)
}

// ProcessingStore persists ingestion progress records.
type ProcessingStore interface {
	// Save stores or updates a record.
	Save(ctx context.Context, record *domain.ProcessingRecord) error

	// Get retrieves the record of a material.
	Get(ctx context.Context, materialID string) (*domain.ProcessingRecord, error)

	// Delete removes the record of a material.
	Delete(ctx context.Context, materialID string) error
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	// SaveConversation stores or updates a conversation.
	SaveConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// ListConversations returns a user's conversations, most recent first.
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage stores a new message. Messages are never updated.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns the latest limit messages, oldest first.
	// A limit of zero or less returns every message.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}
