package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// ConversationService runs grounded chat turns.
type ConversationService interface {
	// Create opens a conversation, optionally bound to a material.
	Create(ctx context.Context, principal domain.Principal, materialID, title string) (*domain.Conversation, error)

	// SendMessage runs one turn. When the usage limit is exceeded the turn
	// is still persisted and returned, together with an error wrapping
	// ErrQuotaExceeded.
	SendMessage(ctx context.Context, principal domain.Principal, conversationID, text string) (*TurnResult, error)

	// Get returns a conversation.
	Get(ctx context.Context, principal domain.Principal, conversationID string) (*domain.Conversation, error)

	// List returns the principal's conversations.
	List(ctx context.Context, principal domain.Principal) ([]domain.Conversation, error)

	// History returns up to limit most recent messages, oldest first.
	History(ctx context.Context, principal domain.Principal, conversationID string, limit int) ([]domain.Message, error)

	// Close moves a conversation to CLOSED.
	Close(ctx context.Context, principal domain.Principal, conversationID string) error

	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, principal domain.Principal, conversationID string) error
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	// Conversation is the conversation after the turn.
	Conversation *domain.Conversation

	// UserMessage is the persisted user turn.
	UserMessage *domain.Message

	// AssistantMessage is the persisted answer.
	AssistantMessage *domain.Message

	// Context is the window handed to the generator.
	Context domain.ContextWindow

	// Usage is the usage-limit status after the turn.
	Usage *domain.UsageStatus
}
