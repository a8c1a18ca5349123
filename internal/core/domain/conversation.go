package domain

import (
	"fmt"
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

// Conversation states. CLOSED is terminal.
const (
	ConversationCreated ConversationStatus = "CREATED"
	ConversationActive  ConversationStatus = "ACTIVE"
	ConversationClosed  ConversationStatus = "CLOSED"
)

// Conversation is a chat between one user and, optionally, one material.
type Conversation struct {
	ID            string
	UserID        string
	TenantID      string
	MaterialID    string
	Title         string
	Status        ConversationStatus
	TotalMessages int
	LastActivity  time.Time
	CreatedAt     time.Time
}

// RecordTurn accounts for messages appended to the conversation.
func (c *Conversation) RecordTurn(messages int, now time.Time) error {
	if c.Status == ConversationClosed {
		return fmt.Errorf("%w: conversation %s is closed", ErrValidation, c.ID)
	}
	c.Status = ConversationActive
	c.TotalMessages += messages
	c.LastActivity = now
	return nil
}

// Close moves the conversation to its terminal state.
func (c *Conversation) Close(now time.Time) {
	c.Status = ConversationClosed
	c.LastActivity = now
}

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// ContextChunk is a chunk that grounded an assistant message.
type ContextChunk struct {
	ChunkID    string
	Similarity float64
}

// Message is one immutable turn entry.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	ContextChunks  []ContextChunk
	TokensUsed     int
	ResponseTimeMs int64
	CreatedAt      time.Time
}

// Principal is the authenticated caller of a driving operation.
type Principal struct {
	UserID   string
	TenantID string
}

// UsageStatus is the usage-limit collaborator's view of a principal.
type UsageStatus struct {
	TokensUsedToday    int
	DailyTokenLimit    int
	MessagesThisWeek   int
	WeeklyMessageLimit int
	Exceeded           bool
	Reason             string
}
