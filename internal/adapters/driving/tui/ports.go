// Package tui provides an interactive terminal chat for lectern.
// It is a driving adapter over the conversation service.
package tui

import (
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// Ports aggregates the driving ports and session identity the TUI needs.
type Ports struct {
	// Principal is the student the session runs as.
	Principal domain.Principal

	// Conversation runs chat turns.
	Conversation driving.ConversationService

	// MaterialID binds a new conversation to a material.
	MaterialID string

	// ConversationID resumes an existing conversation.
	ConversationID string

	// Title names a new conversation.
	Title string
}

// Validate ensures the required ports and identity are set.
func (p *Ports) Validate() error {
	if p.Conversation == nil {
		return ErrMissingConversationService
	}
	if p.Principal.UserID == "" || p.Principal.TenantID == "" {
		return ErrMissingPrincipal
	}
	if p.MaterialID == "" && p.ConversationID == "" {
		return ErrMissingConversation
	}
	return nil
}
