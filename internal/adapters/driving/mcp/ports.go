package mcp

import (
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Principal is the user every request is made as.
	Principal domain.Principal

	// Retrieval provides material search.
	Retrieval driving.RetrievalService

	// Conversation runs grounded chat turns.
	Conversation driving.ConversationService

	// Ingestion lists materials and reports their processing status.
	Ingestion driving.IngestionService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	if p.Principal.UserID == "" || p.Principal.TenantID == "" {
		return ErrMissingPrincipal
	}
	// Conversation and Ingestion are optional
	return nil
}
