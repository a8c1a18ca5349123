package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for Lectern resources.
	uriScheme = "lectern://"

	// historyLimit bounds the messages returned by the history resource.
	historyLimit = 50
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Ingestion != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "materials",
			Name:        "materials",
			Description: "Learning materials of the tenant",
			MIMEType:    "application/json",
		}, s.handleMaterialsResource)

		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "materials/{materialId}/status",
			Name:        "material-status",
			Description: "Ingestion progress of a material",
			MIMEType:    "application/json",
		}, s.handleMaterialStatusResource)
	}

	if s.ports.Conversation != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "conversations/{conversationId}/messages",
			Name:        "conversation-messages",
			Description: "Most recent messages of a conversation, oldest first",
			MIMEType:    "application/json",
		}, s.handleMessagesResource)
	}
}

// handleMaterialsResource lists the tenant's materials.
func (s *Server) handleMaterialsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	materials, err := s.ports.Ingestion.List(ctx, s.ports.Principal)
	if err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
	}

	type materialInfo struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		ContentType string    `json:"content_type,omitempty"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	infos := make([]materialInfo, len(materials))
	for i, m := range materials {
		infos[i] = materialInfo{
			ID:          m.ID,
			Title:       m.Title,
			ContentType: m.ContentType,
			UpdatedAt:   m.UpdatedAt,
		}
	}

	return jsonResult(req.Params.URI, infos)
}

// handleMaterialStatusResource reports a material's processing record.
func (s *Server) handleMaterialStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	materialID := extractMaterialID(req.Params.URI)
	if materialID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	status, err := s.ports.Ingestion.Status(ctx, s.ports.Principal, materialID)
	if err != nil {
		return nil, fmt.Errorf("getting material status: %w", err)
	}

	type statusInfo struct {
		MaterialID      string `json:"material_id"`
		Running         bool   `json:"running"`
		Status          string `json:"status,omitempty"`
		TotalChunks     int    `json:"total_chunks"`
		ProcessedChunks int    `json:"processed_chunks"`
		FailedChunks    int    `json:"failed_chunks"`
		LastError       string `json:"last_error,omitempty"`
	}

	info := statusInfo{MaterialID: status.MaterialID, Running: status.Running}
	if rec := status.Record; rec != nil {
		info.Status = string(rec.Status)
		info.TotalChunks = rec.TotalChunks
		info.ProcessedChunks = rec.ProcessedChunks
		info.FailedChunks = rec.FailedChunks
		info.LastError = rec.LastError
	}

	return jsonResult(req.Params.URI, info)
}

// handleMessagesResource returns recent conversation messages.
func (s *Server) handleMessagesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	conversationID := extractConversationID(req.Params.URI)
	if conversationID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	messages, err := s.ports.Conversation.History(ctx, s.ports.Principal, conversationID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("getting conversation history: %w", err)
	}

	type messageInfo struct {
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"`
	}

	infos := make([]messageInfo, len(messages))
	for i, m := range messages {
		infos[i] = messageInfo{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt}
	}

	return jsonResult(req.Params.URI, infos)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractMaterialID extracts the material ID from a URI like lectern://materials/{materialId}/status.
func extractMaterialID(uri string) string {
	return between(uri, uriScheme+"materials/", "/status")
}

// extractConversationID extracts the conversation ID from a URI like
// lectern://conversations/{conversationId}/messages.
func extractConversationID(uri string) string {
	return between(uri, uriScheme+"conversations/", "/messages")
}

func between(uri, prefix, suffix string) string {
	if len(uri) <= len(prefix)+len(suffix) || !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return ""
	}
	id := uri[len(prefix) : len(uri)-len(suffix)]
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
