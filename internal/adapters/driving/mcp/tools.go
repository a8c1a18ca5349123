package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// defaultTopK is used when a search does not ask for a result count.
const defaultTopK = 5

// SearchInput is the input schema for the search_material tool.
type SearchInput struct {
	MaterialID string `json:"material_id" jsonschema:"the material to search"`
	Query      string `json:"query" jsonschema:"the question or phrase to look for"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"maximum number of excerpts to return (default 5)"`
}

// SearchOutput is the output schema for the search_material tool.
type SearchOutput struct {
	Excerpts []ExcerptOutput `json:"excerpts"`
	Count    int             `json:"count"`
}

// ExcerptOutput represents a single retrieved chunk.
type ExcerptOutput struct {
	ChunkID      string  `json:"chunk_id"`
	Similarity   float64 `json:"similarity"`
	Content      string  `json:"content"`
	PageNumber   *int    `json:"page_number,omitempty"`
	SectionTitle string  `json:"section_title,omitempty"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"continue this conversation; a new one is opened when empty"`
	MaterialID     string `json:"material_id,omitempty" jsonschema:"the material a new conversation is about"`
	Question       string `json:"question" jsonschema:"the student's question"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	ConversationID string          `json:"conversation_id"`
	Answer         string          `json:"answer"`
	TokensUsed     int             `json:"tokens_used"`
	Sources        []ExcerptOutput `json:"sources"`
	QuotaExceeded  bool            `json:"quota_exceeded,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_material",
		Description: "Find the passages of a learning material most relevant to a query",
	}, s.handleSearch)

	if s.ports.Conversation != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Ask a question answered from a learning material, with cited excerpts",
		}, s.handleAsk)
	}
}

// handleSearch handles the search_material tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	topK := input.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	chunks, err := s.ports.Retrieval.Search(ctx, s.ports.Principal, input.MaterialID, input.Query, topK)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	return nil, SearchOutput{
		Excerpts: toExcerpts(chunks),
		Count:    len(chunks),
	}, nil
}

// handleAsk runs one conversation turn, opening a conversation first
// when none is given.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	conversationID := input.ConversationID
	if conversationID == "" {
		conv, err := s.ports.Conversation.Create(ctx, s.ports.Principal, input.MaterialID, "")
		if err != nil {
			return nil, AskOutput{}, err
		}
		conversationID = conv.ID
	}

	turn, err := s.ports.Conversation.SendMessage(ctx, s.ports.Principal, conversationID, input.Question)
	quota := errors.Is(err, domain.ErrQuotaExceeded)
	if err != nil && (!quota || turn == nil) {
		return nil, AskOutput{}, err
	}

	out := AskOutput{
		ConversationID: conversationID,
		Answer:         turn.AssistantMessage.Content,
		TokensUsed:     turn.AssistantMessage.TokensUsed,
		Sources:        toExcerpts(turn.Context.Chunks),
		QuotaExceeded:  quota,
	}
	return nil, out, nil
}

func toExcerpts(chunks []domain.RetrievedChunk) []ExcerptOutput {
	out := make([]ExcerptOutput, len(chunks))
	for i, c := range chunks {
		out[i] = ExcerptOutput{
			ChunkID:      c.ChunkID,
			Similarity:   c.Similarity,
			Content:      c.Metadata.Content,
			PageNumber:   c.Metadata.PageNumber,
			SectionTitle: c.Metadata.SectionTitle,
		}
	}
	return out
}
