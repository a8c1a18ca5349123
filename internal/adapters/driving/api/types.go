package api

import (
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	IndexState string `json:"index_state"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Collection  string `json:"collection"`
	Dimension   int    `json:"dimension"`
	Metric      string `json:"metric"`
	RecordCount int64  `json:"record_count"`
	State       string `json:"state"`
}

// IngestRequest is the body of POST /materials.
// Exactly one of Content and ContentBase64 should be set.
type IngestRequest struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title,omitempty"`
	Filename      string `json:"filename,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	Content       string `json:"content,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
}

// MaterialResponse describes a material.
type MaterialResponse struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Title       string    `json:"title"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusResponse describes ingestion progress.
type StatusResponse struct {
	MaterialID      string     `json:"material_id"`
	Running         bool       `json:"running"`
	Status          string     `json:"status,omitempty"`
	TotalChunks     int        `json:"total_chunks"`
	ProcessedChunks int        `json:"processed_chunks"`
	FailedChunks    int        `json:"failed_chunks"`
	EmbeddingModel  string     `json:"embedding_model,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// SearchRequest is the body of POST /materials/{id}/search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// ChunkResponse is one retrieved chunk.
type ChunkResponse struct {
	ChunkID      string  `json:"chunk_id"`
	Similarity   float64 `json:"similarity"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
	ChunkType    string  `json:"chunk_type,omitempty"`
	ChunkIndex   int     `json:"chunk_index"`
	PageNumber   *int    `json:"page_number,omitempty"`
	SectionTitle string  `json:"section_title,omitempty"`
}

// SearchResponse is returned by POST /materials/{id}/search.
type SearchResponse struct {
	Results []ChunkResponse `json:"results"`
	Latency float64         `json:"latency_ms"`
}

// CreateConversationRequest is the body of POST /conversations.
type CreateConversationRequest struct {
	MaterialID string `json:"material_id,omitempty"`
	Title      string `json:"title,omitempty"`
}

// ConversationResponse describes a conversation.
type ConversationResponse struct {
	ID            string    `json:"id"`
	MaterialID    string    `json:"material_id,omitempty"`
	Title         string    `json:"title,omitempty"`
	Status        string    `json:"status"`
	TotalMessages int       `json:"total_messages"`
	LastActivity  time.Time `json:"last_activity"`
	CreatedAt     time.Time `json:"created_at"`
}

// SendMessageRequest is the body of POST /conversations/{id}/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ContextChunkResponse references a chunk that grounded an answer.
type ContextChunkResponse struct {
	ChunkID    string  `json:"chunk_id"`
	Similarity float64 `json:"similarity"`
}

// MessageResponse describes a message.
type MessageResponse struct {
	ID             string                 `json:"id"`
	Role           string                 `json:"role"`
	Content        string                 `json:"content"`
	ContextChunks  []ContextChunkResponse `json:"context_chunks,omitempty"`
	TokensUsed     int                    `json:"tokens_used,omitempty"`
	ResponseTimeMs int64                  `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// UsageResponse reports the caller's usage against their limits.
type UsageResponse struct {
	TokensUsedToday    int    `json:"tokens_used_today"`
	DailyTokenLimit    int    `json:"daily_token_limit"`
	MessagesThisWeek   int    `json:"messages_this_week"`
	WeeklyMessageLimit int    `json:"weekly_message_limit"`
	Exceeded           bool   `json:"exceeded"`
	Reason             string `json:"reason,omitempty"`
}

// TurnResponse is returned by POST /conversations/{id}/messages.
type TurnResponse struct {
	Conversation  ConversationResponse `json:"conversation"`
	UserMessage   MessageResponse      `json:"user_message"`
	Answer        MessageResponse      `json:"answer"`
	Sources       []ChunkResponse      `json:"sources"`
	DroppedChunks int                  `json:"dropped_chunks,omitempty"`
	Usage         *UsageResponse       `json:"usage,omitempty"`
	QuotaExceeded bool                 `json:"quota_exceeded,omitempty"`
}

func toMaterial(m domain.Material) MaterialResponse {
	return MaterialResponse{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Title:       m.Title,
		ContentType: m.ContentType,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toStatus(s *driving.IngestionStatus) StatusResponse {
	out := StatusResponse{MaterialID: s.MaterialID, Running: s.Running}
	if rec := s.Record; rec != nil {
		out.Status = string(rec.Status)
		out.TotalChunks = rec.TotalChunks
		out.ProcessedChunks = rec.ProcessedChunks
		out.FailedChunks = rec.FailedChunks
		out.EmbeddingModel = rec.EmbeddingModel
		out.LastError = rec.LastError
		started := rec.StartedAt
		out.StartedAt = &started
		out.CompletedAt = rec.CompletedAt
	}
	return out
}

func toChunks(chunks []domain.RetrievedChunk) []ChunkResponse {
	out := make([]ChunkResponse, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkResponse{
			ChunkID:      c.ChunkID,
			Similarity:   c.Similarity,
			Score:        c.Score,
			Content:      c.Metadata.Content,
			ChunkType:    string(c.Metadata.ChunkType),
			ChunkIndex:   c.Metadata.ChunkIndex,
			PageNumber:   c.Metadata.PageNumber,
			SectionTitle: c.Metadata.SectionTitle,
		}
	}
	return out
}

func toConversation(c *domain.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:            c.ID,
		MaterialID:    c.MaterialID,
		Title:         c.Title,
		Status:        string(c.Status),
		TotalMessages: c.TotalMessages,
		LastActivity:  c.LastActivity,
		CreatedAt:     c.CreatedAt,
	}
}

func toMessage(m *domain.Message) MessageResponse {
	out := MessageResponse{
		ID:             m.ID,
		Role:           string(m.Role),
		Content:        m.Content,
		TokensUsed:     m.TokensUsed,
		ResponseTimeMs: m.ResponseTimeMs,
		CreatedAt:      m.CreatedAt,
	}
	for _, c := range m.ContextChunks {
		out.ContextChunks = append(out.ContextChunks, ContextChunkResponse(c))
	}
	return out
}

func toUsage(u *domain.UsageStatus) *UsageResponse {
	if u == nil {
		return nil
	}
	out := UsageResponse(*u)
	return &out
}
