package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Material represents an uploaded learning document.
// It exclusively owns its Chunks and its ProcessingRecord.
type Material struct {
	// ID is the unique identifier for the material.
	ID string

	// TenantID is the school that owns the material.
	TenantID string

	// Title is the human-readable title.
	Title string

	// BlobKey locates the original upload in blob storage (optional).
	BlobKey string

	// ContentType is the MIME type of the original upload.
	ContentType string

	// CreatedAt is when the material was first registered.
	CreatedAt time.Time

	// UpdatedAt is when the material was last re-chunked.
	UpdatedAt time.Time
}

// Validate checks the identifiers every downstream record depends on.
func (m *Material) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: material is nil", ErrValidation)
	}
	if m.ID == "" {
		return fmt.Errorf("%w: material id is required", ErrValidation)
	}
	if m.TenantID == "" {
		return fmt.Errorf("%w: material %s has no tenant", ErrValidation, m.ID)
	}
	return nil
}

// ChunkType classifies the structural role of a chunk.
type ChunkType string

// Known chunk types.
const (
	ChunkTypeParagraph ChunkType = "paragraph"
	ChunkTypeHeading   ChunkType = "heading"
	ChunkTypeTable     ChunkType = "table"
	ChunkTypeList      ChunkType = "list"
)

// IsValid returns true if the chunk type is recognised.
func (t ChunkType) IsValid() bool {
	switch t {
	case ChunkTypeParagraph, ChunkTypeHeading, ChunkTypeTable, ChunkTypeList:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t ChunkType) String() string {
	return string(t)
}

// Chunk represents a retrievable unit within a material.
// Chunks are immutable once created; Index is assigned at chunking
// time and never derived from embedding completion order.
type Chunk struct {
	// ID is unique within the material.
	ID string

	// MaterialID links to the parent Material.
	MaterialID string

	// TenantID is copied from the material for isolation filters.
	TenantID string

	// Index is the ordinal position within the material.
	Index int

	// Type is the structural classification.
	Type ChunkType

	// Content is the text content of this chunk.
	Content string

	// TokenCount is the approximate token count (4 characters per token).
	TokenCount int

	// CharCount is the number of characters in Content.
	CharCount int

	// PageNumber is the 1-based source page, when known.
	PageNumber *int

	// SectionTitle is the nearest preceding heading, when known.
	SectionTitle string
}

// CharsPerToken is the heuristic used wherever a token count is estimated
// without a tokenizer.
const CharsPerToken = 4

// EstimateTokens returns ceil(runes/CharsPerToken) for s.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + CharsPerToken - 1) / CharsPerToken
}
