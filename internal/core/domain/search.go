package domain

// RetrievalQuery scopes a retrieval to one material inside one tenant.
type RetrievalQuery struct {
	// MaterialID is the material to search.
	MaterialID string

	// TenantID is the tenant the material belongs to.
	TenantID string

	// Text is the user's query.
	Text string

	// TopK is the maximum number of chunks returned.
	TopK int
}

// Validate checks the query carries both isolation keys and text.
func (q RetrievalQuery) Validate() error {
	switch {
	case q.MaterialID == "":
		return errorf(ErrValidation, "material id is required")
	case q.TenantID == "":
		return errorf(ErrValidation, "tenant id is required")
	case q.Text == "":
		return errorf(ErrValidation, "query text is required")
	}
	return nil
}

// RetrievedChunk is one ranked chunk returned by retrieval.
type RetrievedChunk struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity to the query.
	Similarity float64

	// Score is the ranking score after optional re-ranking.
	// Equal to Similarity when no re-ranker is configured.
	Score float64

	// Metadata is the stored chunk projection.
	Metadata VectorMetadata
}

// ContextWindow is the bounded context handed to the generator.
type ContextWindow struct {
	// Chunks are the included chunks in descending similarity.
	Chunks []RetrievedChunk

	// TokenCount is the estimated size of the included chunks.
	TokenCount int

	// Dropped is the number of retrieved chunks left out for budget.
	Dropped int
}

// References returns the (chunk id, similarity) pairs of included chunks.
func (w ContextWindow) References() []ContextChunk {
	refs := make([]ContextChunk, len(w.Chunks))
	for i, c := range w.Chunks {
		refs[i] = ContextChunk{ChunkID: c.ChunkID, Similarity: c.Similarity}
	}
	return refs
}
