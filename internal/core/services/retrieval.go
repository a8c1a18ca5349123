package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure RetrievalEngine implements the interface.
var _ driving.RetrievalService = (*RetrievalEngine)(nil)

// DefaultTopK is used when a query does not set TopK.
const DefaultTopK = 5

// Reranker reorders retrieved chunks after the similarity search.
// Implementations adjust Score and must leave Similarity untouched.
type Reranker interface {
	Rerank(query string, chunks []domain.RetrievedChunk) []domain.RetrievedChunk
}

// HeadingBoost adds Boost to the score of heading chunks and re-sorts by
// score. Headings tend to name the topic a question is about.
type HeadingBoost struct {
	Boost float64
}

// Rerank implements Reranker.
func (h HeadingBoost) Rerank(_ string, chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	if h.Boost == 0 {
		return chunks
	}
	for i := range chunks {
		if chunks[i].Metadata.ChunkType == domain.ChunkTypeHeading {
			chunks[i].Score += h.Boost
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	return chunks
}

// RetrievalOption configures the retrieval engine.
type RetrievalOption func(*RetrievalEngine)

// WithReranker sets a secondary ranking step.
func WithReranker(r Reranker) RetrievalOption {
	return func(e *RetrievalEngine) {
		e.reranker = r
	}
}

// WithDefaultTopK sets the result count for queries that leave TopK unset.
func WithDefaultTopK(k int) RetrievalOption {
	return func(e *RetrievalEngine) {
		if k > 0 {
			e.defaultTopK = k
		}
	}
}

// RetrievalEngine embeds a query and searches one material's chunks.
type RetrievalEngine struct {
	embedder    driving.EmbeddingService
	index       driving.VectorIndexService
	materials   driven.MaterialStore
	authz       driven.Authorizer
	reranker    Reranker
	defaultTopK int
	log         logger.Logger
}

// NewRetrievalEngine creates a retrieval engine.
func NewRetrievalEngine(
	embedder driving.EmbeddingService,
	index driving.VectorIndexService,
	materials driven.MaterialStore,
	authz driven.Authorizer,
	opts ...RetrievalOption,
) *RetrievalEngine {
	e := &RetrievalEngine{
		embedder:    embedder,
		index:       index,
		materials:   materials,
		authz:       authz,
		defaultTopK: DefaultTopK,
		log:         logger.With("retrieval"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns up to TopK chunks of the query's material, ranked by
// similarity (or by the re-ranker's score when one is set).
func (e *RetrievalEngine) Retrieve(ctx context.Context, query domain.RetrievalQuery) ([]domain.RetrievedChunk, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	topK := query.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}

	embedding, err := e.embedder.Embed(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := e.index.Query(ctx, embedding.Vector, domain.VectorFilter{
		TenantID:   query.TenantID,
		MaterialID: query.MaterialID,
	}, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	chunks := make([]domain.RetrievedChunk, len(matches))
	for i, m := range matches {
		chunks[i] = domain.RetrievedChunk{
			ChunkID:    m.ID,
			Similarity: m.Score,
			Score:      m.Score,
			Metadata:   m.Metadata,
		}
	}
	if e.reranker != nil && len(chunks) > 1 {
		chunks = e.reranker.Rerank(query.Text, chunks)
	}

	e.log.Debug("material %s: %d chunks for %q", query.MaterialID, len(chunks), query.Text)
	return chunks, nil
}

// Search checks the principal may read the material and retrieves within
// the material's tenant.
func (e *RetrievalEngine) Search(
	ctx context.Context,
	principal domain.Principal,
	materialID, text string,
	topK int,
) ([]domain.RetrievedChunk, error) {
	material, err := e.materials.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("get material %s: %w", materialID, err)
	}
	if err := e.authz.CanAccessMaterial(ctx, principal, material); err != nil {
		return nil, err
	}
	return e.Retrieve(ctx, domain.RetrievalQuery{
		MaterialID: material.ID,
		TenantID:   material.TenantID,
		Text:       text,
		TopK:       topK,
	})
}
