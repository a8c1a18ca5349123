package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
	"github.com/custodia-labs/lectern/internal/ratelimit"
)

// Ensure EmbeddingGenerator implements the interface.
var _ driving.EmbeddingService = (*EmbeddingGenerator)(nil)

// ellipsis marks text cut by Truncate.
const ellipsis = "..."

// EmbeddingConfig bounds embedding requests.
type EmbeddingConfig struct {
	// Dimension is the vector size every embedding must have.
	Dimension int

	// BatchSize is the number of texts sent per provider request.
	BatchSize int

	// MaxTokensPerRequest sets the truncation budget of
	// MaxTokensPerRequest*CharsPerToken characters per text.
	MaxTokensPerRequest int

	// Concurrency is the number of batch requests in flight.
	Concurrency int

	// Timeout bounds every provider call.
	Timeout time.Duration
}

// EmbeddingConfigFrom maps settings to an EmbeddingConfig.
func EmbeddingConfigFrom(s domain.EmbeddingSettings) EmbeddingConfig {
	return EmbeddingConfig{
		Dimension:           s.Dimension,
		BatchSize:           s.BatchSize,
		MaxTokensPerRequest: s.MaxTokensPerRequest,
		Concurrency:         s.Concurrency,
		Timeout:             s.Timeout,
	}
}

// EmbeddingGenerator turns text into vectors through a rate-limited provider.
type EmbeddingGenerator struct {
	provider driven.EmbeddingProvider
	limiter  *ratelimit.Limiter
	cfg      EmbeddingConfig
	log      logger.Logger
}

// NewEmbeddingGenerator creates an embedding generator.
// A nil limiter disables rate limiting.
func NewEmbeddingGenerator(provider driven.EmbeddingProvider, limiter *ratelimit.Limiter, cfg EmbeddingConfig) *EmbeddingGenerator {
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxTokensPerRequest <= 0 {
		cfg.MaxTokensPerRequest = 8191
	}
	return &EmbeddingGenerator{
		provider: provider,
		limiter:  limiter,
		cfg:      cfg,
		log:      logger.With("embedding"),
	}
}

// Dimension returns the configured vector dimension.
func (g *EmbeddingGenerator) Dimension() int {
	return g.cfg.Dimension
}

// ModelName returns the embedding model identifier.
func (g *EmbeddingGenerator) ModelName() string {
	return g.provider.ModelName()
}

// Embed embeds a single text.
func (g *EmbeddingGenerator) Embed(ctx context.Context, text string) (*domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrValidation)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: wait for rate limit: %w", domain.ErrProvider, err)
	}

	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.Embed(callCtx, g.Truncate(text))
	elapsed := time.Since(start)
	if err != nil {
		g.noteRateLimit(err)
		return nil, fmt.Errorf("%w: embed: %w", domain.ErrProvider, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: embed: response has no vector", domain.ErrProvider)
	}
	if err := g.checkVector(resp.Vector); err != nil {
		return nil, fmt.Errorf("%w: embed: %w", domain.ErrProvider, err)
	}

	return &domain.EmbeddingResult{
		Vector:         resp.Vector,
		TokenCount:     resp.TokensUsed,
		ProcessingTime: elapsed,
	}, nil
}

// EmbedBatch embeds texts in sub-batches of BatchSize with at most
// Concurrency requests in flight. A sub-batch that fails is recorded as a
// failure covering all of its texts; the remaining sub-batches still run.
func (g *EmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) (*domain.BatchEmbeddingResult, error) {
	result := &domain.BatchEmbeddingResult{}
	if len(texts) == 0 {
		return result, nil
	}

	type outcome struct {
		embeddings []domain.BatchEmbedding
		tokens     int
		failure    *domain.BatchFailure
	}

	numBatches := (len(texts) + g.cfg.BatchSize - 1) / g.cfg.BatchSize
	outcomes := make([]outcome, numBatches)

	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)

	for b := 0; b < numBatches; b++ {
		start := b * g.cfg.BatchSize
		end := min(start+g.cfg.BatchSize, len(texts))

		eg.Go(func() error {
			embeddings, tokens, err := g.embedSubBatch(ctx, start, texts[start:end])
			if err != nil {
				g.log.Warn("batch %d-%d failed: %v", start, end, err)
				outcomes[b] = outcome{failure: &domain.BatchFailure{Start: start, End: end, Err: err}}
				return nil
			}
			outcomes[b] = outcome{embeddings: embeddings, tokens: tokens}
			return nil
		})
	}
	_ = eg.Wait()

	for _, o := range outcomes {
		if o.failure != nil {
			result.Failures = append(result.Failures, *o.failure)
			result.FailureCount += o.failure.Size()
			continue
		}
		result.Embeddings = append(result.Embeddings, o.embeddings...)
		result.SuccessCount += len(o.embeddings)
		result.TotalTokens += o.tokens
	}

	g.log.Debug("embedded %d texts in %d batches: %d ok, %d failed",
		len(texts), numBatches, result.SuccessCount, result.FailureCount)
	return result, nil
}

// embedSubBatch sends one provider request. Usage and latency are
// reported per request, so they are spread evenly across the items.
func (g *EmbeddingGenerator) embedSubBatch(ctx context.Context, offset int, texts []string) ([]domain.BatchEmbedding, int, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("%w: wait for rate limit: %w", domain.ErrProvider, err)
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = g.Truncate(t)
	}

	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.EmbedBatch(callCtx, truncated)
	elapsed := time.Since(start)
	if err != nil {
		g.noteRateLimit(err)
		return nil, 0, fmt.Errorf("%w: embed batch: %w", domain.ErrProvider, err)
	}
	if resp == nil || len(resp.Vectors) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Vectors)
		}
		return nil, 0, fmt.Errorf("%w: embed batch: expected %d vectors, got %d",
			domain.ErrProvider, len(texts), got)
	}

	n := len(texts)
	perItemTime := elapsed / time.Duration(n)
	baseTokens, extra := resp.TotalTokensUsed/n, resp.TotalTokensUsed%n

	embeddings := make([]domain.BatchEmbedding, n)
	for i, vec := range resp.Vectors {
		if err := g.checkVector(vec); err != nil {
			return nil, 0, fmt.Errorf("%w: embed batch: item %d: %w", domain.ErrProvider, offset+i, err)
		}
		tokens := baseTokens
		if i < extra {
			tokens++
		}
		embeddings[i] = domain.BatchEmbedding{
			Index:          offset + i,
			Vector:         vec,
			TokenCount:     tokens,
			ProcessingTime: perItemTime,
		}
	}
	return embeddings, resp.TotalTokensUsed, nil
}

// checkVector rejects a missing vector or one whose length differs from
// the configured dimension. A zero Dimension only rejects missing vectors.
func (g *EmbeddingGenerator) checkVector(vec []float32) error {
	switch {
	case len(vec) == 0:
		return errors.New("response has no vector")
	case g.cfg.Dimension > 0 && len(vec) != g.cfg.Dimension:
		return fmt.Errorf("vector has %d dimensions, want %d", len(vec), g.cfg.Dimension)
	}
	return nil
}

// Truncate cuts text that exceeds MaxTokensPerRequest*CharsPerToken
// characters to budget-3 characters plus an ellipsis. The 4 characters
// per token heuristic is approximate and does not match any tokenizer.
func (g *EmbeddingGenerator) Truncate(text string) string {
	budget := g.cfg.MaxTokensPerRequest * domain.CharsPerToken
	if utf8.RuneCountInString(text) <= budget {
		return text
	}

	keep := budget - len(ellipsis)
	cut := 0
	for i := range text {
		if keep == 0 {
			cut = i
			break
		}
		keep--
	}
	return text[:cut] + ellipsis
}

// Similarity returns the cosine similarity of a and b.
func (g *EmbeddingGenerator) Similarity(a, b []float32) (float64, error) {
	return domain.CosineSimilarity(a, b)
}

// TopK ranks candidates by similarity to query and returns the first k.
// k larger than the candidate count returns every candidate.
func (g *EmbeddingGenerator) TopK(query []float32, candidates []domain.Candidate, k int) ([]domain.ScoredCandidate, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative", domain.ErrValidation)
	}

	scored := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		sim, err := domain.CosineSimilarity(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		scored = append(scored, domain.ScoredCandidate{ID: c.ID, Similarity: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Validate checks vector against the configured dimension.
func (g *EmbeddingGenerator) Validate(vector []float32) domain.ValidationReport {
	return domain.ValidateEmbedding(vector, g.cfg.Dimension)
}

func (g *EmbeddingGenerator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

func (g *EmbeddingGenerator) noteRateLimit(err error) {
	if rl, ok := driven.IsRateLimited(err); ok {
		g.log.Warn("provider rate limited, backing off %s", rl.RetryAfter)
		g.limiter.Backoff(rl.RetryAfter)
	}
}
