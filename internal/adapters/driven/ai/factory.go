// Package ai provides factory functions for creating AI and vector store
// adapters from settings.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openaiembed "github.com/custodia-labs/lectern/internal/adapters/driven/embedding/openai"
	openaillm "github.com/custodia-labs/lectern/internal/adapters/driven/llm/openai"
	vectormemory "github.com/custodia-labs/lectern/internal/adapters/driven/vectorstore/memory"
	vectorredis "github.com/custodia-labs/lectern/internal/adapters/driven/vectorstore/redis"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

const (
	// pingTimeout is the maximum time to wait for provider connectivity validation.
	pingTimeout = 5 * time.Second

	// connectTimeout bounds the vector store connection when settings give none.
	connectTimeout = 10 * time.Second
)

// ErrNotConfigured is returned when a provider has no API key.
var ErrNotConfigured = errors.New("provider not configured")

// InitResult holds the adapters built from settings.
type InitResult struct {
	// Vectors is owned by the vector index built on it, which closes it.
	Vectors driven.VectorStoreProvider

	// Embedding and Generator are nil when no API key is configured.
	Embedding driven.EmbeddingProvider
	Generator driven.Generator

	// Warnings are non-fatal issues that disabled part of the pipeline.
	Warnings []string
}

// Close releases the AI providers.
func (r *InitResult) Close() error {
	var errs []error
	if r.Generator != nil {
		errs = append(errs, r.Generator.Close())
	}
	if r.Embedding != nil {
		errs = append(errs, r.Embedding.Close())
	}
	return errors.Join(errs...)
}

// Init connects the vector store and creates the AI providers. A missing
// API key is a warning, not an error: the index still works.
func Init(ctx context.Context, settings *domain.Settings, prompts driven.PromptStore) (*InitResult, error) {
	vectors, err := CreateVectorProvider(ctx, settings.Index)
	if err != nil {
		return nil, err
	}
	result := &InitResult{Vectors: vectors}

	embedding, err := CreateEmbeddingProvider(settings.Embedding)
	switch {
	case errors.Is(err, ErrNotConfigured):
		result.Warnings = append(result.Warnings,
			"no embedding API key configured; ingestion, retrieval and chat are disabled")
		return result, nil
	case err != nil:
		_ = vectors.Close()
		return nil, err
	}
	result.Embedding = embedding

	generator, err := CreateGenerator(settings.Chat, settings.Embedding.APIKey, prompts)
	if err != nil {
		_ = result.Close()
		_ = vectors.Close()
		return nil, err
	}
	result.Generator = generator

	return result, nil
}

// CreateVectorProvider connects the configured vector store.
func CreateVectorProvider(ctx context.Context, idx domain.IndexSettings) (driven.VectorStoreProvider, error) {
	switch idx.Provider {
	case domain.VectorProviderRedis:
		timeout := idx.Timeout
		if timeout <= 0 {
			timeout = connectTimeout
		}
		connectCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		s, err := vectorredis.New(connectCtx, vectorredis.Config{
			Addr:     idx.RedisAddr,
			Password: idx.RedisPassword,
			DB:       idx.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("vector store: %w", err)
		}
		return s, nil

	case domain.VectorProviderMemory, "":
		return vectormemory.New(), nil

	default:
		return nil, fmt.Errorf("%w: unsupported vector provider: %s", domain.ErrValidation, idx.Provider)
	}
}

// CreateEmbeddingProvider creates the OpenAI embedding provider.
// Returns ErrNotConfigured when no API key is set.
func CreateEmbeddingProvider(settings domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("embedding: %w", ErrNotConfigured)
	}
	p, err := openaiembed.NewEmbeddingProvider(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    settings.Timeout,
		Dimensions: settings.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	return p, nil
}

// CreateGenerator creates the OpenAI chat generator. The chat API key
// falls back to fallbackKey, normally the embedding key. Prompts may be nil.
func CreateGenerator(settings domain.ChatSettings, fallbackKey string, prompts driven.PromptStore) (driven.Generator, error) {
	key := chatKey(settings, fallbackKey)
	if key == "" {
		return nil, fmt.Errorf("chat: %w", ErrNotConfigured)
	}
	g, err := openaillm.NewGenerator(openaillm.LLMConfig{
		APIKey:  key,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		Timeout: settings.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("chat generator: %w", err)
	}
	if prompts != nil {
		g.SetPromptStore(prompts)
	}
	return g, nil
}

func chatKey(settings domain.ChatSettings, fallbackKey string) string {
	if settings.APIKey != "" {
		return settings.APIKey
	}
	return fallbackKey
}
