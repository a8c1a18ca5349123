package domain

import (
	"fmt"
	"time"
)

// VectorProvider identifies the backing vector store.
type VectorProvider string

// Available vector providers.
const (
	// VectorProviderMemory keeps vectors in process memory.
	VectorProviderMemory VectorProvider = "memory"

	// VectorProviderRedis uses RediSearch HNSW indexes.
	VectorProviderRedis VectorProvider = "redis"
)

// IsValid returns true if the vector provider is recognised.
func (p VectorProvider) IsValid() bool {
	switch p {
	case VectorProviderMemory, VectorProviderRedis:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the provider.
func (p VectorProvider) Description() string {
	switch p {
	case VectorProviderMemory:
		return "In-memory (single process)"
	case VectorProviderRedis:
		return "Redis (RediSearch)"
	default:
		return "Unknown"
	}
}

// EmbeddingSettings configures the embedding generator and its provider.
type EmbeddingSettings struct {
	APIKey              string
	BaseURL             string
	Model               string
	Dimension           int
	BatchSize           int
	MaxTokensPerRequest int
	RequestsPerSecond   float64
	Burst               int
	Concurrency         int
	Timeout             time.Duration
}

// IndexSettings configures the vector index.
type IndexSettings struct {
	Provider         VectorProvider
	Environment      string
	CollectionPrefix string
	BatchSize        int
	Timeout          time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
}

// CollectionName returns the environment-keyed collection name.
func (s IndexSettings) CollectionName() string {
	return s.CollectionPrefix + "-" + s.Environment
}

// ChatSettings configures the conversation orchestrator and generator.
type ChatSettings struct {
	APIKey             string
	BaseURL            string
	Model              string
	TopK               int
	ContextTokenBudget int
	HistoryLimit       int
	MaxAnswerTokens    int
	Temperature        float64
	Timeout            time.Duration
	HeadingBoost       float64
}

// ChunkingSettings configures the chunk pipeline.
type ChunkingSettings struct {
	ChunkSize int
	Overlap   int

	// Processors names the chunk processors in the order they run. The
	// first must be the chunker, which creates the chunks.
	Processors []string
}

// UsageSettings configures the in-process usage limiter.
type UsageSettings struct {
	DailyTokens    int
	WeeklyMessages int
}

// StorageSettings configures persistence.
type StorageSettings struct {
	DataDir string
	BlobDir string
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Addr string
}

// Settings is the complete application configuration.
type Settings struct {
	Embedding EmbeddingSettings
	Index     IndexSettings
	Chat      ChatSettings
	Chunking  ChunkingSettings
	Usage     UsageSettings
	Storage   StorageSettings
	Server    ServerSettings
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{
		Embedding: EmbeddingSettings{
			Model:               "text-embedding-3-small",
			Dimension:           1536,
			BatchSize:           100,
			MaxTokensPerRequest: 8191,
			RequestsPerSecond:   5,
			Burst:               5,
			Concurrency:         1,
			Timeout:             30 * time.Second,
		},
		Index: IndexSettings{
			Provider:         VectorProviderMemory,
			Environment:      "development",
			CollectionPrefix: "lectern",
			BatchSize:        100,
			Timeout:          15 * time.Second,
			RedisAddr:        "localhost:6379",
		},
		Chat: ChatSettings{
			Model:              "gpt-4o-mini",
			TopK:               5,
			ContextTokenBudget: 3000,
			HistoryLimit:       10,
			MaxAnswerTokens:    800,
			Temperature:        0.2,
			Timeout:            60 * time.Second,
		},
		Chunking: ChunkingSettings{
			ChunkSize:  1000,
			Overlap:    200,
			Processors: []string{"chunker", "annotator"},
		},
		Usage: UsageSettings{
			DailyTokens:    50000,
			WeeklyMessages: 200,
		},
		Server: ServerSettings{
			Addr: ":8080",
		},
	}
}

// Validate checks settings for values the pipeline cannot run with.
func (s *Settings) Validate() error {
	switch {
	case s.Embedding.Dimension <= 0:
		return fmt.Errorf("%w: embedding.dimension must be positive", ErrValidation)
	case s.Embedding.BatchSize <= 0:
		return fmt.Errorf("%w: embedding.batch_size must be positive", ErrValidation)
	case s.Embedding.MaxTokensPerRequest <= 1:
		return fmt.Errorf("%w: embedding.max_tokens_per_request must be greater than 1", ErrValidation)
	case s.Embedding.RequestsPerSecond <= 0:
		return fmt.Errorf("%w: embedding.requests_per_second must be positive", ErrValidation)
	case s.Embedding.Concurrency <= 0:
		return fmt.Errorf("%w: embedding.concurrency must be positive", ErrValidation)
	case s.Embedding.Burst > 0 && s.Embedding.Concurrency > s.Embedding.Burst:
		return fmt.Errorf("%w: embedding.concurrency %d exceeds rate limit burst %d",
			ErrValidation, s.Embedding.Concurrency, s.Embedding.Burst)
	case !s.Index.Provider.IsValid():
		return fmt.Errorf("%w: unknown index.provider %q", ErrValidation, s.Index.Provider)
	case s.Index.Environment == "":
		return fmt.Errorf("%w: index.environment is required", ErrValidation)
	case s.Index.BatchSize <= 0:
		return fmt.Errorf("%w: index.batch_size must be positive", ErrValidation)
	case s.Chat.TopK <= 0:
		return fmt.Errorf("%w: chat.top_k must be positive", ErrValidation)
	case s.Chat.ContextTokenBudget <= 0:
		return fmt.Errorf("%w: chat.context_token_budget must be positive", ErrValidation)
	case s.Chunking.ChunkSize <= 0:
		return fmt.Errorf("%w: chunking.chunk_size must be positive", ErrValidation)
	case len(s.Chunking.Processors) == 0 || s.Chunking.Processors[0] != "chunker":
		return fmt.Errorf("%w: chunking.processors must start with chunker", ErrValidation)
	}
	return nil
}
