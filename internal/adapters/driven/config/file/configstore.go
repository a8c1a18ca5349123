package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure SettingsStore implements the interface.
var _ driven.SettingsStore = (*SettingsStore)(nil)

// ConfigFileName is the settings file inside the config directory.
const ConfigFileName = "lectern.toml"

// SettingsStore is a file-based implementation of driven.SettingsStore using TOML.
// Environment variables are applied on top of the file on every Load.
type SettingsStore struct {
	mu       sync.RWMutex
	filePath string
	lookup   func(string) (string, bool)
}

// NewSettingsStore creates a new TOML-based settings store.
// If configDir is empty, defaults to ~/.lectern/lectern.toml.
func NewSettingsStore(configDir string) (*SettingsStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".lectern")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	return &SettingsStore{
		filePath: filepath.Join(configDir, ConfigFileName),
		lookup:   os.LookupEnv,
	}, nil
}

// LoadEnvFile loads variables from a .env file into the process
// environment. A missing file is not an error. Variables already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the TOML file over the defaults, applies environment
// overrides and validates the result.
func (s *SettingsStore) Load() (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file := toFile(domain.DefaultSettings())

	data, err := os.ReadFile(s.filePath)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrValidation, s.filePath, err)
		}
	case os.IsNotExist(err):
		// No config file yet - defaults apply
	default:
		return nil, err
	}

	settings, err := file.toDomain()
	if err != nil {
		return nil, err
	}
	if err := applyEnv(settings, s.lookup); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Save persists the given settings. API keys are never written to disk.
func (s *SettingsStore) Save(settings *domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	file := toFile(*settings)
	file.Embedding.APIKey = ""
	file.Chat.APIKey = ""
	file.Index.RedisPassword = ""

	data, err := toml.Marshal(file)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Path returns the configuration file path.
func (s *SettingsStore) Path() string {
	return s.filePath
}

// fileSettings mirrors domain.Settings with TOML keys and string durations.
type fileSettings struct {
	Embedding embeddingFile `toml:"embedding"`
	Index     indexFile     `toml:"index"`
	Chat      chatFile      `toml:"chat"`
	Chunking  chunkingFile  `toml:"chunking"`
	Usage     usageFile     `toml:"usage"`
	Storage   storageFile   `toml:"storage"`
	Server    serverFile    `toml:"server"`
}

type embeddingFile struct {
	APIKey              string  `toml:"api_key,omitempty"`
	BaseURL             string  `toml:"base_url,omitempty"`
	Model               string  `toml:"model"`
	Dimension           int     `toml:"dimension"`
	BatchSize           int     `toml:"batch_size"`
	MaxTokensPerRequest int     `toml:"max_tokens_per_request"`
	RequestsPerSecond   float64 `toml:"requests_per_second"`
	Burst               int     `toml:"burst"`
	Concurrency         int     `toml:"concurrency"`
	Timeout             string  `toml:"timeout"`
}

type indexFile struct {
	Provider         string `toml:"provider"`
	Environment      string `toml:"environment"`
	CollectionPrefix string `toml:"collection_prefix"`
	BatchSize        int    `toml:"batch_size"`
	Timeout          string `toml:"timeout"`
	RedisAddr        string `toml:"redis_addr"`
	RedisPassword    string `toml:"redis_password,omitempty"`
	RedisDB          int    `toml:"redis_db"`
}

type chatFile struct {
	APIKey             string  `toml:"api_key,omitempty"`
	BaseURL            string  `toml:"base_url,omitempty"`
	Model              string  `toml:"model"`
	TopK               int     `toml:"top_k"`
	ContextTokenBudget int     `toml:"context_token_budget"`
	HistoryLimit       int     `toml:"history_limit"`
	MaxAnswerTokens    int     `toml:"max_answer_tokens"`
	Temperature        float64 `toml:"temperature"`
	Timeout            string  `toml:"timeout"`
	HeadingBoost       float64 `toml:"heading_boost"`
}

type chunkingFile struct {
	ChunkSize  int      `toml:"chunk_size"`
	Overlap    int      `toml:"overlap"`
	Processors []string `toml:"processors"`
}

type usageFile struct {
	DailyTokens    int `toml:"daily_tokens"`
	WeeklyMessages int `toml:"weekly_messages"`
}

type storageFile struct {
	DataDir string `toml:"data_dir,omitempty"`
	BlobDir string `toml:"blob_dir,omitempty"`
}

type serverFile struct {
	Addr string `toml:"addr"`
}

func toFile(s domain.Settings) fileSettings {
	return fileSettings{
		Embedding: embeddingFile{
			APIKey:              s.Embedding.APIKey,
			BaseURL:             s.Embedding.BaseURL,
			Model:               s.Embedding.Model,
			Dimension:           s.Embedding.Dimension,
			BatchSize:           s.Embedding.BatchSize,
			MaxTokensPerRequest: s.Embedding.MaxTokensPerRequest,
			RequestsPerSecond:   s.Embedding.RequestsPerSecond,
			Burst:               s.Embedding.Burst,
			Concurrency:         s.Embedding.Concurrency,
			Timeout:             s.Embedding.Timeout.String(),
		},
		Index: indexFile{
			Provider:         string(s.Index.Provider),
			Environment:      s.Index.Environment,
			CollectionPrefix: s.Index.CollectionPrefix,
			BatchSize:        s.Index.BatchSize,
			Timeout:          s.Index.Timeout.String(),
			RedisAddr:        s.Index.RedisAddr,
			RedisPassword:    s.Index.RedisPassword,
			RedisDB:          s.Index.RedisDB,
		},
		Chat: chatFile{
			APIKey:             s.Chat.APIKey,
			BaseURL:            s.Chat.BaseURL,
			Model:              s.Chat.Model,
			TopK:               s.Chat.TopK,
			ContextTokenBudget: s.Chat.ContextTokenBudget,
			HistoryLimit:       s.Chat.HistoryLimit,
			MaxAnswerTokens:    s.Chat.MaxAnswerTokens,
			Temperature:        s.Chat.Temperature,
			Timeout:            s.Chat.Timeout.String(),
			HeadingBoost:       s.Chat.HeadingBoost,
		},
		Chunking: chunkingFile{
			ChunkSize:  s.Chunking.ChunkSize,
			Overlap:    s.Chunking.Overlap,
			Processors: s.Chunking.Processors,
		},
		Usage:    usageFile{DailyTokens: s.Usage.DailyTokens, WeeklyMessages: s.Usage.WeeklyMessages},
		Storage:  storageFile{DataDir: s.Storage.DataDir, BlobDir: s.Storage.BlobDir},
		Server:   serverFile{Addr: s.Server.Addr},
	}
}

func (f fileSettings) toDomain() (*domain.Settings, error) {
	embedTimeout, err := parseDuration("embedding.timeout", f.Embedding.Timeout)
	if err != nil {
		return nil, err
	}
	indexTimeout, err := parseDuration("index.timeout", f.Index.Timeout)
	if err != nil {
		return nil, err
	}
	chatTimeout, err := parseDuration("chat.timeout", f.Chat.Timeout)
	if err != nil {
		return nil, err
	}

	return &domain.Settings{
		Embedding: domain.EmbeddingSettings{
			APIKey:              f.Embedding.APIKey,
			BaseURL:             f.Embedding.BaseURL,
			Model:               f.Embedding.Model,
			Dimension:           f.Embedding.Dimension,
			BatchSize:           f.Embedding.BatchSize,
			MaxTokensPerRequest: f.Embedding.MaxTokensPerRequest,
			RequestsPerSecond:   f.Embedding.RequestsPerSecond,
			Burst:               f.Embedding.Burst,
			Concurrency:         f.Embedding.Concurrency,
			Timeout:             embedTimeout,
		},
		Index: domain.IndexSettings{
			Provider:         domain.VectorProvider(f.Index.Provider),
			Environment:      f.Index.Environment,
			CollectionPrefix: f.Index.CollectionPrefix,
			BatchSize:        f.Index.BatchSize,
			Timeout:          indexTimeout,
			RedisAddr:        f.Index.RedisAddr,
			RedisPassword:    f.Index.RedisPassword,
			RedisDB:          f.Index.RedisDB,
		},
		Chat: domain.ChatSettings{
			APIKey:             f.Chat.APIKey,
			BaseURL:            f.Chat.BaseURL,
			Model:              f.Chat.Model,
			TopK:               f.Chat.TopK,
			ContextTokenBudget: f.Chat.ContextTokenBudget,
			HistoryLimit:       f.Chat.HistoryLimit,
			MaxAnswerTokens:    f.Chat.MaxAnswerTokens,
			Temperature:        f.Chat.Temperature,
			Timeout:            chatTimeout,
			HeadingBoost:       f.Chat.HeadingBoost,
		},
		Chunking: domain.ChunkingSettings{
			ChunkSize:  f.Chunking.ChunkSize,
			Overlap:    f.Chunking.Overlap,
			Processors: f.Chunking.Processors,
		},
		Usage:    domain.UsageSettings{DailyTokens: f.Usage.DailyTokens, WeeklyMessages: f.Usage.WeeklyMessages},
		Storage:  domain.StorageSettings{DataDir: f.Storage.DataDir, BlobDir: f.Storage.BlobDir},
		Server:   domain.ServerSettings{Addr: f.Server.Addr},
	}, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrValidation, key, err)
	}
	return d, nil
}

// applyEnv overlays environment variables on the loaded settings.
func applyEnv(s *domain.Settings, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrValidation, key, err)
		}
		*dst = n
		return nil
	}

	str("OPENAI_API_KEY", &s.Embedding.APIKey)
	str("OPENAI_API_KEY", &s.Chat.APIKey)
	str("LECTERN_EMBEDDING_MODEL", &s.Embedding.Model)
	str("LECTERN_CHAT_MODEL", &s.Chat.Model)
	str("LECTERN_INDEX_ENVIRONMENT", &s.Index.Environment)
	str("REDIS_ADDR", &s.Index.RedisAddr)
	str("LECTERN_REDIS_PASSWORD", &s.Index.RedisPassword)
	str("LECTERN_DATA_DIR", &s.Storage.DataDir)
	str("LECTERN_BLOB_DIR", &s.Storage.BlobDir)
	str("LECTERN_SERVER_ADDR", &s.Server.Addr)

	if v, ok := lookup("LECTERN_INDEX_PROVIDER"); ok && v != "" {
		s.Index.Provider = domain.VectorProvider(v)
	}

	for key, dst := range map[string]*int{
		"LECTERN_EMBEDDING_DIMENSION":   &s.Embedding.Dimension,
		"LECTERN_EMBEDDING_CONCURRENCY": &s.Embedding.Concurrency,
		"LECTERN_CHAT_TOP_K":            &s.Chat.TopK,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}
