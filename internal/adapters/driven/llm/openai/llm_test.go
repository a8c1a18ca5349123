package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

type chatCall struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

const chatResponse = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "gpt-4o-mini",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Osmosis moves water. [1]  "}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 90, "completion_tokens": 10, "total_tokens": 100}
}`

type stubPrompts map[string]string

func (p stubPrompts) Load(name string) (string, error) {
	if v, ok := p[name]; ok {
		return v, nil
	}
	return "", errors.New("missing")
}

func (p stubPrompts) Reload() {}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGenerator(LLMConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	return g
}

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(LLMConfig{})
	assert.Error(t, err)

	g, err := NewGenerator(LLMConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultLLMModel, g.ModelName())
	assert.NoError(t, g.Close())
}

func TestGenerator_Generate(t *testing.T) {
	page := 3
	var got chatCall
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse))
	})

	res, err := g.Generate(context.Background(), driven.GenerationRequest{
		UserText: "what is osmosis?",
		Context: domain.ContextWindow{Chunks: []domain.RetrievedChunk{{
			ChunkID: "c1",
			Metadata: domain.VectorMetadata{
				Content:      "Osmosis is the movement of water across a membrane.",
				PageNumber:   &page,
				SectionTitle: "Cells",
			},
		}}},
		History: []domain.Message{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello"},
		},
		MaxTokens:   200,
		Temperature: 0.5,
	})

	require.NoError(t, err)
	assert.Equal(t, "Osmosis moves water. [1]", res.Text)
	assert.Equal(t, 100, res.TokensUsed)

	assert.Equal(t, DefaultLLMModel, got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	assert.InDelta(t, 0.5, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "[1] (page 3) Cells:\nOsmosis is the movement")
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "user", got.Messages[3].Role)
	assert.Equal(t, "what is osmosis?", got.Messages[3].Content)
}

func TestGenerator_Generate_UsesPromptStore(t *testing.T) {
	var got chatCall
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(chatResponse))
	})
	g.SetPromptStore(stubPrompts{
		driven.PromptTutorSystem: "Tutor. Excerpts: %s",
		driven.PromptNoContext:   "NONE",
	})

	_, err := g.Generate(context.Background(), driven.GenerationRequest{UserText: "q"})

	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Tutor. Excerpts: NONE", got.Messages[0].Content)
}

func TestGenerator_Generate_NoChoices(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [], "usage": {"total_tokens": 0}}`))
	})

	_, err := g.Generate(context.Background(), driven.GenerationRequest{UserText: "q"})

	assert.ErrorContains(t, err, "no response choices")
}

func TestGenerator_Generate_RateLimited(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "requests"}}`))
	})

	_, err := g.Generate(context.Background(), driven.GenerationRequest{UserText: "q"})

	require.Error(t, err)
	_, ok := driven.IsRateLimited(err)
	assert.True(t, ok)
}

func TestFormatExcerpts_Empty(t *testing.T) {
	assert.Empty(t, formatExcerpts(domain.ContextWindow{}))
}
