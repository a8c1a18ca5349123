package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/authz"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lectern/internal/adapters/driven/usage"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// --- Mock generator ---

type mockGenerator struct {
	mu       sync.Mutex
	answer   string
	tokens   int
	err      error
	requests []driven.GenerationRequest
}

func (m *mockGenerator) Generate(_ context.Context, req driven.GenerationRequest) (*driven.GenerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &driven.GenerationResult{Text: m.answer, TokensUsed: m.tokens}, nil
}

func (m *mockGenerator) ModelName() string { return "mock-chat" }
func (m *mockGenerator) Close() error      { return nil }

var student = domain.Principal{UserID: "student-1", TenantID: "s1"}

type conversationFixture struct {
	*retrievalFixture
	conversations *memory.ConversationStore
	generator     *mockGenerator
	orchestrator  *ConversationOrchestrator
}

func newConversationFixture(t *testing.T, limits usage.Limits, cfg ConversationConfig) *conversationFixture {
	t.Helper()
	rf := newRetrievalFixture(t)
	require.NoError(t, rf.materials.SaveMaterial(context.Background(), &domain.Material{ID: "m1", TenantID: "s1"}))

	conversations := memory.NewConversationStore()
	generator := &mockGenerator{answer: "Osmosis is the movement of water.", tokens: 42}
	return &conversationFixture{
		retrievalFixture: rf,
		conversations:    conversations,
		generator:        generator,
		orchestrator: NewConversationOrchestrator(conversations, rf.materials, rf.engine, generator,
			usage.NewLimiter(limits), authz.NewTenantAuthorizer(), cfg),
	}
}

func defaultChatConfig() ConversationConfig {
	return ConversationConfig{TopK: 3, ContextTokenBudget: 100, HistoryLimit: 10, Timeout: time.Second}
}

// --- Create ---

func TestConversationOrchestrator_Create(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	ctx := context.Background()

	conv, err := f.orchestrator.Create(ctx, student, "m1", "  Osmosis  ")

	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, domain.ConversationCreated, conv.Status)
	assert.Equal(t, "Osmosis", conv.Title)
	assert.Equal(t, "s1", conv.TenantID)

	stored, err := f.orchestrator.Get(ctx, student, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, stored.ID)
}

func TestConversationOrchestrator_Create_Errors(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	ctx := context.Background()

	_, err := f.orchestrator.Create(ctx, student, "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.orchestrator.Create(ctx, domain.Principal{UserID: "u", TenantID: "s2"}, "m1", "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.orchestrator.Create(ctx, domain.Principal{TenantID: "s1"}, "", "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// --- SendMessage ---

func TestConversationOrchestrator_SendMessage(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	ctx := context.Background()
	f.provider.vectors["what is osmosis"] = []float32{0, 1, 0}
	f.seed(t,
		testRecord("c1", "s1", "m1", 1, 0, 0),
		testRecord("c2", "s1", "m1", 0.1, 1, 0),
		testRecord("c3", "s1", "m1", 0.5, 0.5, 0),
	)
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)

	turn, err := f.orchestrator.SendMessage(ctx, student, conv.ID, "what is osmosis")

	require.NoError(t, err)
	assert.Equal(t, domain.ConversationActive, turn.Conversation.Status)
	assert.Equal(t, 2, turn.Conversation.TotalMessages)
	assert.Equal(t, domain.RoleUser, turn.UserMessage.Role)
	assert.Equal(t, domain.RoleAssistant, turn.AssistantMessage.Role)
	assert.Equal(t, "Osmosis is the movement of water.", turn.AssistantMessage.Content)
	assert.Equal(t, 42, turn.AssistantMessage.TokensUsed)
	assert.Equal(t, 42, turn.Usage.TokensUsedToday)
	assert.Equal(t, 1, turn.Usage.MessagesThisWeek)

	refs := turn.AssistantMessage.ContextChunks
	require.Len(t, refs, 3)
	assert.Equal(t, "c2", refs[0].ChunkID)
	for i := 1; i < len(refs); i++ {
		assert.GreaterOrEqual(t, refs[i-1].Similarity, refs[i].Similarity)
	}

	require.Len(t, f.generator.requests, 1)
	req := f.generator.requests[0]
	assert.Equal(t, "what is osmosis", req.UserText)
	assert.Len(t, req.Context.Chunks, 3)
	assert.Empty(t, req.History)

	history, err := f.orchestrator.History(ctx, student, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
}

func TestConversationOrchestrator_SendMessage_PassesHistory(t *testing.T) {
	cfg := defaultChatConfig()
	cfg.HistoryLimit = 3
	f := newConversationFixture(t, usage.Limits{}, cfg)
	ctx := context.Background()
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.orchestrator.SendMessage(ctx, student, conv.ID, text)
		require.NoError(t, err)
	}

	last := f.generator.requests[2]
	require.Len(t, last.History, 3)
	assert.Equal(t, domain.RoleAssistant, last.History[0].Role)
	assert.Equal(t, "two", last.History[1].Content)
}

func TestConversationOrchestrator_SendMessage_UnboundConversation(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	ctx := context.Background()
	conv, err := f.orchestrator.Create(ctx, student, "", "General")
	require.NoError(t, err)

	turn, err := f.orchestrator.SendMessage(ctx, student, conv.ID, "hello")

	require.NoError(t, err)
	assert.Empty(t, turn.Context.Chunks)
	assert.Empty(t, turn.AssistantMessage.ContextChunks)
	assert.Zero(t, f.provider.calls)
}

func TestConversationOrchestrator_SendMessage_Validation(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	ctx := context.Background()
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)

	_, err = f.orchestrator.SendMessage(ctx, student, conv.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.orchestrator.SendMessage(ctx, student, "missing", "hi")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.orchestrator.SendMessage(ctx, domain.Principal{UserID: "student-2", TenantID: "s1"}, conv.ID, "hi")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Empty(t, f.generator.requests)
}

func TestConversationOrchestrator_SendMessage_ClosedConversation(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	ctx := context.Background()
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)

	require.NoError(t, f.orchestrator.Close(ctx, student, conv.ID))
	require.NoError(t, f.orchestrator.Close(ctx, student, conv.ID))

	_, err = f.orchestrator.SendMessage(ctx, student, conv.ID, "hi")
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, err := f.orchestrator.Get(ctx, student, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationClosed, stored.Status)
}

func TestConversationOrchestrator_SendMessage_GeneratorFailureKeepsUserMessage(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	f.generator.err = errors.New("upstream 500")
	ctx := context.Background()
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)

	_, err = f.orchestrator.SendMessage(ctx, student, conv.ID, "hi")

	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.True(t, domain.IsRetryable(err))
	history, err := f.orchestrator.History(ctx, student, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleUser, history[0].Role)
}

func TestConversationOrchestrator_SendMessage_QuotaExceeded(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{DailyTokens: 40}, defaultChatConfig())
	ctx := context.Background()
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)

	turn, err := f.orchestrator.SendMessage(ctx, student, conv.ID, "hi")

	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	require.NotNil(t, turn, "the turn that crosses the limit is still returned")
	assert.True(t, turn.Usage.Exceeded)
	assert.NotNil(t, turn.AssistantMessage)

	history, err := f.orchestrator.History(ctx, student, conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	turn, err = f.orchestrator.SendMessage(ctx, student, conv.ID, "again")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	require.NotNil(t, turn, "a turn sent while over quota is persisted, not dropped")
	assert.Equal(t, "again", turn.UserMessage.Content)
	assert.True(t, turn.Usage.Exceeded)
	assert.Len(t, f.generator.requests, 2)

	history, err = f.orchestrator.History(ctx, student, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "again", history[2].Content)
	assert.Equal(t, domain.RoleAssistant, history[3].Role)
}

func TestConversationOrchestrator_SendMessage_ConcurrentTurnsKeepCounts(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	ctx := context.Background()
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)

	const turns = 8
	var wg sync.WaitGroup
	errs := make([]error, turns)
	for i := range turns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orchestrator.SendMessage(ctx, student, conv.ID, "hi")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	stored, err := f.orchestrator.Get(ctx, student, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*turns, stored.TotalMessages)
	history, err := f.orchestrator.History(ctx, student, conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2*turns)
	assert.Empty(t, f.orchestrator.turns.locks, "idle conversations hold no lock entries")
}

// --- Context assembly ---

func retrieved(id string, similarity float64, tokens int) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		ChunkID:    id,
		Similarity: similarity,
		Score:      similarity,
		Metadata:   domain.VectorMetadata{TokenCount: tokens},
	}
}

func TestAssembleContext(t *testing.T) {
	chunks := []domain.RetrievedChunk{
		retrieved("a", 0.9, 10),
		retrieved("b", 0.5, 10),
		retrieved("c", 0.7, 10),
	}

	tests := []struct {
		name    string
		budget  int
		want    []string
		tokens  int
		dropped int
	}{
		{"all fit", 30, []string{"a", "c", "b"}, 30, 0},
		{"lowest dropped first", 25, []string{"a", "c"}, 20, 1},
		{"nothing fits", 5, []string{}, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := AssembleContext(chunks, tt.budget)

			ids := make([]string, len(window.Chunks))
			for i, c := range window.Chunks {
				ids[i] = c.ChunkID
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, tt.tokens, window.TokenCount)
			assert.Equal(t, tt.dropped, window.Dropped)
			assert.LessOrEqual(t, window.TokenCount, tt.budget)
		})
	}
}

func TestAssembleContext_OrdersBySimilarityNotScore(t *testing.T) {
	boosted := retrieved("heading", 0.4, 10)
	boosted.Score = 0.95
	tied := retrieved("tied", 0.6, 10)
	tied.Score = 0.1
	chunks := []domain.RetrievedChunk{
		boosted,
		retrieved("close", 0.8, 10),
		tied,
		retrieved("tied-boosted", 0.6, 10),
	}

	window := AssembleContext(chunks, 30)

	ids := make([]string, len(window.Chunks))
	for i, c := range window.Chunks {
		ids[i] = c.ChunkID
	}
	assert.Equal(t, []string{"close", "tied-boosted", "tied"}, ids, "score only breaks similarity ties")
	assert.Equal(t, 1, window.Dropped)
}

func TestAssembleContext_EstimatesMissingTokenCounts(t *testing.T) {
	c := retrieved("a", 0.9, 0)
	c.Metadata.Content = "twelve chars"

	window := AssembleContext([]domain.RetrievedChunk{c}, 100)

	assert.Equal(t, 3, window.TokenCount)
}

func TestConversationOrchestrator_SendMessage_RespectsBudget(t *testing.T) {
	cfg := defaultChatConfig()
	cfg.ContextTokenBudget = 4
	f := newConversationFixture(t, usage.Limits{}, cfg)
	ctx := context.Background()
	f.provider.vectors["q"] = []float32{1, 0, 0}
	f.seed(t,
		testRecord("c1", "s1", "m1", 1, 0, 0),
		testRecord("c2", "s1", "m1", 1, 1, 0),
		testRecord("c3", "s1", "m1", 0, 1, 0),
	)
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)

	turn, err := f.orchestrator.SendMessage(ctx, student, conv.ID, "q")

	require.NoError(t, err)
	// Each "chunk cN" content estimates to 2 tokens.
	require.Len(t, turn.Context.Chunks, 2)
	assert.Equal(t, "c1", turn.Context.Chunks[0].ChunkID)
	assert.Equal(t, "c2", turn.Context.Chunks[1].ChunkID)
	assert.Equal(t, 1, turn.Context.Dropped)
}

// --- Lifecycle ---

func TestConversationOrchestrator_ListAndDelete(t *testing.T) {
	f := newConversationFixture(t, usage.Limits{}, defaultChatConfig())
	ctx := context.Background()
	conv, err := f.orchestrator.Create(ctx, student, "m1", "")
	require.NoError(t, err)
	_, err = f.orchestrator.SendMessage(ctx, student, conv.ID, "hi")
	require.NoError(t, err)

	list, err := f.orchestrator.List(ctx, student)
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.ErrorIs(t, f.orchestrator.Delete(ctx, domain.Principal{UserID: "x", TenantID: "s1"}, conv.ID), domain.ErrUnauthorized)
	require.NoError(t, f.orchestrator.Delete(ctx, student, conv.ID))

	_, err = f.orchestrator.History(ctx, student, conv.ID, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	messages, err := f.conversations.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
