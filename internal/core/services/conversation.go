package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure ConversationOrchestrator implements the interface.
var _ driving.ConversationService = (*ConversationOrchestrator)(nil)

// ConversationConfig bounds a chat turn.
type ConversationConfig struct {
	// TopK is the number of chunks retrieved per turn.
	TopK int

	// ContextTokenBudget caps the estimated size of the context window.
	ContextTokenBudget int

	// HistoryLimit is the number of prior messages handed to the generator.
	HistoryLimit int

	// MaxAnswerTokens and Temperature are passed to the generator.
	MaxAnswerTokens int
	Temperature     float64

	// Timeout bounds each generator call.
	Timeout time.Duration
}

// ConversationConfigFrom maps chat settings onto a ConversationConfig.
func ConversationConfigFrom(s domain.ChatSettings) ConversationConfig {
	return ConversationConfig{
		TopK:               s.TopK,
		ContextTokenBudget: s.ContextTokenBudget,
		HistoryLimit:       s.HistoryLimit,
		MaxAnswerTokens:    s.MaxAnswerTokens,
		Temperature:        s.Temperature,
		Timeout:            s.Timeout,
	}
}

// ConversationOrchestrator runs grounded chat turns.
type ConversationOrchestrator struct {
	conversations driven.ConversationStore
	materials     driven.MaterialStore
	retrieval     driving.RetrievalService
	generator     driven.Generator
	usage         driven.UsageLimiter
	authz         driven.Authorizer
	cfg           ConversationConfig
	now           func() time.Time
	log           logger.Logger

	// turns serialises turns and state changes per conversation.
	turns conversationLocks
}

// NewConversationOrchestrator creates a conversation orchestrator.
func NewConversationOrchestrator(
	conversations driven.ConversationStore,
	materials driven.MaterialStore,
	retrieval driving.RetrievalService,
	generator driven.Generator,
	usage driven.UsageLimiter,
	authz driven.Authorizer,
	cfg ConversationConfig,
) *ConversationOrchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.ContextTokenBudget <= 0 {
		cfg.ContextTokenBudget = 3000
	}
	return &ConversationOrchestrator{
		conversations: conversations,
		materials:     materials,
		retrieval:     retrieval,
		generator:     generator,
		usage:         usage,
		authz:         authz,
		cfg:           cfg,
		now:           time.Now,
		log:           logger.With("conversation"),
	}
}

// Create opens a conversation for the principal, bound to materialID when
// one is given.
func (o *ConversationOrchestrator) Create(
	ctx context.Context,
	principal domain.Principal,
	materialID, title string,
) (*domain.Conversation, error) {
	if materialID != "" {
		if _, err := o.material(ctx, principal, materialID); err != nil {
			return nil, err
		}
	}

	now := o.now()
	conv := &domain.Conversation{
		ID:           uuid.NewString(),
		UserID:       principal.UserID,
		TenantID:     principal.TenantID,
		MaterialID:   materialID,
		Title:        strings.TrimSpace(title),
		Status:       domain.ConversationCreated,
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := o.authz.CanAccessConversation(ctx, principal, conv); err != nil {
		return nil, err
	}
	if err := o.conversations.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	o.log.Debug("conversation %s created for %s", conv.ID, principal.UserID)
	return conv, nil
}

// SendMessage runs one turn: retrieve, assemble the context window,
// generate, persist both messages and report usage.
//
// The user message is persisted before generation so a failed generator
// call never loses what the user wrote. Quota is never checked up front:
// when the principal is over a usage limit after the turn, the persisted
// turn is returned together with an error wrapping ErrQuotaExceeded.
// Turns on one conversation run one at a time.
func (o *ConversationOrchestrator) SendMessage(
	ctx context.Context,
	principal domain.Principal,
	conversationID, text string,
) (*driving.TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is empty", domain.ErrValidation)
	}

	unlock := o.turns.lock(conversationID)
	defer unlock()

	conv, err := o.conversation(ctx, principal, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationClosed {
		return nil, fmt.Errorf("%w: conversation %s is closed", domain.ErrValidation, conv.ID)
	}

	started := o.now()

	window, err := o.retrieveContext(ctx, principal, conv, text)
	if err != nil {
		return nil, err
	}

	history, err := o.conversations.ListMessages(ctx, conv.ID, o.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	userMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        text,
		CreatedAt:      started,
	}
	if err := o.appendMessage(ctx, conv, userMsg); err != nil {
		return nil, err
	}

	genCtx, cancel := o.withTimeout(ctx)
	defer cancel()
	answer, err := o.generator.Generate(genCtx, driven.GenerationRequest{
		UserText:    text,
		Context:     window,
		History:     history,
		MaxTokens:   o.cfg.MaxAnswerTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generate answer: %w", domain.ErrProvider, err)
	}

	finished := o.now()
	assistantMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        answer.Text,
		ContextChunks:  window.References(),
		TokensUsed:     answer.TokensUsed,
		ResponseTimeMs: finished.Sub(started).Milliseconds(),
		CreatedAt:      finished,
	}
	if err := o.appendMessage(ctx, conv, assistantMsg); err != nil {
		return nil, err
	}

	if err := o.usage.Record(ctx, principal, answer.TokensUsed); err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}
	usage, err := o.usage.Status(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("usage status: %w", err)
	}

	result := &driving.TurnResult{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Context:          window,
		Usage:            usage,
	}

	o.log.Debug("conversation %s: %d context chunks (%d dropped), %d tokens",
		conv.ID, len(window.Chunks), window.Dropped, answer.TokensUsed)

	if usage.Exceeded {
		return result, fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, usage.Reason)
	}
	return result, nil
}

// retrieveContext returns the bounded context window for a turn. A
// conversation not bound to a material has an empty window.
func (o *ConversationOrchestrator) retrieveContext(
	ctx context.Context,
	principal domain.Principal,
	conv *domain.Conversation,
	text string,
) (domain.ContextWindow, error) {
	if conv.MaterialID == "" {
		return domain.ContextWindow{Chunks: []domain.RetrievedChunk{}}, nil
	}

	material, err := o.material(ctx, principal, conv.MaterialID)
	if err != nil {
		return domain.ContextWindow{}, err
	}

	chunks, err := o.retrieval.Retrieve(ctx, domain.RetrievalQuery{
		MaterialID: material.ID,
		TenantID:   material.TenantID,
		Text:       text,
		TopK:       o.cfg.TopK,
	})
	if err != nil {
		return domain.ContextWindow{}, fmt.Errorf("retrieve context: %w", err)
	}
	return AssembleContext(chunks, o.cfg.ContextTokenBudget), nil
}

// AssembleContext orders chunks by descending similarity and keeps the
// longest prefix whose estimated token count fits budget, so the
// lowest-similarity chunks are the ones dropped. A re-ranked score only
// breaks ties between equally similar chunks.
func AssembleContext(chunks []domain.RetrievedChunk, budget int) domain.ContextWindow {
	ranked := make([]domain.RetrievedChunk, len(chunks))
	copy(ranked, chunks)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].Score > ranked[j].Score
	})

	window := domain.ContextWindow{Chunks: make([]domain.RetrievedChunk, 0, len(ranked))}
	for _, c := range ranked {
		tokens := chunkTokens(c)
		if window.TokenCount+tokens > budget {
			break
		}
		window.Chunks = append(window.Chunks, c)
		window.TokenCount += tokens
	}
	window.Dropped = len(ranked) - len(window.Chunks)
	return window
}

func chunkTokens(c domain.RetrievedChunk) int {
	if c.Metadata.TokenCount > 0 {
		return c.Metadata.TokenCount
	}
	return domain.EstimateTokens(c.Metadata.Content)
}

// Get returns a conversation the principal owns.
func (o *ConversationOrchestrator) Get(
	ctx context.Context,
	principal domain.Principal,
	conversationID string,
) (*domain.Conversation, error) {
	return o.conversation(ctx, principal, conversationID)
}

// List returns the principal's conversations within their tenant.
func (o *ConversationOrchestrator) List(ctx context.Context, principal domain.Principal) ([]domain.Conversation, error) {
	if principal.UserID == "" || principal.TenantID == "" {
		return nil, fmt.Errorf("%w: principal is incomplete", domain.ErrUnauthorized)
	}
	all, err := o.conversations.ListConversations(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	result := make([]domain.Conversation, 0, len(all))
	for _, c := range all {
		if c.TenantID == principal.TenantID {
			result = append(result, c)
		}
	}
	return result, nil
}

// History returns up to limit most recent messages, oldest first.
func (o *ConversationOrchestrator) History(
	ctx context.Context,
	principal domain.Principal,
	conversationID string,
	limit int,
) ([]domain.Message, error) {
	conv, err := o.conversation(ctx, principal, conversationID)
	if err != nil {
		return nil, err
	}
	return o.conversations.ListMessages(ctx, conv.ID, limit)
}

// Close moves a conversation to CLOSED. Closing twice is a no-op.
func (o *ConversationOrchestrator) Close(ctx context.Context, principal domain.Principal, conversationID string) error {
	unlock := o.turns.lock(conversationID)
	defer unlock()

	conv, err := o.conversation(ctx, principal, conversationID)
	if err != nil {
		return err
	}
	if conv.Status == domain.ConversationClosed {
		return nil
	}
	conv.Close(o.now())
	if err := o.conversations.SaveConversation(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Delete removes a conversation and its messages.
func (o *ConversationOrchestrator) Delete(ctx context.Context, principal domain.Principal, conversationID string) error {
	unlock := o.turns.lock(conversationID)
	defer unlock()

	conv, err := o.conversation(ctx, principal, conversationID)
	if err != nil {
		return err
	}
	if err := o.conversations.DeleteConversation(ctx, conv.ID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (o *ConversationOrchestrator) conversation(
	ctx context.Context,
	principal domain.Principal,
	conversationID string,
) (*domain.Conversation, error) {
	conv, err := o.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", conversationID, err)
	}
	if err := o.authz.CanAccessConversation(ctx, principal, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (o *ConversationOrchestrator) material(
	ctx context.Context,
	principal domain.Principal,
	materialID string,
) (*domain.Material, error) {
	material, err := o.materials.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("get material %s: %w", materialID, err)
	}
	if err := o.authz.CanAccessMaterial(ctx, principal, material); err != nil {
		return nil, err
	}
	return material, nil
}

// appendMessage persists msg and accounts for it on the conversation.
func (o *ConversationOrchestrator) appendMessage(ctx context.Context, conv *domain.Conversation, msg *domain.Message) error {
	if err := o.conversations.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append %s message: %w", strings.ToLower(string(msg.Role)), err)
	}
	if err := conv.RecordTurn(1, msg.CreatedAt); err != nil {
		return err
	}
	if err := o.conversations.SaveConversation(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (o *ConversationOrchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.Timeout)
}

// conversationLocks hands out one mutex per conversation ID. Entries are
// dropped once nobody holds or waits on them.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	sync.Mutex
	refs int
}

// lock blocks until id is free and returns the matching unlock.
func (l *conversationLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*conversationLock)
	}
	cl, ok := l.locks[id]
	if !ok {
		cl = &conversationLock{}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
