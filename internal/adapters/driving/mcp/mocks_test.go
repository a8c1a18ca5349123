package mcp

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

var testPrincipal = domain.Principal{UserID: "student-1", TenantID: "school-1"}

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	chunks []domain.RetrievedChunk
	err    error

	gotPrincipal domain.Principal
	gotTopK      int
}

func (m *mockRetrievalService) Retrieve(_ context.Context, _ domain.RetrievalQuery) ([]domain.RetrievedChunk, error) {
	return m.chunks, m.err
}

func (m *mockRetrievalService) Search(
	_ context.Context,
	principal domain.Principal,
	_, _ string,
	topK int,
) ([]domain.RetrievedChunk, error) {
	m.gotPrincipal = principal
	m.gotTopK = topK
	return m.chunks, m.err
}

// mockConversationService is a mock implementation of driving.ConversationService.
type mockConversationService struct {
	conversation *domain.Conversation
	turn         *driving.TurnResult
	messages     []domain.Message
	createErr    error
	sendErr      error
	err          error

	created      int
	gotMaterial  string
	gotSendConvo string
}

func (m *mockConversationService) Create(
	_ context.Context,
	_ domain.Principal,
	materialID, _ string,
) (*domain.Conversation, error) {
	m.created++
	m.gotMaterial = materialID
	return m.conversation, m.createErr
}

func (m *mockConversationService) SendMessage(
	_ context.Context,
	_ domain.Principal,
	conversationID, _ string,
) (*driving.TurnResult, error) {
	m.gotSendConvo = conversationID
	return m.turn, m.sendErr
}

func (m *mockConversationService) Get(_ context.Context, _ domain.Principal, _ string) (*domain.Conversation, error) {
	return m.conversation, m.err
}

func (m *mockConversationService) List(_ context.Context, _ domain.Principal) ([]domain.Conversation, error) {
	return nil, m.err
}

func (m *mockConversationService) History(
	_ context.Context,
	_ domain.Principal,
	_ string,
	_ int,
) ([]domain.Message, error) {
	return m.messages, m.err
}

func (m *mockConversationService) Close(_ context.Context, _ domain.Principal, _ string) error {
	return m.err
}

func (m *mockConversationService) Delete(_ context.Context, _ domain.Principal, _ string) error {
	return m.err
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	materials []domain.Material
	status    *driving.IngestionStatus
	err       error
}

func (m *mockIngestionService) Ingest(
	_ context.Context,
	_ domain.Principal,
	_ driving.IngestRequest,
) (*driving.IngestionStatus, error) {
	return m.status, m.err
}

func (m *mockIngestionService) Reprocess(
	_ context.Context,
	_ domain.Principal,
	_ string,
) (*driving.IngestionStatus, error) {
	return m.status, m.err
}

func (m *mockIngestionService) Delete(_ context.Context, _ domain.Principal, _ string) error {
	return m.err
}

func (m *mockIngestionService) Status(
	_ context.Context,
	_ domain.Principal,
	_ string,
) (*driving.IngestionStatus, error) {
	return m.status, m.err
}

func (m *mockIngestionService) List(_ context.Context, _ domain.Principal) ([]domain.Material, error) {
	return m.materials, m.err
}
