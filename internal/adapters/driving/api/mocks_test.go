package api

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

type mockIngestion struct {
	status    *driving.IngestionStatus
	materials []domain.Material
	err       error

	gotPrincipal domain.Principal
	gotRequest   driving.IngestRequest
	gotMaterial  string
}

func (m *mockIngestion) Ingest(_ context.Context, p domain.Principal, req driving.IngestRequest) (*driving.IngestionStatus, error) {
	m.gotPrincipal, m.gotRequest = p, req
	return m.status, m.err
}

func (m *mockIngestion) Reprocess(_ context.Context, p domain.Principal, id string) (*driving.IngestionStatus, error) {
	m.gotPrincipal, m.gotMaterial = p, id
	return m.status, m.err
}

func (m *mockIngestion) Delete(_ context.Context, p domain.Principal, id string) error {
	m.gotPrincipal, m.gotMaterial = p, id
	return m.err
}

func (m *mockIngestion) Status(_ context.Context, p domain.Principal, id string) (*driving.IngestionStatus, error) {
	m.gotPrincipal, m.gotMaterial = p, id
	return m.status, m.err
}

func (m *mockIngestion) List(_ context.Context, p domain.Principal) ([]domain.Material, error) {
	m.gotPrincipal = p
	return m.materials, m.err
}

type mockRetrieval struct {
	chunks []domain.RetrievedChunk
	err    error

	gotMaterial string
	gotText     string
	gotTopK     int
}

func (m *mockRetrieval) Retrieve(_ context.Context, _ domain.RetrievalQuery) ([]domain.RetrievedChunk, error) {
	return m.chunks, m.err
}

func (m *mockRetrieval) Search(_ context.Context, _ domain.Principal, materialID, text string, topK int) ([]domain.RetrievedChunk, error) {
	m.gotMaterial, m.gotText, m.gotTopK = materialID, text, topK
	return m.chunks, m.err
}

type mockConversation struct {
	conversation *domain.Conversation
	list         []domain.Conversation
	turn         *driving.TurnResult
	messages     []domain.Message
	err          error

	gotID    string
	gotLimit int
	gotText  string
}

func (m *mockConversation) Create(_ context.Context, _ domain.Principal, materialID, _ string) (*domain.Conversation, error) {
	m.gotID = materialID
	return m.conversation, m.err
}

func (m *mockConversation) SendMessage(_ context.Context, _ domain.Principal, id, text string) (*driving.TurnResult, error) {
	m.gotID, m.gotText = id, text
	return m.turn, m.err
}

func (m *mockConversation) Get(_ context.Context, _ domain.Principal, id string) (*domain.Conversation, error) {
	m.gotID = id
	return m.conversation, m.err
}

func (m *mockConversation) List(_ context.Context, _ domain.Principal) ([]domain.Conversation, error) {
	return m.list, m.err
}

func (m *mockConversation) History(_ context.Context, _ domain.Principal, id string, limit int) ([]domain.Message, error) {
	m.gotID, m.gotLimit = id, limit
	return m.messages, m.err
}

func (m *mockConversation) Close(_ context.Context, _ domain.Principal, id string) error {
	m.gotID = id
	return m.err
}

func (m *mockConversation) Delete(_ context.Context, _ domain.Principal, id string) error {
	m.gotID = id
	return m.err
}

type mockIndex struct {
	state domain.IndexState
	stats *domain.IndexStats
	err   error
}

func (m *mockIndex) Initialize(_ context.Context) error { return m.err }

func (m *mockIndex) Upsert(_ context.Context, _ []domain.VectorRecord) (*domain.UpsertResult, error) {
	return &domain.UpsertResult{}, m.err
}

func (m *mockIndex) Query(_ context.Context, _ []float32, _ domain.VectorFilter, _ int) ([]domain.VectorMatch, error) {
	return nil, m.err
}

func (m *mockIndex) DeleteByMaterial(_ context.Context, _, _ string) (int, error) { return 0, m.err }

func (m *mockIndex) Stats(_ context.Context) (*domain.IndexStats, error) { return m.stats, m.err }

func (m *mockIndex) State() domain.IndexState { return m.state }

func (m *mockIndex) Shutdown(_ context.Context) error { return nil }
