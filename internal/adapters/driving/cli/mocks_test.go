package cli

import (
	"bytes"
	"context"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/core/services"
)

type mockIngestion struct {
	status    *driving.IngestionStatus
	materials []domain.Material
	err       error

	gotPrincipal domain.Principal
	gotRequest   driving.IngestRequest
	gotMaterial  string
	ingested     []string
}

func (m *mockIngestion) Ingest(_ context.Context, p domain.Principal, req driving.IngestRequest) (*driving.IngestionStatus, error) {
	m.gotPrincipal, m.gotRequest = p, req
	m.ingested = append(m.ingested, req.MaterialID)
	if m.err != nil {
		return nil, m.err
	}
	return m.status, nil
}

func (m *mockIngestion) Reprocess(_ context.Context, p domain.Principal, id string) (*driving.IngestionStatus, error) {
	m.gotPrincipal, m.gotMaterial = p, id
	if m.err != nil {
		return nil, m.err
	}
	return m.status, nil
}

func (m *mockIngestion) Delete(_ context.Context, p domain.Principal, id string) error {
	m.gotPrincipal, m.gotMaterial = p, id
	return m.err
}

func (m *mockIngestion) Status(_ context.Context, p domain.Principal, id string) (*driving.IngestionStatus, error) {
	m.gotPrincipal, m.gotMaterial = p, id
	if m.err != nil {
		return nil, m.err
	}
	return m.status, nil
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

func (m *mockRetrieval) Retrieve(_ context.Context, q domain.RetrievalQuery) ([]domain.RetrievedChunk, error) {
	m.gotMaterial, m.gotText, m.gotTopK = q.MaterialID, q.Text, q.TopK
	return m.chunks, m.err
}

func (m *mockRetrieval) Search(_ context.Context, _ domain.Principal, materialID, text string, topK int) ([]domain.RetrievedChunk, error) {
	m.gotMaterial, m.gotText, m.gotTopK = materialID, text, topK
	return m.chunks, m.err
}

type mockConversation struct {
	turn    *driving.TurnResult
	sendErr error
	convs   []domain.Conversation
	history []domain.Message
	err     error

	created  []string
	sent     []string
	gotConv  string
	gotLimit int
}

func (m *mockConversation) Create(_ context.Context, p domain.Principal, materialID, title string) (*domain.Conversation, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, materialID)
	return &domain.Conversation{
		ID: "conv-1", UserID: p.UserID, TenantID: p.TenantID,
		MaterialID: materialID, Title: title, Status: domain.ConversationCreated,
	}, nil
}

func (m *mockConversation) SendMessage(_ context.Context, _ domain.Principal, convID, text string) (*driving.TurnResult, error) {
	m.gotConv = convID
	m.sent = append(m.sent, text)
	return m.turn, m.sendErr
}

func (m *mockConversation) Get(_ context.Context, _ domain.Principal, convID string) (*domain.Conversation, error) {
	m.gotConv = convID
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Conversation{ID: convID}, nil
}

func (m *mockConversation) List(_ context.Context, _ domain.Principal) ([]domain.Conversation, error) {
	return m.convs, m.err
}

func (m *mockConversation) History(_ context.Context, _ domain.Principal, convID string, limit int) ([]domain.Message, error) {
	m.gotConv, m.gotLimit = convID, limit
	return m.history, m.err
}

func (m *mockConversation) Close(_ context.Context, _ domain.Principal, convID string) error {
	m.gotConv = convID
	return m.err
}

func (m *mockConversation) Delete(_ context.Context, _ domain.Principal, convID string) error {
	m.gotConv = convID
	return m.err
}

type mockIndex struct {
	state   domain.IndexState
	stats   *domain.IndexStats
	initErr error

	initCalls int
}

func (m *mockIndex) Initialize(_ context.Context) error {
	m.initCalls++
	if m.initErr != nil {
		return m.initErr
	}
	m.state = domain.IndexReady
	return nil
}

func (m *mockIndex) Upsert(_ context.Context, _ []domain.VectorRecord) (*domain.UpsertResult, error) {
	return &domain.UpsertResult{}, nil
}

func (m *mockIndex) Query(_ context.Context, _ []float32, _ domain.VectorFilter, _ int) ([]domain.VectorMatch, error) {
	return nil, nil
}

func (m *mockIndex) DeleteByMaterial(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockIndex) Stats(_ context.Context) (*domain.IndexStats, error) {
	s := *m.stats
	s.State = m.state
	return &s, nil
}

func (m *mockIndex) State() domain.IndexState {
	return m.state
}

func (m *mockIndex) Shutdown(_ context.Context) error {
	return nil
}

// testServices holds the fakes injected by setupTestServices.
type testServices struct {
	ingestion    *mockIngestion
	retrieval    *mockRetrieval
	conversation *mockConversation
	index        *mockIndex
	settings     driving.SettingsService
}

func newTestServices() *testServices {
	page := 2
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	chunks := []domain.RetrievedChunk{{
		ChunkID: "bio:0", Similarity: 0.91, Score: 0.91,
		Metadata: domain.VectorMetadata{
			TenantID: "school-1", MaterialID: "bio", SectionTitle: "Cells",
			PageNumber: &page, Content: "Osmosis is the movement of water\nacross a membrane.",
		},
	}}

	return &testServices{
		ingestion: &mockIngestion{
			status: &driving.IngestionStatus{
				MaterialID: "bio",
				Record: &domain.ProcessingRecord{
					MaterialID: "bio", Status: domain.StatusCompleted,
					TotalChunks: 3, ProcessedChunks: 3, EmbeddingModel: "text-embedding-3-small",
				},
			},
			materials: []domain.Material{{ID: "bio", TenantID: "school-1", Title: "Biology", ContentType: "text/plain"}},
		},
		retrieval: &mockRetrieval{chunks: chunks},
		conversation: &mockConversation{
			turn: &driving.TurnResult{
				Conversation:     &domain.Conversation{ID: "conv-1"},
				AssistantMessage: &domain.Message{Role: domain.RoleAssistant, Content: "Water moves across the membrane. [1]"},
				Context:          domain.ContextWindow{Chunks: chunks},
				Usage:            &domain.UsageStatus{TokensUsedToday: 120, DailyTokenLimit: 50000},
			},
			convs: []domain.Conversation{{
				ID: "conv-1", MaterialID: "bio", Title: "Osmosis", Status: domain.ConversationActive,
				TotalMessages: 2, LastActivity: now,
			}},
			history: []domain.Message{
				{Role: domain.RoleUser, Content: "what is osmosis?"},
				{Role: domain.RoleAssistant, Content: "Water moves. [1]"},
			},
		},
		index: &mockIndex{
			state: domain.IndexUninitialized,
			stats: &domain.IndexStats{Collection: "lectern-development", Dimension: 1536, Metric: domain.MetricCosine, RecordCount: 42},
		},
		settings: services.NewSettingsService(memory.NewSettingsStore()),
	}
}

// setupTestServices injects fakes, acts as student-1 in school-1 and
// returns the fakes with a cleanup that restores the package state.
func setupTestServices() (*testServices, func()) {
	ts := newTestServices()
	SetServices(Services{
		Ingestion:    ts.ingestion,
		Retrieval:    ts.retrieval,
		Conversation: ts.conversation,
		Index:        ts.index,
		Settings:     ts.settings,
	})
	userID, tenantID = "student-1", "school-1"

	return ts, func() {
		SetServices(Services{})
		resetFlags()
	}
}

// resetFlags restores flag variables, which persist between executions.
func resetFlags() {
	verbose = false
	userID, tenantID = "", ""
	ingestID, ingestTitle, ingestContentType = "", "", ""
	retrieveTopK, retrieveJSON = 5, false
	chatConversationID, chatMessage, chatTitle = "", "", ""
	chatTUI = false
	historyLimit = 50
	serveAddr, serveMCP, serveMCPAddr = "", false, ""
	configForce = false
	watchOnce = false
}

// run executes the root command with args and returns its output.
func run(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

// runWithInput is run with stdin set to input.
func runWithInput(input string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(bytes.NewBufferString(input))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}
