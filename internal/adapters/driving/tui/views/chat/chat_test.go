package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

type fakeConversations struct {
	conv    *domain.Conversation
	history []domain.Message
	turn    *driving.TurnResult
	turnErr error
	err     error

	created string
	sent    string
}

func (f *fakeConversations) Create(_ context.Context, _ domain.Principal, materialID, title string) (*domain.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = materialID
	return &domain.Conversation{ID: "conv-1", MaterialID: materialID, Title: title, Status: domain.ConversationCreated}, nil
}

func (f *fakeConversations) SendMessage(_ context.Context, _ domain.Principal, _, text string) (*driving.TurnResult, error) {
	f.sent = text
	return f.turn, f.turnErr
}

func (f *fakeConversations) Get(_ context.Context, _ domain.Principal, id string) (*domain.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.conv == nil || f.conv.ID != id {
		return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, id)
	}
	return f.conv, nil
}

func (f *fakeConversations) List(context.Context, domain.Principal) ([]domain.Conversation, error) {
	return nil, nil
}

func (f *fakeConversations) History(context.Context, domain.Principal, string, int) ([]domain.Message, error) {
	return f.history, nil
}

func (f *fakeConversations) Close(context.Context, domain.Principal, string) error { return nil }

func (f *fakeConversations) Delete(context.Context, domain.Principal, string) error { return nil }

var student = domain.Principal{UserID: "student-1", TenantID: "school-1"}

func newTestView(svc *fakeConversations, cfg Config) *View {
	cfg.Service = svc
	cfg.Principal = student
	v := NewView(nil, nil, cfg)
	v.SetDimensions(100, 30)
	return v
}

func testTurn(usage *domain.UsageStatus) *driving.TurnResult {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	return &driving.TurnResult{
		Conversation:     &domain.Conversation{ID: "conv-1", MaterialID: "bio", Status: domain.ConversationActive, TotalMessages: 2},
		UserMessage:      &domain.Message{ID: "m1", Role: domain.RoleUser, Content: "What is osmosis?", CreatedAt: now},
		AssistantMessage: &domain.Message{ID: "m2", Role: domain.RoleAssistant, Content: "Osmosis is the movement of water [1].", CreatedAt: now},
		Context: domain.ContextWindow{Chunks: []domain.RetrievedChunk{
			{ChunkID: "bio:0", Similarity: 0.91, Score: 0.91, Metadata: domain.VectorMetadata{SectionTitle: "Cells"}},
		}},
		Usage: usage,
	}
}

func typeText(v *View, text string) *View {
	for _, r := range text {
		v, _ = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return v
}

// started runs the start command and feeds its message back into the view.
func started(t *testing.T, v *View) *View {
	t.Helper()
	msg := v.start()()
	v, _ = v.Update(msg)
	return v
}

func TestView_StartCreatesConversation(t *testing.T) {
	svc := &fakeConversations{}
	v := newTestView(svc, Config{MaterialID: "bio", Title: "Biology"})

	v = started(t, v)

	require.NotNil(t, v.Conversation())
	assert.Equal(t, "conv-1", v.Conversation().ID)
	assert.Equal(t, "bio", svc.created)
	assert.Contains(t, v.View(), "lectern - Biology")
	assert.Contains(t, v.View(), "Ask a question")
}

func TestView_StartResumesWithHistory(t *testing.T) {
	svc := &fakeConversations{
		conv: &domain.Conversation{ID: "conv-9", MaterialID: "bio", TotalMessages: 2},
		history: []domain.Message{
			{Role: domain.RoleUser, Content: "Earlier question"},
			{Role: domain.RoleAssistant, Content: "Earlier answer"},
		},
	}
	v := newTestView(svc, Config{ConversationID: "conv-9"})

	v, cmd := v.Update(v.start()())
	require.NotNil(t, cmd, "resumed conversation loads its history")
	v, _ = v.Update(cmd())

	assert.Len(t, v.History(), 2)
	view := v.View()
	assert.Contains(t, view, "Earlier question")
	assert.Contains(t, view, "Tutor")
	assert.Contains(t, view, "lectern - bio")
}

func TestView_StartError(t *testing.T) {
	svc := &fakeConversations{err: domain.ErrUnauthorized}
	v := newTestView(svc, Config{MaterialID: "bio"})

	v = started(t, v)

	assert.Nil(t, v.Conversation())
	assert.Equal(t, status.StateError, v.Status())
	assert.ErrorIs(t, v.Err(), domain.ErrUnauthorized)
}

func TestView_AskQuestion(t *testing.T) {
	svc := &fakeConversations{turn: testTurn(&domain.UsageStatus{TokensUsedToday: 120, DailyTokenLimit: 50000})}
	v := started(t, newTestView(svc, Config{MaterialID: "bio"}))

	v = typeText(v, "What is osmosis?")
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	assert.True(t, v.Waiting())
	assert.Equal(t, status.StateThinking, v.Status())
	assert.Empty(t, v.Input())
	assert.Contains(t, v.View(), "Thinking...")

	v, _ = v.Update(cmd())

	assert.Equal(t, "What is osmosis?", svc.sent)
	assert.False(t, v.Waiting())
	assert.Equal(t, status.StateReady, v.Status())
	assert.Len(t, v.History(), 2)
	assert.Len(t, v.Sources(), 1)
	view := v.View()
	assert.Contains(t, view, "Osmosis is the movement of water [1].")
	assert.Contains(t, view, "Tokens today 120/50000")
}

func TestView_EmptyQuestionIgnored(t *testing.T) {
	svc := &fakeConversations{}
	v := started(t, newTestView(svc, Config{MaterialID: "bio"}))

	v = typeText(v, "   ")
	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Empty(t, svc.sent)
}

func TestView_NoConversationIgnoresSend(t *testing.T) {
	v := newTestView(&fakeConversations{}, Config{MaterialID: "bio"})

	v = typeText(v, "hello")
	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
}

func TestView_QuotaExceededBlocksInput(t *testing.T) {
	usage := &domain.UsageStatus{Exceeded: true, Reason: "daily token limit reached"}
	svc := &fakeConversations{
		turn:    testTurn(usage),
		turnErr: fmt.Errorf("sending message: %w", domain.ErrQuotaExceeded),
	}
	v := started(t, newTestView(svc, Config{MaterialID: "bio"}))

	v = typeText(v, "What is osmosis?")
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	v, _ = v.Update(cmd())

	assert.True(t, v.Limited())
	assert.Equal(t, status.StateLimitReached, v.Status())
	assert.Len(t, v.History(), 2, "the crossing turn is still shown")
	assert.Contains(t, v.View(), "Usage limit reached: daily token limit reached")

	v = typeText(v, "more")
	_, cmd = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, v.Input())
}

func TestView_RefusedTurnDefaultReason(t *testing.T) {
	svc := &fakeConversations{turnErr: domain.ErrQuotaExceeded}
	v := started(t, newTestView(svc, Config{MaterialID: "bio"}))

	v = typeText(v, "hi")
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	v, _ = v.Update(cmd())

	assert.True(t, v.Limited())
	assert.Contains(t, v.View(), "no further messages allowed")
}

func TestView_FailedTurnRestoresQuestion(t *testing.T) {
	svc := &fakeConversations{turnErr: errors.New("provider unavailable")}
	v := started(t, newTestView(svc, Config{MaterialID: "bio"}))

	v = typeText(v, "What is osmosis?")
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	v, _ = v.Update(cmd())

	assert.False(t, v.Limited())
	assert.Equal(t, status.StateError, v.Status())
	assert.Equal(t, "What is osmosis?", v.Input())
	assert.Empty(t, v.History())
}

func TestView_SourcesPanel(t *testing.T) {
	svc := &fakeConversations{turn: testTurn(nil)}
	v := started(t, newTestView(svc, Config{MaterialID: "bio"}))
	v = typeText(v, "What is osmosis?")
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	v, _ = v.Update(cmd())

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.True(t, v.FocusSources())
	assert.Equal(t, status.StateSources, v.Status())
	assert.Contains(t, v.View(), "Sources (1)")

	// Typing is not captured while the panel has focus.
	v = typeText(v, "j")
	assert.Empty(t, v.Input())

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, v.FocusSources())
	assert.Equal(t, status.StateReady, v.Status())
}

func TestView_Quit(t *testing.T) {
	v := newTestView(&fakeConversations{}, Config{MaterialID: "bio"})

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestView_ErrorOccurred(t *testing.T) {
	v := newTestView(&fakeConversations{}, Config{MaterialID: "bio"})

	v, _ = v.Update(messages.ErrorOccurred{Err: errors.New("boom")})

	assert.Equal(t, status.StateError, v.Status())
	assert.Contains(t, v.View(), "Error: boom")
}

func TestView_WindowSize(t *testing.T) {
	v := newTestView(&fakeConversations{}, Config{MaterialID: "bio"})

	v, _ = v.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, v.transcript.Width)
	assert.Equal(t, 34, v.transcript.Height)
}
