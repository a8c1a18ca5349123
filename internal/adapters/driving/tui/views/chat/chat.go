// Package chat provides the conversation view for the TUI.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// historyLimit bounds the messages loaded when resuming a conversation.
const historyLimit = 100

// Config identifies the conversation a view runs.
type Config struct {
	Service        driving.ConversationService
	Principal      domain.Principal
	MaterialID     string
	ConversationID string
	Title          string
}

// View is the chat screen: transcript, question input, sources panel and status bar.
type View struct {
	styles     *styles.Styles
	keymap     *keymap.KeyMap
	input      *input.QuestionInput
	sources    *list.SourceList
	statusbar  *status.Bar
	transcript viewport.Model

	cfg          Config
	ctx          context.Context
	conversation *domain.Conversation
	history      []domain.Message
	pending      string

	width        int
	height       int
	waiting      bool
	limited      bool
	focusSources bool
	err          error
}

// NewView creates a chat view for the given conversation config.
func NewView(s *styles.Styles, km *keymap.KeyMap, cfg Config) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	v := &View{
		styles:     s,
		keymap:     km,
		input:      input.NewQuestionInput(s),
		sources:    list.NewSourceList(s),
		statusbar:  status.NewBar(s, km),
		transcript: viewport.New(80, 18),
		cfg:        cfg,
		ctx:        context.Background(),
	}
	v.SetDimensions(80, 24)
	return v
}

// WithContext sets the context used for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init opens or resumes the conversation.
func (v *View) Init() tea.Cmd {
	return tea.Batch(v.input.Init(), v.start())
}

func (v *View) start() tea.Cmd {
	ctx, svc, cfg := v.ctx, v.cfg.Service, v.cfg
	return func() tea.Msg {
		var (
			conv *domain.Conversation
			err  error
		)
		if cfg.ConversationID != "" {
			conv, err = svc.Get(ctx, cfg.Principal, cfg.ConversationID)
		} else {
			conv, err = svc.Create(ctx, cfg.Principal, cfg.MaterialID, cfg.Title)
		}
		return messages.ConversationStarted{Conversation: conv, Err: err}
	}
}

func (v *View) loadHistory(conversationID string) tea.Cmd {
	ctx, svc, principal := v.ctx, v.cfg.Service, v.cfg.Principal
	return func() tea.Msg {
		msgs, err := svc.History(ctx, principal, conversationID, historyLimit)
		return messages.HistoryLoaded{Messages: msgs, Err: err}
	}
}

func (v *View) send(text string) tea.Cmd {
	ctx, svc, principal, id := v.ctx, v.cfg.Service, v.cfg.Principal, v.conversation.ID
	return func() tea.Msg {
		turn, err := svc.SendMessage(ctx, principal, id, text)
		return messages.TurnCompleted{Turn: turn, Err: err}
	}
}

// Update handles messages for the chat view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.ConversationStarted:
		if msg.Err != nil {
			v.setError(msg.Err)
			return v, nil
		}
		v.conversation = msg.Conversation
		v.statusbar.SetMessage("Conversation " + msg.Conversation.ID)
		if msg.Conversation.TotalMessages > 0 {
			return v, v.loadHistory(msg.Conversation.ID)
		}
		v.refresh()
		return v, nil

	case messages.HistoryLoaded:
		if msg.Err != nil {
			v.setError(msg.Err)
			return v, nil
		}
		v.history = msg.Messages
		v.refresh()
		return v, nil

	case messages.TurnCompleted:
		v.handleTurn(msg)
		return v, nil

	case messages.ErrorOccurred:
		v.setError(msg.Err)
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, v.keymap.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keymap.ScrollUp), key.Matches(msg, v.keymap.ScrollDown):
		v.transcript, cmd = v.transcript.Update(msg)
		return v, cmd

	case key.Matches(msg, v.keymap.Sources):
		v.toggleSources(!v.focusSources)
		return v, nil
	}

	if v.focusSources {
		switch {
		case key.Matches(msg, v.keymap.Back):
			v.toggleSources(false)
		case key.Matches(msg, v.keymap.Up), key.Matches(msg, v.keymap.Down):
			v.sources, cmd = v.sources.Update(msg)
		}
		return v, cmd
	}

	if key.Matches(msg, v.keymap.Send) {
		return v, v.submit()
	}

	if v.limited || v.waiting {
		return v, nil
	}
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) submit() tea.Cmd {
	if v.waiting || v.limited || v.conversation == nil {
		return nil
	}
	text := v.input.Value()
	if text == "" {
		return nil
	}

	v.waiting = true
	v.pending = text
	v.err = nil
	v.input.Reset()
	v.statusbar.SetMessage("")
	v.statusbar.SetState(status.StateThinking)
	v.refresh()
	return v.send(text)
}

func (v *View) handleTurn(msg messages.TurnCompleted) {
	v.waiting = false
	question := v.pending
	v.pending = ""

	if turn := msg.Turn; turn != nil {
		if turn.Conversation != nil {
			v.conversation = turn.Conversation
		}
		if turn.UserMessage != nil {
			v.history = append(v.history, *turn.UserMessage)
		}
		if turn.AssistantMessage != nil {
			v.history = append(v.history, *turn.AssistantMessage)
		}
		v.sources.SetChunks(turn.Context.Chunks)
		if turn.Usage != nil {
			v.statusbar.SetUsage(turn.Usage)
		}
	}

	switch {
	case msg.Err == nil:
		v.statusbar.Clear()
	case errors.Is(msg.Err, domain.ErrQuotaExceeded):
		v.limited = true
		v.input.Blur()
		v.statusbar.SetState(status.StateLimitReached)
		v.statusbar.SetMessage(limitReason(msg.Turn))
	default:
		if msg.Turn == nil {
			// The turn never ran; give the question back.
			v.input.SetValue(question)
		}
		v.setError(msg.Err)
	}
	v.refresh()
}

func limitReason(turn *driving.TurnResult) string {
	if turn != nil && turn.Usage != nil && turn.Usage.Reason != "" {
		return turn.Usage.Reason
	}
	return "no further messages allowed"
}

func (v *View) setError(err error) {
	v.err = err
	v.statusbar.SetState(status.StateError)
	v.statusbar.SetMessage(err.Error())
}

func (v *View) toggleSources(on bool) {
	v.focusSources = on
	if on {
		v.input.Blur()
		v.statusbar.SetState(status.StateSources)
		return
	}
	if !v.limited {
		v.input.Focus()
	}
	switch {
	case v.limited:
		v.statusbar.SetState(status.StateLimitReached)
	case v.err != nil:
		v.statusbar.SetState(status.StateError)
	case v.waiting:
		v.statusbar.SetState(status.StateThinking)
	default:
		v.statusbar.SetState(status.StateReady)
	}
}

// refresh re-renders the transcript and scrolls to the latest turn.
func (v *View) refresh() {
	v.transcript.SetContent(v.renderTranscript())
	v.transcript.GotoBottom()
}

func (v *View) renderTranscript() string {
	if len(v.history) == 0 && v.pending == "" {
		return v.styles.Muted.Render("Ask a question about this material to get started.")
	}

	wrap := lipgloss.NewStyle().Width(v.transcript.Width)
	blocks := make([]string, 0, len(v.history)+1)
	for _, m := range v.history {
		blocks = append(blocks, v.styles.Speaker(m.Role).Render(speakerName(m.Role))+"\n"+wrap.Render(m.Content))
	}
	if v.pending != "" {
		blocks = append(blocks,
			v.styles.Student.Render(speakerName(domain.RoleUser))+"\n"+wrap.Render(v.pending)+"\n"+
				v.styles.Muted.Render("Thinking..."))
	}
	return strings.Join(blocks, "\n\n")
}

func speakerName(role domain.Role) string {
	if role == domain.RoleAssistant {
		return "Tutor"
	}
	return "You"
}

// View renders the chat screen.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render(v.header()))
	b.WriteString("\n\n")

	if v.focusSources {
		b.WriteString(v.sources.View())
	} else {
		b.WriteString(v.transcript.View())
	}
	b.WriteString("\n\n")

	b.WriteString(v.input.View())
	b.WriteString("\n")
	b.WriteString(v.statusbar.View())

	return b.String()
}

func (v *View) header() string {
	if v.conversation == nil {
		return "lectern"
	}
	title := v.conversation.Title
	if title == "" {
		title = v.conversation.MaterialID
	}
	if title == "" {
		return "lectern"
	}
	return fmt.Sprintf("lectern - %s", title)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height

	// Title, two spacers, input and status bar.
	body := height - 6
	if body < 3 {
		body = 3
	}
	v.transcript.Width = width
	v.transcript.Height = body
	v.sources.SetDimensions(width, body)
	v.input.SetWidth(width)
	v.statusbar.SetWidth(width)
	v.transcript.SetContent(v.renderTranscript())
}

// Conversation returns the open conversation, or nil before it starts.
func (v *View) Conversation() *domain.Conversation {
	return v.conversation
}

// History returns the messages shown in the transcript.
func (v *View) History() []domain.Message {
	return v.history
}

// Sources returns the excerpts behind the latest answer.
func (v *View) Sources() []domain.RetrievedChunk {
	return v.sources.Chunks()
}

// Waiting reports whether a turn is in flight.
func (v *View) Waiting() bool {
	return v.waiting
}

// Limited reports whether the usage limit blocked further questions.
func (v *View) Limited() bool {
	return v.limited
}

// FocusSources reports whether the sources panel has focus.
func (v *View) FocusSources() bool {
	return v.focusSources
}

// Status returns the status bar state.
func (v *View) Status() status.State {
	return v.statusbar.State()
}

// Input returns the current question text.
func (v *View) Input() string {
	return v.input.Value()
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}
