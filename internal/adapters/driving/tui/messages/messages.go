// Package messages defines Bubbletea message types for the TUI.
package messages

import (
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// ConversationStarted is sent once the session's conversation is open.
type ConversationStarted struct {
	Conversation *domain.Conversation
	Err          error
}

// HistoryLoaded carries the earlier messages of a resumed conversation.
type HistoryLoaded struct {
	Messages []domain.Message
	Err      error
}

// QuestionAsked is sent when the student submits a question.
type QuestionAsked struct {
	Text string
}

// TurnCompleted carries the outcome of a chat turn. Turn may be set
// alongside an error when the turn crossed the usage limit.
type TurnCompleted struct {
	Turn *driving.TurnResult
	Err  error
}

// ErrorOccurred is sent when an error needs to be displayed.
type ErrorOccurred struct {
	Err error
}

// WindowSized is sent when the terminal is resized.
type WindowSized struct {
	Width  int
	Height int
}
