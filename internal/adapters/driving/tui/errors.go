package tui

import "errors"

// ErrMissingConversationService is returned when the conversation service is not provided.
var ErrMissingConversationService = errors.New("tui: conversation service is required")

// ErrMissingPrincipal is returned when the session has no user or tenant.
var ErrMissingPrincipal = errors.New("tui: user and tenant are required")

// ErrMissingConversation is returned when neither a material nor a conversation is given.
var ErrMissingConversation = errors.New("tui: a material or conversation is required")

// ErrInvalidPorts is returned when ports validation fails.
var ErrInvalidPorts = errors.New("tui: invalid ports configuration")
