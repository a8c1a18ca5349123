// Package mcp provides an MCP (Model Context Protocol) server adapter for Lectern.
// It lets AI assistants search a material and ask grounded questions about it
// on behalf of a fixed principal.
package mcp

import "errors"

var (
	// ErrMissingRetrievalService is returned when the retrieval service is not provided.
	ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

	// ErrMissingPrincipal is returned when the server has no user or tenant to act as.
	ErrMissingPrincipal = errors.New("mcp: principal user and tenant are required")
)
