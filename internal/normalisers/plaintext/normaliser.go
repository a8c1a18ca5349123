package plaintext

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text uploads.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/markdown",
		"text/html",
		"application/json",
		"application/xml",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise returns the upload as text with a leading byte order mark
// removed and line endings unified.
func (n *Normaliser) Normalise(_ context.Context, upload *driven.Upload) (*driven.NormaliseResult, error) {
	if upload == nil {
		return nil, fmt.Errorf("%w: upload is nil", domain.ErrValidation)
	}

	return &driven.NormaliseResult{
		Text:   Clean(string(upload.Content)),
		Format: "plaintext",
	}, nil
}

// Clean strips a UTF-8 byte order mark and converts CRLF and CR line
// endings to LF. Form feeds are kept as page separators.
func Clean(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
