package markdown

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown uploads.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts Markdown to text. Heading markers are kept so the
// chunker can detect sections; list items are rewritten as "- " lines.
func (n *Normaliser) Normalise(_ context.Context, upload *driven.Upload) (*driven.NormaliseResult, error) {
	if upload == nil {
		return nil, fmt.Errorf("%w: upload is nil", domain.ErrValidation)
	}

	content := plaintext.Clean(string(upload.Content))

	return &driven.NormaliseResult{
		Title:  extractMarkdownTitle(content),
		Text:   stripMarkdown(content),
		Format: "markdown",
	}, nil
}

// Pre-compiled regular expressions for Markdown parsing performance.
var (
	h1Heading     = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	codeFences    = regexp.MustCompile("(?m)^\\s*```.*$\n?")
	inlineCode    = regexp.MustCompile("`([^`]+)`")
	images        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	strongMarkers = regexp.MustCompile(`(\*\*|__)([^\n]+?)(\*\*|__)`)
	emphasis      = regexp.MustCompile(`\*([^*\n]+)\*`)
	blockquote    = regexp.MustCompile(`(?m)^>\s?`)
	horizontal    = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	listMarkers   = regexp.MustCompile(`(?m)^(\s*)[*+]\s+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// extractMarkdownTitle returns the text of the first H1 heading.
func extractMarkdownTitle(content string) string {
	if m := h1Heading.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// stripMarkdown removes inline formatting while keeping block structure.
func stripMarkdown(content string) string {
	content = codeFences.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = horizontal.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "$1- ")
	content = strongMarkers.ReplaceAllString(content, "$2")
	content = emphasis.ReplaceAllString(content, "$1")
	content = blockquote.ReplaceAllString(content, "")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
