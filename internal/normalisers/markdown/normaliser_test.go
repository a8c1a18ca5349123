package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.IsType(t, &Normaliser{}, normaliser)
}

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()

	assert.Contains(t, mimeTypes, "text/markdown")
	assert.Contains(t, mimeTypes, "text/x-markdown")
	assert.Len(t, mimeTypes, 2)
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	upload := &driven.Upload{
		Filename: "cells.md",
		MIMEType: "text/markdown",
		Content:  []byte("# Cell Biology\r\n\r\nCells are the **basic unit** of life.\r\n"),
	}

	result, err := New().Normalise(context.Background(), upload)

	require.NoError(t, err)
	assert.Equal(t, "Cell Biology", result.Title)
	assert.Equal(t, "# Cell Biology\n\nCells are the basic unit of life.", result.Text)
	assert.Equal(t, "markdown", result.Format)
}

func TestNormalise_NilUpload(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestExtractMarkdownTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"h1 first", "# Title\n\nBody", "Title"},
		{"h1 after h2", "## Sub\n\n# Main", "Main"},
		{"no h1", "## Only sub\n\nBody", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractMarkdownTitle(tt.content))
		})
	}
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"headings kept", "## Photosynthesis", "## Photosynthesis"},
		{"link text kept", "See [the diagram](http://x/y.png).", "See the diagram."},
		{"image removed", "Look ![leaf](leaf.png) here", "Look  here"},
		{"inline code unwrapped", "Use `H2O` here", "Use H2O here"},
		{"code fence lines removed", "```python\nprint(1)\n```", "print(1)"},
		{"bold removed", "a **bold** b", "a bold b"},
		{"underscore bold removed", "a __bold__ b", "a bold b"},
		{"italic removed", "an *italic* word", "an italic word"},
		{"snake case kept", "use snake_case names", "use snake_case names"},
		{"star list becomes dash", "* one\n+ two\n- three", "- one\n- two\n- three"},
		{"blockquote removed", "> quoted", "quoted"},
		{"horizontal rule removed", "above\n\n---\n\nbelow", "above\n\nbelow"},
		{"newlines collapsed", "a\n\n\n\nb", "a\n\nb"},
		{"form feed kept", "page one\fpage two", "page one\fpage two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripMarkdown(tt.input))
		})
	}
}
