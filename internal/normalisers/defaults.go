package normalisers

import (
	"github.com/custodia-labs/lectern/internal/normalisers/docx"
	"github.com/custodia-labs/lectern/internal/normalisers/html"
	"github.com/custodia-labs/lectern/internal/normalisers/markdown"
	"github.com/custodia-labs/lectern/internal/normalisers/plaintext"
)

// RegisterDefaults registers all built-in normalisers with the registry.
func RegisterDefaults(r *Registry) {
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(docx.New())
}

// DefaultRegistry returns a registry holding the built-in normalisers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}
