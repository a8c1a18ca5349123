package normalisers

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// DefaultMIMEType is assumed when an upload declares no content type.
const DefaultMIMEType = "text/plain"

// Registry dispatches uploads to the highest priority normaliser that
// supports their MIME type.
type Registry struct {
	mu     sync.RWMutex
	byMIME map[string][]driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byMIME: make(map[string][]driven.Normaliser)}
}

// Register adds a normaliser under each of its MIME types.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mt := range n.SupportedMIMETypes() {
		list := append(r.byMIME[mt], n)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.byMIME[mt] = list
	}
}

// SupportedMIMETypes returns all registered MIME types, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.byMIME))
	for mt := range r.byMIME {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}

// Normalise extracts the text of an upload. An unsupported content type
// or text that is empty or not UTF-8 is a validation error.
func (r *Registry) Normalise(ctx context.Context, upload *driven.Upload) (*driven.NormaliseResult, error) {
	if upload == nil {
		return nil, fmt.Errorf("%w: upload is nil", domain.ErrValidation)
	}
	mt := MediaType(upload.MIMEType)

	r.mu.RLock()
	candidates := r.byMIME[mt]
	r.mu.RUnlock()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: unsupported content type %q", domain.ErrValidation, mt)
	}

	res, err := candidates[0].Normalise(ctx, upload)
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", mt, err)
	}
	if !utf8.ValidString(res.Text) {
		return nil, fmt.Errorf("%w: %s content is not valid UTF-8 text", domain.ErrValidation, mt)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, fmt.Errorf("%w: %s content has no text", domain.ErrValidation, mt)
	}
	if res.Title == "" {
		res.Title = TitleFromFilename(upload.Filename)
	}
	return res, nil
}

// MediaType lower-cases a content type and strips its parameters.
// An empty or unparseable value yields DefaultMIMEType.
func MediaType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return DefaultMIMEType
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return DefaultMIMEType
	}
	return mt
}

// TitleFromFilename derives a human-readable title from a file name.
func TitleFromFilename(name string) string {
	if name == "" {
		return ""
	}
	filename := filepath.Base(name)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}
