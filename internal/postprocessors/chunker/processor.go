// Package chunker provides a page- and paragraph-aware text chunking processor.
package chunker

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// maxHeadingLen is the longest single line treated as a heading.
const maxHeadingLen = 80

// pageBreak separates pages in extracted text.
const pageBreak = "\f"

// namespace scopes chunk IDs derived by ChunkID.
var namespace = uuid.MustParse("9d0c4f6e-3b1a-5c7e-8f2d-6a4b1e0c9d3f")

// ChunkID returns the deterministic ID of the chunk at index within a
// material, so re-chunking unchanged text overwrites the same vectors.
func ChunkID(materialID string, index int) string {
	return uuid.NewSHA1(namespace, []byte(materialID+"/"+strconv.Itoa(index))).String()
}

// Processor splits material text into chunks. Paragraphs (blank-line
// separated) are packed into chunks of up to chunkSize characters without
// crossing a page or a heading. A paragraph longer than chunkSize is cut
// into fixed windows that overlap by overlap characters.
// It implements the ChunkProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between windows of an oversized paragraph.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process splits the material text into chunks with indexes, IDs, page
// numbers (when the text has page breaks) and section titles assigned.
// Input chunks are ignored.
func (p *Processor) Process(ctx context.Context, material *domain.Material, text string, _ []domain.Chunk) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	pages := strings.Split(text, pageBreak)
	paged := len(pages) > 1

	b := &builder{material: material}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var pageNum *int
		if paged {
			n := i + 1
			pageNum = &n
		}
		p.chunkPage(b, page, pageNum)
	}
	return b.chunks, nil
}

func (p *Processor) chunkPage(b *builder, page string, pageNum *int) {
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		if bufLen > 0 {
			b.add(buf.String(), pageNum)
			buf.Reset()
			bufLen = 0
		}
	}

	for _, para := range splitParagraphs(page) {
		n := utf8.RuneCountInString(para)
		if title, ok := headingText(para); ok && n <= p.chunkSize {
			flush()
			b.section = title
			b.add(para, pageNum)
			continue
		}

		if n > p.chunkSize {
			flush()
			for _, w := range p.windows(para) {
				b.add(w, pageNum)
			}
			continue
		}

		sep := 0
		if bufLen > 0 {
			sep = 2
		}
		if bufLen+sep+n > p.chunkSize {
			flush()
			sep = 0
		}
		if sep > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
		bufLen += sep + n
	}
	flush()
}

// windows cuts s into chunkSize-rune windows stepping by chunkSize-overlap.
func (p *Processor) windows(s string) []string {
	runes := []rune(s)
	step := p.chunkSize - p.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+p.chunkSize, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

type builder struct {
	material *domain.Material
	section  string
	chunks   []domain.Chunk
}

func (b *builder) add(content string, pageNum *int) {
	idx := len(b.chunks)
	b.chunks = append(b.chunks, domain.Chunk{
		ID:           ChunkID(b.material.ID, idx),
		MaterialID:   b.material.ID,
		TenantID:     b.material.TenantID,
		Index:        idx,
		Content:      content,
		PageNumber:   pageNum,
		SectionTitle: b.section,
	})
}

// splitParagraphs returns the trimmed, non-empty blank-line separated
// blocks of s.
func splitParagraphs(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []string
	var cur []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, "\n"))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, strings.TrimRight(line, " \t"))
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}

// headingText reports whether para is a heading and returns its title.
// Markdown headings always count; otherwise a short single line with no
// closing punctuation does.
func headingText(para string) (string, bool) {
	if strings.Contains(para, "\n") {
		return "", false
	}
	line := strings.TrimSpace(para)
	if strings.HasPrefix(line, "#") {
		title := strings.TrimSpace(strings.TrimLeft(line, "#"))
		return title, title != ""
	}
	if utf8.RuneCountInString(line) > maxHeadingLen || IsListItem(line) || strings.ContainsAny(line, "|\t") {
		return "", false
	}
	if strings.ContainsAny(line[len(line)-1:], ".!?:;,") {
		return "", false
	}
	// Headings start with an upper-case letter or a section number.
	r, _ := utf8.DecodeRuneInString(line)
	if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
		return "", false
	}
	return line, true
}

// IsListItem reports whether line starts with a bullet or an ordinal.
func IsListItem(line string) bool {
	line = strings.TrimSpace(line)
	for _, bullet := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, bullet) {
			return true
		}
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i < len(line)-1 && (line[i] == '.' || line[i] == ')') && line[i+1] == ' '
}
