package html

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML uploads.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts an HTML upload to text.
func (n *Normaliser) Normalise(_ context.Context, upload *driven.Upload) (*driven.NormaliseResult, error) {
	if upload == nil {
		return nil, fmt.Errorf("%w: upload is nil", domain.ErrValidation)
	}

	content := string(upload.Content)

	return &driven.NormaliseResult{
		Title:  extractHTMLTitle(content),
		Text:   stripHTML(content),
		Format: "html",
	}, nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	h1Tag          = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	scriptTag      = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag       = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag    = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag        = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag         = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments   = regexp.MustCompile(`(?s)<!--.*?-->`)
	headingTags    = regexp.MustCompile(`(?is)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	listItemTags   = regexp.MustCompile(`(?i)<li[^>]*>`)
	cellTags       = regexp.MustCompile(`(?i)<t[dh](\s[^>]*)?>`)
	rowEndTags     = regexp.MustCompile(`(?i)</tr>`)
	lineEndTags    = regexp.MustCompile(`(?i)</(dt|dd)>|<br\s*/?>`)
	blockEndTags   = regexp.MustCompile(`(?i)</(p|div|blockquote|pre|table|section|article|ul|ol|dl)>|<hr\s*/?>`)
	blockStartTags = regexp.MustCompile(`(?i)<(p|div|blockquote|pre|table|section|article|ul|ol|dl)(\s[^>]*)?>`)
	allTags        = regexp.MustCompile(`<[^>]+>`)
	multiSpaces    = regexp.MustCompile(`[ \t]+`)
)

// extractHTMLTitle returns the <title> text, or the first <h1> when
// there is no title.
func extractHTMLTitle(content string) string {
	for _, re := range []*regexp.Regexp{titleTag, h1Tag} {
		if m := re.FindStringSubmatch(content); len(m) > 1 {
			title := strings.TrimSpace(html.UnescapeString(allTags.ReplaceAllString(m[1], "")))
			if title != "" {
				return title
			}
		}
	}
	return ""
}

// stripHTML removes markup and returns paragraphs separated by blank
// lines. Headings become "# " lines, list items "- " lines and table
// rows pipe separated lines.
func stripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = headingTags.ReplaceAllStringFunc(content, func(tag string) string {
		inner := headingTags.FindStringSubmatch(tag)[1]
		inner = strings.Join(strings.Fields(allTags.ReplaceAllString(inner, " ")), " ")
		return "\n\n# " + inner + "\n\n"
	})
	content = listItemTags.ReplaceAllString(content, "\n- ")
	content = cellTags.ReplaceAllString(content, " | ")
	content = rowEndTags.ReplaceAllString(content, " |\n")
	content = lineEndTags.ReplaceAllString(content, "\n")
	content = blockEndTags.ReplaceAllString(content, "\n\n")
	content = blockStartTags.ReplaceAllString(content, "\n\n")

	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	// Trim each line and keep at most one blank line between blocks.
	var out []string
	blank := true
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
