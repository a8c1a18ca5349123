package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// MIMEType is the content type of Word documents.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Normaliser handles DOCX uploads.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{MIMEType}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise extracts paragraphs from a DOCX upload. Heading styles become
// "# " lines, numbered paragraphs "- " lines and page breaks form feeds.
func (n *Normaliser) Normalise(_ context.Context, upload *driven.Upload) (*driven.NormaliseResult, error) {
	if upload == nil {
		return nil, fmt.Errorf("%w: upload is nil", domain.ErrValidation)
	}

	reader, err := zip.NewReader(bytes.NewReader(upload.Content), int64(len(upload.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a docx archive: %v", domain.ErrValidation, err)
	}

	content, err := extractDocumentText(reader)
	if err != nil {
		return nil, err
	}

	return &driven.NormaliseResult{
		Title:  extractTitle(reader),
		Text:   content,
		Format: "docx",
	}, nil
}

// extractDocumentText extracts text from word/document.xml.
func extractDocumentText(reader *zip.Reader) (string, error) {
	content, ok, err := readPart(reader, "word/document.xml")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: docx has no word/document.xml", domain.ErrValidation)
	}
	return parseDocumentXML(content)
}

// readPart returns the bytes of a named archive member.
func readPart(reader *zip.Reader, name string) ([]byte, bool, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, true, fmt.Errorf("%w: open %s: %v", domain.ErrValidation, name, err)
		}
		defer rc.Close()

		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, true, fmt.Errorf("%w: read %s: %v", domain.ErrValidation, name, err)
		}
		return content, true, nil
	}
	return nil, false, nil
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Props struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
		Numbering *struct{} `xml:"numPr"`
	} `xml:"pPr"`
	Runs []run `xml:"r"`
}

type run struct {
	Breaks []struct {
		Type string `xml:"type,attr"`
	} `xml:"br"`
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// parseDocumentXML renders paragraphs separated by blank lines.
func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("%w: parse document.xml: %v", domain.ErrValidation, err)
	}

	var paras []string
	for _, para := range doc.Body.Paragraphs {
		var text strings.Builder
		for _, r := range para.Runs {
			for _, br := range r.Breaks {
				if br.Type == "page" {
					text.WriteString("\f")
				}
			}
			for _, t := range r.Text {
				text.WriteString(t.Content)
			}
		}

		line := strings.TrimSpace(text.String())
		if line == "" {
			continue
		}
		pageBreak := strings.HasPrefix(text.String(), "\f")
		line = strings.TrimLeft(line, "\f")

		switch {
		case isHeadingStyle(para.Props.Style.Val):
			line = "# " + line
		case para.Props.Numbering != nil:
			line = "- " + line
		}
		if pageBreak {
			line = "\f" + line
		}
		paras = append(paras, line)
	}

	return strings.Join(paras, "\n\n"), nil
}

// isHeadingStyle reports whether a paragraph style names a heading.
func isHeadingStyle(style string) bool {
	s := strings.ToLower(style)
	return strings.HasPrefix(s, "heading") || s == "title"
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

// extractTitle extracts the title from docProps/core.xml.
func extractTitle(reader *zip.Reader) string {
	content, ok, err := readPart(reader, "docProps/core.xml")
	if err != nil || !ok {
		return ""
	}
	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
