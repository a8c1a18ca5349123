// Package list provides list display components for the TUI.
package list

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

// SourceList shows the excerpts an answer was grounded on, numbered the
// way the answer cites them.
type SourceList struct {
	chunks   []domain.RetrievedChunk
	selected int
	styles   *styles.Styles
	width    int
	height   int
}

// NewSourceList creates an empty source list.
func NewSourceList(s *styles.Styles) *SourceList {
	if s == nil {
		s = styles.DefaultStyles()
	}

	return &SourceList{
		styles: s,
		width:  80,
		height: 10,
	}
}

// Init initialises the source list.
func (l *SourceList) Init() tea.Cmd {
	return nil
}

// Update handles list navigation messages.
func (l *SourceList) Update(msg tea.Msg) (*SourceList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			l.MoveUp()
		case "down", "j":
			l.MoveDown()
		}
	}
	return l, nil
}

// View renders the list.
func (l *SourceList) View() string {
	if len(l.chunks) == 0 {
		return l.styles.Muted.Render("No sources for the last answer")
	}

	lines := make([]string, 0, len(l.chunks)*2+2)
	lines = append(lines, l.styles.Subtitle.Render(fmt.Sprintf("Sources (%d)", len(l.chunks))), "")

	// Two lines per excerpt
	visible := (l.height - 2) / 2
	if visible < 1 {
		visible = 1
	}
	start := 0
	if l.selected >= visible {
		start = l.selected - visible + 1
	}
	end := start + visible
	if end > len(l.chunks) {
		end = len(l.chunks)
	}

	for i := start; i < end; i++ {
		lines = append(lines, l.renderChunk(i))
	}
	return strings.Join(lines, "\n")
}

func (l *SourceList) renderChunk(i int) string {
	c := l.chunks[i]

	label := Label(c)
	maxLabel := l.width - 16
	if maxLabel < 10 {
		maxLabel = 10
	}
	label = truncate(label, maxLabel)

	cite := fmt.Sprintf("[%d]", i+1)
	score := fmt.Sprintf("%.2f", c.Score)

	var head string
	if i == l.selected {
		head = l.styles.Selected.Render(fmt.Sprintf("> %s %-*s  %s", cite, maxLabel, label, score))
	} else {
		head = "  " + l.styles.Citation.Render(cite) + " " +
			l.styles.Normal.Render(fmt.Sprintf("%-*s  ", maxLabel, label)) +
			l.styles.Muted.Render(score)
	}

	preview := strings.Join(strings.Fields(c.Metadata.Content), " ")
	maxPreview := l.width - 6
	if maxPreview < 20 {
		maxPreview = 20
	}
	return head + "\n" + l.styles.Muted.Render("      "+truncate(preview, maxPreview))
}

// Label names an excerpt by section and page, falling back to its chunk ID.
func Label(c domain.RetrievedChunk) string {
	label := c.Metadata.SectionTitle
	if label == "" {
		label = c.ChunkID
	}
	if c.Metadata.PageNumber != nil {
		label = fmt.Sprintf("%s (page %d)", label, *c.Metadata.PageNumber)
	}
	return label
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// SetChunks replaces the listed excerpts and selects the first.
func (l *SourceList) SetChunks(chunks []domain.RetrievedChunk) {
	l.chunks = chunks
	l.selected = 0
}

// Chunks returns the listed excerpts.
func (l *SourceList) Chunks() []domain.RetrievedChunk {
	return l.chunks
}

// Selected returns the index of the selected excerpt.
func (l *SourceList) Selected() int {
	return l.selected
}

// SelectedChunk returns the selected excerpt, or nil if the list is empty.
func (l *SourceList) SelectedChunk() *domain.RetrievedChunk {
	if l.selected < 0 || l.selected >= len(l.chunks) {
		return nil
	}
	return &l.chunks[l.selected]
}

// MoveUp moves selection up.
func (l *SourceList) MoveUp() {
	if l.selected > 0 {
		l.selected--
	}
}

// MoveDown moves selection down.
func (l *SourceList) MoveDown() {
	if l.selected < len(l.chunks)-1 {
		l.selected++
	}
}

// SetDimensions sets the component dimensions.
func (l *SourceList) SetDimensions(width, height int) {
	l.width = width
	l.height = height
}

// Count returns the number of excerpts.
func (l *SourceList) Count() int {
	return len(l.chunks)
}
