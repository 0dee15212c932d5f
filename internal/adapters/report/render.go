package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// minWrapWidth keeps narrow terminals readable.
const minWrapWidth = 24

// TerminalRenderer renders markdown reports for terminal output.
type TerminalRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
}

// NewTerminalRenderer builds a renderer for a glamour standard style and wrap width.
// An empty style renders with "dark"; a width of 0 disables wrapping.
func NewTerminalRenderer(style string, width int) (*TerminalRenderer, error) {
	style = strings.TrimSpace(strings.ToLower(style))
	if style == "" {
		style = "dark"
	}
	if width > 0 && width < minWrapWidth {
		width = minWrapWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &TerminalRenderer{style: style, width: width, renderer: renderer}, nil
}

// Render converts markdown into styled terminal text.
func (r *TerminalRenderer) Render(markdown string) (string, error) {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", nil
	}
	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimRight(rendered, "\n") + "\n", nil
}
