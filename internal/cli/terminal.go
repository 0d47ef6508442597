// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// isTerminal reports whether v is an *os.File attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorsEnabled respects NO_COLOR and FORCE_COLOR before falling back to
// TTY detection on out.
func colorsEnabled(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return isTerminal(out)
}

// colorProfile returns the termenv profile for out.
func colorProfile(out io.Writer) termenv.Profile {
	if !colorsEnabled(out) {
		return termenv.Ascii
	}
	return termenv.NewOutput(out).ColorProfile()
}

// =============================================================================
// TERMINAL WIDTH
// =============================================================================

const (
	defaultTerminalWidth = 80
	minTerminalWidth     = 40
	maxRenderWidth       = 120
)

// terminalWidth returns the width of out, or the default when unknown.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok {
		return defaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return min(max(width, minTerminalWidth), maxRenderWidth)
}

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders assistant replies for a terminal.
type markdownRenderer struct {
	r *glamour.TermRenderer
}

// newMarkdownRenderer picks a glamour style from the terminal background.
// It returns a pass-through renderer when out is not a color terminal.
func newMarkdownRenderer(out io.Writer) *markdownRenderer {
	if colorProfile(out) == termenv.Ascii {
		return &markdownRenderer{}
	}
	style := "light"
	if termenv.NewOutput(out).HasDarkBackground() {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(terminalWidth(out)-4),
	)
	if err != nil {
		return &markdownRenderer{}
	}
	return &markdownRenderer{r: r}
}

// Render returns content formatted for display. Rendering failures fall
// back to the raw text.
func (m *markdownRenderer) Render(content string) string {
	if m == nil || m.r == nil {
		return content + "\n"
	}
	out, err := m.r.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}
