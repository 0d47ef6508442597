// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Jeff9497/200Model8Dev/internal/permission"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

// styles holds every lipgloss style the commands print with. Styles are
// bound to one output so color is dropped for pipes and NO_COLOR.
type styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Dim     lipgloss.Style
	Info    lipgloss.Style
	Prompt  lipgloss.Style
	Box     lipgloss.Style
}

func newStyles(out io.Writer) *styles {
	r := lipgloss.NewRenderer(out)
	r.SetColorProfile(colorProfile(out))

	return &styles{
		Title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Label:   r.NewStyle().Foreground(lipgloss.Color("245")).Width(22),
		Value:   r.NewStyle().Foreground(lipgloss.Color("252")),
		Success: r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		Error:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		Dim:     r.NewStyle().Foreground(lipgloss.Color("242")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("75")),
		Prompt:  r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1),
	}
}

// approvalBox renders the permission prompt for a pending tool call.
func (s *styles) approvalBox(p permission.PendingApproval, width int) string {
	var b strings.Builder
	b.WriteString(s.Warning.Bold(true).Render("Tool permission requested"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s\n", s.Label.Render("Tool"), s.Value.Render(p.Tool.DisplayName+" ("+p.Tool.Name+")"))
	fmt.Fprintf(&b, "%s %s\n", s.Label.Render("Provider"), s.Value.Render(p.Tool.Provider))
	if q, ok := p.Tool.Parameters["query"].(string); ok {
		fmt.Fprintf(&b, "%s %s\n", s.Label.Render("Query"), s.Value.Render(util.TruncateDisplay(q, width-30)))
	}
	fmt.Fprintf(&b, "%s %s", s.Label.Render("Description"), s.Dim.Render(p.Tool.Description))
	return s.Box.Width(width - 2).Render(b.String())
}

// status renders "[label] message" with the style for ok.
func (s *styles) status(ok bool, label, msg string) string {
	st := s.Success
	if !ok {
		st = s.Error
	}
	return st.Render("["+label+"]") + " " + msg
}
