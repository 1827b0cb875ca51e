// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// NewTerminalRenderer returns a lipgloss renderer for w. When profile
// is non-nil it is forced; otherwise the profile is detected from w.
func NewTerminalRenderer(w io.Writer, profile *termenv.Profile) *lipgloss.Renderer {
	if profile == nil {
		return lipgloss.NewRenderer(w)
	}
	renderer := lipgloss.NewRenderer(w, termenv.WithProfile(*profile))
	// Renderer.ColorProfile re-detects from the environment unless the
	// profile is also set explicitly.
	renderer.SetColorProfile(*profile)
	return renderer
}

// Terminal renders the report for a terminal: a bold title, count
// column aligned, zero rows dimmed.
func (r Report) Terminal(renderer *lipgloss.Renderer) string {
	titleStyle := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	codeStyle := renderer.NewStyle().Width(6)
	activeStyle := renderer.NewStyle().Bold(true)
	quietStyle := renderer.NewStyle().Faint(true)
	summaryStyle := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render(r.Title))
	builder.WriteString("\n\n")
	if r.Kind == KindDaily {
		builder.WriteString(summaryStyle.Render(r.Summary()))
		builder.WriteString("\n\n")
	}
	for _, line := range r.Lines {
		row := codeStyle.Render(line.Code.String())
		if line.Count == 0 {
			row += quietStyle.Render("0 (no calls)")
		} else {
			row += activeStyle.Render(fmt.Sprintf("%d call(s)", line.Count))
		}
		builder.WriteString(row)
		builder.WriteString("\n")
	}
	if r.Kind == KindMonthly {
		builder.WriteString("\n")
		builder.WriteString(summaryStyle.Render(r.Summary()))
		builder.WriteString("\n")
	}
	return builder.String()
}
