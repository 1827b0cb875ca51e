// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report turns counter snapshots into human-readable summaries.
//
// [Daily] and [Monthly] are pure: they take a period and a snapshot and
// return a [Report]. A Report renders three ways: Markdown for chat
// message bodies, HTML (via goldmark) for rich chat formatting, and
// styled terminal output (via lipgloss) for the CLI. [Generator] binds
// the pure functions to a [tally.Store].
package report

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"

	"github.com/bureau-foundation/calltally/lib/building"
	"github.com/bureau-foundation/calltally/lib/tally"
)

// Kind distinguishes daily from monthly reports.
type Kind int

const (
	KindDaily Kind = iota
	KindMonthly
)

// Line is one building's row in a report.
type Line struct {
	Code  building.Code
	Count int
}

// Text renders the row body, e.g. "UK1: 3 call(s)" or "UK2: 0 (no calls)".
func (l Line) Text() string {
	if l.Count == 0 {
		return fmt.Sprintf("%s: 0 (no calls)", l.Code)
	}
	return fmt.Sprintf("%s: %d call(s)", l.Code, l.Count)
}

// Report is a renderer-agnostic summary. Lines always hold every
// building in code order.
type Report struct {
	Kind  Kind
	Title string

	// Period names the day or month covered, e.g. "10.03.2026 (Tue)".
	Period string

	Total int
	Lines []Line
}

// Daily builds the report for one day.
func Daily(day tally.Day, snapshot tally.Snapshot) Report {
	label := DayLabel(day)
	return Report{
		Kind:   KindDaily,
		Title:  "Ambulance calls for " + label,
		Period: label,
		Total:  snapshot.Total(),
		Lines:  lines(snapshot),
	}
}

// DayLabel formats day as "10.03.2026 (Tue)".
func DayLabel(day tally.Day) string {
	return fmt.Sprintf("%02d.%02d.%04d (%s)", day.Day, int(day.Month), day.Year, day.Weekday().String()[:3])
}

// Monthly builds the report for one month.
func Monthly(month tally.Month, snapshot tally.Snapshot) Report {
	label := fmt.Sprintf("%s %d", month.Month, month.Year)
	return Report{
		Kind:   KindMonthly,
		Title:  "Ambulance calls for " + label,
		Period: label,
		Total:  snapshot.Total(),
		Lines:  lines(snapshot),
	}
}

func lines(snapshot tally.Snapshot) []Line {
	codes := building.All()
	result := make([]Line, len(codes))
	for index, code := range codes {
		result[index] = Line{Code: code, Count: snapshot.Get(code)}
	}
	return result
}

// Summary is the total line (monthly) or the lead line (daily).
func (r Report) Summary() string {
	switch {
	case r.Kind == KindDaily && r.Total == 0:
		return "No calls were registered on " + r.Period + "."
	case r.Kind == KindMonthly && r.Total == 0:
		return "Total calls: none (no calls this month)"
	default:
		return fmt.Sprintf("Total calls: %d", r.Total)
	}
}

// Markdown renders the report as CommonMark. Daily reports lead with
// the total (or the no-calls notice); monthly reports end with it.
func (r Report) Markdown() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "**%s**\n\n", r.Title)
	if r.Kind == KindDaily {
		builder.WriteString(r.Summary())
		builder.WriteString("\n\n")
	}
	for _, line := range r.Lines {
		builder.WriteString("- ")
		builder.WriteString(line.Text())
		builder.WriteString("\n")
	}
	if r.Kind == KindMonthly {
		builder.WriteString("\n")
		builder.WriteString(r.Summary())
		builder.WriteString("\n")
	}
	return builder.String()
}

// Rendered is a report ready to send: Text is the plain body and HTML
// the formatted body.
type Rendered struct {
	Text string
	HTML string
}

// Render converts the Markdown form to HTML.
func (r Report) Render() (Rendered, error) {
	markdown := r.Markdown()
	html, err := MarkdownToHTML(markdown)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Text: markdown, HTML: html}, nil
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

// MarkdownToHTML converts CommonMark to an HTML fragment. Raw HTML in
// the source is omitted from the output.
func MarkdownToHTML(markdown string) (string, error) {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New()
	})
	var buffer bytes.Buffer
	if err := markdownInstance.Convert([]byte(markdown), &buffer); err != nil {
		return "", fmt.Errorf("report: rendering markdown: %w", err)
	}
	return strings.TrimRight(buffer.String(), "\n"), nil
}
