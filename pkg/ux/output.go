// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders beaver results on the terminal.
//
// Output adapts to where it goes: styled with lipgloss on a terminal, tab
// separated plain text when piped, and JSON when asked for. The Printer never
// writes diagnostics; those go through the logger on stderr.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, proven verdicts
	ColorTealPrimary = lipgloss.Color("#20B9B4") // titles
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// Render returns the icon with its style.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return Styles.Muted.Render(string(i))
	}
}

// =============================================================================
// Views
// =============================================================================

// DecisionView is the printable form of one decision.
type DecisionView struct {
	Machine  string        `json:"machine"`
	Verdict  string        `json:"verdict"`
	Decider  string        `json:"decider"`
	Reason   string        `json:"reason,omitempty"`
	Steps    int64         `json:"steps"`
	Witness  string        `json:"witness,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`

	// Proven marks a non-halting verdict backed by a certificate.
	Proven bool `json:"proven"`
}

// SummaryView is the printable form of a batch summary.
type SummaryView struct {
	RunID      string         `json:"run_id"`
	Total      int            `json:"total"`
	NonHalting int            `json:"non_halting"`
	Unknown    int            `json:"unknown"`
	Failed     int            `json:"failed"`
	ByDecider  map[string]int `json:"by_decider"`
	Duration   time.Duration  `json:"duration_ns"`
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes views in one output mode.
//
// Thread Safety: Not safe for concurrent use. The CLI prints from a single
// goroutine.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a printer writing to w in mode.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's output mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Decision prints one decision.
func (p *Printer) Decision(d DecisionView) error {
	switch p.mode {
	case ModeJSON:
		return p.JSON(d)
	case ModePlain:
		_, err := fmt.Fprintf(p.w, "%s\t%s\t%s\t%s\t%d\t%s\n", d.Machine, d.Verdict, d.Decider, d.Reason, d.Steps, d.Witness)
		return err
	}

	icon, verdict := IconPending, Styles.Muted.Render(d.Verdict)
	if d.Proven {
		icon, verdict = IconSuccess, Styles.Highlight.Render(d.Verdict)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s  %s %s", icon.Render(), Styles.Bold.Render(d.Machine), verdict, Styles.Muted.Render("by "+d.Decider))
	if d.Reason != "" {
		sb.WriteString(" " + Styles.Warning.Render("("+d.Reason+")"))
	}
	fmt.Fprintf(&sb, " %s", Styles.Muted.Render(fmt.Sprintf("%d steps", d.Steps)))
	if d.Duration > 0 {
		fmt.Fprintf(&sb, " %s", Styles.Muted.Render(d.Duration.Round(time.Microsecond).String()))
	}
	if d.Witness != "" {
		fmt.Fprintf(&sb, "\n    %s", d.Witness)
	}
	_, err := fmt.Fprintln(p.w, sb.String())
	return err
}

// Failure prints an input that could not be decided.
func (p *Printer) Failure(input string, cause error) error {
	switch p.mode {
	case ModeJSON:
		return p.JSON(map[string]string{"machine": input, "error": cause.Error()})
	case ModePlain:
		_, err := fmt.Fprintf(p.w, "%s\terror\t\t%s\t0\t\n", input, cause)
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s %s  %s\n", IconError.Render(), Styles.Bold.Render(input), Styles.Error.Render(cause.Error()))
	return err
}

// Summary prints batch totals.
func (p *Printer) Summary(s SummaryView) error {
	switch p.mode {
	case ModeJSON:
		return p.JSON(s)
	case ModePlain:
		_, err := fmt.Fprintf(p.w, "SUMMARY: run=%s total=%d non_halting=%d unknown=%d failed=%d\n",
			s.RunID, s.Total, s.NonHalting, s.Unknown, s.Failed)
		return err
	}

	kinds := make([]string, 0, len(s.ByDecider))
	for k := range s.ByDecider {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	var lines []string
	lines = append(lines, fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		Styles.Success.Render(fmt.Sprintf("%d", s.NonHalting)), Styles.Muted.Render("non-halting"),
		Styles.Warning.Render(fmt.Sprintf("%d", s.Unknown)), Styles.Muted.Render("unknown"),
		Styles.Error.Render(fmt.Sprintf("%d", s.Failed)), Styles.Muted.Render("failed"),
		Styles.Bold.Render(fmt.Sprintf("%d", s.Total)), Styles.Muted.Render("total"),
	))
	for _, k := range kinds {
		lines = append(lines, fmt.Sprintf("  %-10s %s %d", k, ProgressBar(s.ByDecider[k], s.NonHalting, 20), s.ByDecider[k]))
	}
	lines = append(lines, Styles.Muted.Render(fmt.Sprintf("run %s in %s", s.RunID, s.Duration.Round(time.Millisecond))))
	_, err := fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render("Batch summary")+"\n"+strings.Join(lines, "\n")))
	return err
}

// Verified prints the outcome of a certificate check.
func (p *Printer) Verified(machine string, cause error) error {
	switch p.mode {
	case ModeJSON:
		out := map[string]any{"machine": machine, "valid": cause == nil}
		if cause != nil {
			out["reason"] = cause.Error()
		}
		return p.JSON(out)
	case ModePlain:
		if cause != nil {
			_, err := fmt.Fprintf(p.w, "%s\tinvalid\t%s\n", machine, cause)
			return err
		}
		_, err := fmt.Fprintf(p.w, "%s\tvalid\n", machine)
		return err
	}
	if cause != nil {
		_, err := fmt.Fprintf(p.w, "%s %s  %s\n", IconError.Render(), Styles.Bold.Render(machine), Styles.Error.Render(cause.Error()))
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s %s  %s\n", IconSuccess.Render(), Styles.Bold.Render(machine), Styles.Success.Render("certificate verified"))
	return err
}

// JSON writes v as one line of JSON.
func (p *Printer) JSON(v any) error {
	return json.NewEncoder(p.w).Encode(v)
}

// ProgressBar renders a bar of width cells for current out of total.
func ProgressBar(current, total int, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := current * width / total
	if filled > width {
		filled = width
	}
	return Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled))
}
