// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/seanebones-lang/Eleven-Term/services/eleven/safety"
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))

	riskStyles = map[safety.RiskLevel]lipgloss.Style{
		safety.RiskSafe:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		safety.RiskCaution:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		safety.RiskDangerous: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// markdownRenderer renders assistant markdown for terminal display.
// Nil when initialization fails; callers fall back to plain text.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		markdownRenderer = nil
	}
}

// renderMarkdown formats markdown when stdout is a terminal; piped
// output passes through untouched so it stays machine-readable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil || !stdoutIsTTY() {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// riskLabel renders a colored risk tag for a suggested command.
func riskLabel(risk safety.RiskLevel) string {
	style, ok := riskStyles[risk]
	if !ok {
		return "[" + string(risk) + "]"
	}
	return style.Render("[" + string(risk) + "]")
}
