// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gate

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/seanebones-lang/Eleven-Term/services/eleven/safety"
)

var (
	cautionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dangerousStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	detailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// TerminalPrompter asks for consent on the controlling terminal.
//
// When standard input is not a terminal (piped input, CI) there is
// nobody to ask, so every confirmation is declined; callers that want
// unattended runs use the skip-permissions or force flags instead.
type TerminalPrompter struct{}

// NewTerminalPrompter returns a Prompter backed by an interactive form.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// Confirm implements Prompter.
func (p *TerminalPrompter) Confirm(toolName, detail string, risk safety.RiskLevel) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return false
	}

	style := cautionStyle
	if risk == safety.RiskDangerous {
		style = dangerousStyle
	}

	title := fmt.Sprintf("%s %s wants to run", style.Render("["+string(risk)+"]"), toolName)
	if detail != "" {
		title += "\n" + detailStyle.Render(detail)
	}

	confirmed := false
	form := huh.NewConfirm().
		Title(title).
		Affirmative("Run it").
		Negative("Cancel").
		Value(&confirmed)
	if err := form.Run(); err != nil {
		// The form needs more terminal than some environments offer
		// (dumb TERM, restricted ttys). Fall back to a plain y/N read.
		return plainConfirm(title)
	}
	return confirmed
}

func plainConfirm(title string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", title)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
