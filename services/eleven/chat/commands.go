// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"regexp"
	"strings"
)

// maxExtractedCommands caps the suggestion list shown after a one-shot
// query.
const maxExtractedCommands = 5

var (
	fencedBlockRegex = regexp.MustCompile("(?s)```(?:bash|sh|shell|zsh)?\n(.*?)```")
	dollarLineRegex  = regexp.MustCompile(`^\$\s*(.+)$`)
)

// shellKeywords mark lines that look like commands when nothing more
// structured is found.
var shellKeywords = []string{"ls", "cd", "find", "grep", "cat", "echo", "git", "python", "node"}

// ExtractCommands pulls runnable shell commands out of prose.
//
// Description:
//
//	Three passes, in decreasing confidence: fenced shell code blocks,
//	then "$ "-prefixed lines, then (only when both came up empty) a
//	keyword heuristic over free text. Best-effort; the caller presents
//	results as suggestions, never executes them unasked.
func ExtractCommands(response string) []string {
	var commands []string

	for _, m := range fencedBlockRegex.FindAllStringSubmatch(response, -1) {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				commands = append(commands, line)
			}
		}
	}

	for _, line := range strings.Split(response, "\n") {
		if m := dollarLineRegex.FindStringSubmatch(line); m != nil {
			cmd := strings.TrimSpace(m[1])
			if cmd != "" && !strings.HasPrefix(cmd, "#") {
				commands = append(commands, cmd)
			}
		}
	}

	if len(commands) == 0 {
		for _, line := range strings.Split(response, "\n") {
			stripped := strings.TrimSpace(line)
			if stripped == "" || len(stripped) >= 200 {
				continue
			}
			// Lines ending in prose punctuation are explanations.
			if strings.HasSuffix(stripped, ".") || strings.HasSuffix(stripped, ":") {
				continue
			}
			if containsShellKeyword(stripped) {
				commands = append(commands, stripped)
			}
		}
	}

	if len(commands) > maxExtractedCommands {
		commands = commands[:maxExtractedCommands]
	}
	return commands
}

func containsShellKeyword(line string) bool {
	for _, kw := range shellKeywords {
		if strings.Contains(line, kw) {
			return true
		}
	}
	return false
}
