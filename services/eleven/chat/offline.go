// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import "strings"

// offlineCommandTable maps query keywords to a canned shell suggestion.
// Order matters: earlier entries win when a query hits several keywords.
var offlineCommandTable = []struct {
	keyword string
	command string
}{
	{"list", "ls -la"},
	{"files", "ls -la"},
	{"directory", "ls -la"},
	{"find", "find . -name"},
	{"search", "grep -r"},
	{"grep", "grep -r"},
	{"process", "ps aux"},
	{"processes", "ps aux"},
	{"disk", "df -h"},
	{"space", "du -sh *"},
	{"network", "ifconfig"},
	{"git", "git status"},
	{"status", "git status"},
	{"permission", "ls -la"},
	{"error", "Check logs or man pages"},
}

const maxOfflineSuggestions = 3

// OfflineSuggestions builds a best-effort local answer for when the
// completion API is unreachable. It matches query keywords against a
// small command table and falls back to man/--help pointers.
func OfflineSuggestions(query string) string {
	lower := strings.ToLower(query)

	var suggestions []string
	for _, entry := range offlineCommandTable {
		if strings.Contains(lower, entry.keyword) {
			suggestions = append(suggestions, "Try: "+entry.command)
			if len(suggestions) >= maxOfflineSuggestions {
				break
			}
		}
	}

	if len(suggestions) == 0 {
		if words := strings.Fields(lower); len(words) > 0 {
			suggestions = append(suggestions,
				"Try: man "+words[0],
				"Try: "+words[0]+" --help")
		}
	}
	if len(suggestions) == 0 {
		suggestions = []string{
			"Try: man <command>",
			"Try: <command> --help",
			"Check system logs: tail -f /var/log/system.log",
		}
	}

	var b strings.Builder
	b.WriteString("Offline - Unable to connect to API.\n\nLocal suggestions:\n")
	for _, s := range suggestions {
		b.WriteString("  - " + s + "\n")
	}
	b.WriteString("\nFor more help, try:\n  - man <command>\n  - <command> --help\n  - Check connection and try again")
	return b.String()
}
