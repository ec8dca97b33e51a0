// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"regexp"
	"strings"
)

// maxInferredCommandLength rejects "commands" that are really prose.
const maxInferredCommandLength = 200

// knownExtensions anchors file path recognition in free text.
const knownExtensions = `py|js|ts|jsx|tsx|json|md|txt|yml|yaml|toml|rs|go|java|kt|swift|cpp|c|h|hpp|rb|php|sh|bash|zsh|fish`

// Patterns for explicit tool mentions: "Tool: ls", "Use the View tool",
// "Execute bash", and emoji-prefixed variants like "🔧 Tool Request: Bash".
var (
	toolMentionRegex = regexp.MustCompile(`(?i)(?:tool\s*(?:request)?:?\s*|use\s+(?:the\s+)?|execute\s+)(ls|view|edit|write|bash|grep|glob)(?:\s+tool)?`)
	emojiMentionRegex = regexp.MustCompile(`(?i)[🔧⚙🛠]\x{FE0F}?\s*(?:tool\s*(?:request)?:?\s*)?(ls|view|edit|write|bash|grep|glob)`)

	// malformedTagRegex catches tag-like fragments that never parsed as
	// the structured grammar (unclosed, misquoted, or bare).
	malformedTagRegex = regexp.MustCompile(`(?i)<tool\s+name=["']?(\w+)["']?>`)

	filePathRegex = regexp.MustCompile(`(?i)(?:file|path|read|write|edit)\s+(?:to\s+|from\s+)?([a-zA-Z0-9_./-]+\.(?:` + knownExtensions + `)|[a-zA-Z0-9_./-]+/[a-zA-Z0-9_./-]+)`)

	commandContextRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:command|execute|run):\s*([^\n]+)`),
		regexp.MustCompile("`([^`]+)`"),
		regexp.MustCompile(`"([^"]+)"`),
		regexp.MustCompile(`(?i)(?:run|execute)\s+([a-zA-Z0-9_./-]+\s+[^\n]+)`),
	}

	// Attribute scraping for malformed tags.
	pathAttrRegex    = regexp.MustCompile(`(?i)(?:path|dir|directory)[=:]\s*["']?([^"'\s]+)`)
	fileAttrRegex    = regexp.MustCompile(`(?i)(?:path|file)[=:]\s*["']?([^"'\s]+)`)
	commandAttrRegex = regexp.MustCompile(`(?i)(?:command|cmd)[=:]\s*["']?([^"']+)`)

	// Direct action statements.
	listingIntentRegex = regexp.MustCompile(`(?i)list\s+(?:all\s+)?(?:files|directory|dir)`)
	readIntentRegex    = regexp.MustCompile(`(?i)(?:read|view|open)\s+(?:the\s+)?(?:file\s+)?([a-zA-Z0-9_./-]+\.(?:` + knownExtensions + `)|[a-zA-Z0-9_./-]+/[a-zA-Z0-9_./-]+)`)
)

// FromNaturalLanguage infers tool invocations from conversational text.
//
// Description:
//
//	Best-effort fallback for responses where the model described a tool
//	instead of emitting the structured grammar. Recognizes explicit
//	mentions ("Tool: ls", "Use the View tool"), emoji-prefixed request
//	lines, malformed tag fragments, and direct action statements
//	("List files in the current directory", "Read main.go"). A bounded
//	window of surrounding text is scanned for paths and commands;
//	inferred commands longer than 200 characters are rejected as prose.
//
//	This layer is inherently lossy. Callers must treat its output as a
//	safety net, never a primary interface.
//
// Inputs:
//
//	text - The full model response.
//
// Outputs:
//
//	[]Invocation - Inferred invocations, duplicates possible (the
//	               combined parser deduplicates).
func FromNaturalLanguage(text string) []Invocation {
	var invocations []Invocation

	mentions := toolMentionRegex.FindAllStringSubmatchIndex(text, -1)
	mentions = append(mentions, emojiMentionRegex.FindAllStringSubmatchIndex(text, -1)...)

	for _, m := range mentions {
		start, end := m[0], m[1]
		tool := strings.ToUpper(text[m[2]:m[3]])

		switch tool {
		case "LS":
			invocations = append(invocations, Invocation{
				Name:   "LS",
				Params: []Param{{Name: "path", Value: "."}},
			})

		case "VIEW", "EDIT", "WRITE":
			// Scan a short window around the mention for a file path.
			window := text[clamp(start-50, len(text)):clamp(end+100, len(text))]
			pm := filePathRegex.FindStringSubmatch(window)
			if pm == nil {
				continue
			}
			path := strings.TrimSpace(pm[1])
			switch tool {
			case "VIEW":
				invocations = append(invocations, Invocation{
					Name:   "View",
					Params: []Param{{Name: "path", Value: path}},
				})
			case "EDIT":
				invocations = append(invocations, Invocation{
					Name:   "Edit",
					Params: []Param{{Name: "path", Value: path}},
				})
			case "WRITE":
				// Write needs content we cannot infer from prose.
			}

		case "BASH":
			window := text[clamp(start-50, len(text)):clamp(end+150, len(text))]
			for _, re := range commandContextRegexes {
				cm := re.FindStringSubmatch(window)
				if cm == nil {
					continue
				}
				cmd := strings.TrimSpace(cm[1])
				if len(cmd) < maxInferredCommandLength {
					invocations = append(invocations, Invocation{
						Name:   "Bash",
						Params: []Param{{Name: "command", Value: cmd}},
					})
					break
				}
			}
		}
	}

	// Malformed tag fragments: scrape path/dir/command attributes from
	// the text following the fragment.
	for _, m := range malformedTagRegex.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		tool := strings.ToUpper(text[m[2]:m[3]])
		window := text[start:clamp(end+200, len(text))]

		switch tool {
		case "LS":
			path := "."
			if pm := pathAttrRegex.FindStringSubmatch(window); pm != nil {
				path = pm[1]
			}
			invocations = append(invocations, Invocation{
				Name:   "LS",
				Params: []Param{{Name: "path", Value: path}},
			})
		case "VIEW":
			if pm := fileAttrRegex.FindStringSubmatch(window); pm != nil {
				invocations = append(invocations, Invocation{
					Name:   "View",
					Params: []Param{{Name: "path", Value: pm[1]}},
				})
			}
		case "BASH":
			if cm := commandAttrRegex.FindStringSubmatch(window); cm != nil {
				invocations = append(invocations, Invocation{
					Name:   "Bash",
					Params: []Param{{Name: "command", Value: strings.TrimSpace(cm[1])}},
				})
			}
		}
	}

	// Direct action statements, only when the explicit scans found
	// nothing for that tool.
	if listingIntentRegex.MatchString(text) && !containsTool(invocations, "LS") {
		invocations = append(invocations, Invocation{
			Name:   "LS",
			Params: []Param{{Name: "path", Value: "."}},
		})
	}

	if rm := readIntentRegex.FindStringSubmatch(text); rm != nil && !containsTool(invocations, "View") {
		invocations = append(invocations, Invocation{
			Name:   "View",
			Params: []Param{{Name: "path", Value: rm[1]}},
		})
	}

	return invocations
}

func containsTool(invocations []Invocation, name string) bool {
	for _, inv := range invocations {
		if inv.Name == name {
			return true
		}
	}
	return false
}

// clamp bounds an index into [0, limit].
func clamp(i, limit int) int {
	if i < 0 {
		return 0
	}
	if i > limit {
		return limit
	}
	return i
}
