// Copyright (C) 2025 NextEleven Studios
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromNaturalLanguage(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantTool   string
		wantParams map[string]string
	}{
		{
			name:       "listing intent",
			input:      "List all files in the current directory",
			wantTool:   "LS",
			wantParams: map[string]string{"path": "."},
		},
		{
			name:       "listing intent shorthand",
			input:      "I'll list directory contents first.",
			wantTool:   "LS",
			wantParams: map[string]string{"path": "."},
		},
		{
			name:       "explicit tool mention",
			input:      "Tool: LS",
			wantTool:   "LS",
			wantParams: map[string]string{"path": "."},
		},
		{
			name:       "use tool phrasing",
			input:      "I need to use the View tool to read the file main.py",
			wantTool:   "View",
			wantParams: map[string]string{"path": "main.py"},
		},
		{
			name:       "read intent with extension",
			input:      "Let me read config.yaml to check the settings.",
			wantTool:   "View",
			wantParams: map[string]string{"path": "config.yaml"},
		},
		{
			name:       "open intent with slash path",
			input:      "I will open src/main.go now",
			wantTool:   "View",
			wantParams: map[string]string{"path": "src/main.go"},
		},
		{
			name:       "bash with run prefix",
			input:      "Tool: Bash\nrun: python test.py",
			wantTool:   "Bash",
			wantParams: map[string]string{"command": "python test.py"},
		},
		{
			name:       "bash with backtick command",
			input:      "Use the Bash tool with `ls -la`",
			wantTool:   "Bash",
			wantParams: map[string]string{"command": "ls -la"},
		},
		{
			name:       "emoji tool request",
			input:      "🔧 Tool Request: Bash\ncommand: echo hello",
			wantTool:   "Bash",
			wantParams: map[string]string{"command": "echo hello"},
		},
		{
			name:       "malformed tag with attribute",
			input:      `I'd call <tool name="LS"> with dir=src here`,
			wantTool:   "LS",
			wantParams: map[string]string{"path": "src"},
		},
		{
			name:       "malformed bash tag",
			input:      `<tool name="Bash"> command: git status`,
			wantTool:   "Bash",
			wantParams: map[string]string{"command": "git status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedup(FromNaturalLanguage(tt.input))
			require.NotEmpty(t, got, "no invocations inferred")

			found := false
			for _, inv := range got {
				if inv.Name == tt.wantTool {
					found = true
					assert.Equal(t, tt.wantParams, inv.ParamMap())
					break
				}
			}
			assert.True(t, found, "tool %s not inferred, got %v", tt.wantTool, got)
		})
	}
}

func TestFromNaturalLanguageNoMatch(t *testing.T) {
	inputs := []string{
		"",
		"The weather is nice today.",
		"I have completed the refactoring task successfully.",
	}

	for _, input := range inputs {
		assert.Empty(t, FromNaturalLanguage(input), "input: %q", input)
	}
}

// Commands longer than the sanity bound are prose, not commands.
func TestFromNaturalLanguageCommandLengthBound(t *testing.T) {
	long := strings.Repeat("x", maxInferredCommandLength+10)
	input := "Tool: Bash\nrun: " + long

	for _, inv := range FromNaturalLanguage(input) {
		if inv.Name == "Bash" {
			t.Fatalf("overlong command accepted: %d chars", len(inv.ParamMap()["command"]))
		}
	}
}

// Write cannot be inferred from prose because content is unknown.
func TestFromNaturalLanguageWriteSkipped(t *testing.T) {
	got := FromNaturalLanguage("Use the Write tool to write to output.txt")
	for _, inv := range got {
		assert.NotEqual(t, "Write", inv.Name)
	}
}

// End-to-end scenario: prose with no tags falls through to one
// listing invocation with the default path.
func TestExtractScenarioNaturalFallback(t *testing.T) {
	p := New()
	got := p.Extract("List all files in the current directory")

	require.Len(t, got, 1)
	assert.Equal(t, "LS", got[0].Name)
	assert.Equal(t, map[string]string{"path": "."}, got[0].ParamMap())
}
